package stage

import (
	"context"
	"sync"

	"github.com/hermeshpc/hstore/cmn"
)

const (
	ProtocolFile   = "file"
	ProtocolS3     = "s3"
	ProtocolAzBlob = "azblob"
	ProtocolGCS    = "gcs"
)

// CloudCreds bundles the out-of-band connection parameters the pure
// byte-oriented ParamsPack has no room for (spec §6's pack carries
// only protocol/flags/page_size; everything else is a deployment
// detail supplied by bucket-creation options, not the wire pack).
type CloudCreds struct {
	S3        S3Credentials
	AzService string
	AzAccount string
	AzKey     string
}

// NewBackend constructs the Backend for pack.Protocol, dialing out to
// the named external store. Unknown protocols are rejected up front
// (spec §7 InvalidArgument) rather than discovered on first I/O.
func NewBackend(ctx context.Context, pack ParamsPack, creds CloudCreds) (Backend, error) {
	switch pack.Protocol {
	case ProtocolFile, "":
		return NewFileBackend(pack.Path)
	case ProtocolS3:
		return NewS3Backend(ctx, pack.Path, creds.S3)
	case ProtocolAzBlob:
		return NewAzBlobBackend(creds.AzService, creds.AzAccount, creds.AzKey, pack.Path)
	case ProtocolGCS:
		return NewGCSBackend(ctx, pack.Path)
	default:
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, nil, "unknown stager protocol %q", pack.Protocol)
	}
}

// Registry maps tag ids to their configured Stager, the bridge between
// the blob engine's StagerLookup hook and a concrete per-bucket Stager.
type Registry struct {
	mu      sync.RWMutex
	stagers map[uint64]*Stager
}

func NewRegistry() *Registry {
	return &Registry{stagers: make(map[uint64]*Stager)}
}

func (r *Registry) Register(tagUID uint64, s *Stager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stagers[tagUID] = s
}

func (r *Registry) Unregister(tagUID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stagers, tagUID)
}

func (r *Registry) Lookup(tagUID uint64) (*Stager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stagers[tagUID]
	return s, ok
}
