package stage

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/cmn/nlog"
)

// FileBackend is the local-filesystem stager backend: the bucket is
// backed by a single file on disk, addressed by ParamsPack.Path, and
// pages are read/written positionally (spec §4.7's default protocol).
type FileBackend struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func NewFileBackend(path string) (*FileBackend, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrStagerUnavailable, err, "open backing file %s", path)
	}
	return &FileBackend{f: f, path: path}, nil
}

// ReadRange never surfaces io.EOF as an error: a short or absent read
// past end-of-file yields fewer bytes, not a failure, matching target
// driver semantics elsewhere in the stack.
func (fb *FileBackend) ReadRange(_ context.Context, _ string, offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	fb.mu.Lock()
	n, err := fb.f.ReadAt(buf, offset)
	fb.mu.Unlock()
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

func (fb *FileBackend) WriteRange(_ context.Context, _ string, offset int64, data []byte) error {
	fb.mu.Lock()
	_, err := fb.f.WriteAt(data, offset)
	fb.mu.Unlock()
	return err
}

func (fb *FileBackend) Close() error {
	if err := fb.f.Sync(); err != nil {
		nlog.Warningf("stage: sync %s: %v", fb.path, err)
	}
	return fb.f.Close()
}
