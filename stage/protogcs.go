package stage

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"

	"github.com/hermeshpc/hstore/cmn"
)

// GCSBackend backs a bucket's pages onto objects in a Google Cloud
// Storage bucket, one object per page.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSBackend(ctx context.Context, path string) (*GCSBackend, error) {
	bucket, prefix, err := splitS3Path(path)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrStagerUnavailable, err, "gcs client for %s", path)
	}
	return &GCSBackend{client: client, bucket: bucket, prefix: prefix}, nil
}

func (gb *GCSBackend) object(page string) string {
	if gb.prefix == "" {
		return page
	}
	return gb.prefix + "/" + page
}

func (gb *GCSBackend) ReadRange(ctx context.Context, page string, _, _ int64) ([]byte, error) {
	r, err := gb.client.Bucket(gb.bucket).Object(gb.object(page)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, cmn.NewErr(cmn.ErrStagerUnavailable, err, "gcs get %s/%s", gb.bucket, gb.object(page))
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrTierFault, err, "gcs read body %s/%s", gb.bucket, gb.object(page))
	}
	return data, nil
}

func (gb *GCSBackend) WriteRange(ctx context.Context, page string, _ int64, data []byte) error {
	w := gb.client.Bucket(gb.bucket).Object(gb.object(page)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return cmn.NewErr(cmn.ErrStagerUnavailable, err, "gcs put %s/%s", gb.bucket, gb.object(page))
	}
	if err := w.Close(); err != nil {
		return cmn.NewErr(cmn.ErrStagerUnavailable, err, "gcs close %s/%s", gb.bucket, gb.object(page))
	}
	return nil
}
