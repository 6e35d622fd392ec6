package stage

import (
	"context"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/hermeshpc/hstore/cmn"
)

// AzBlobBackend backs a bucket's pages onto blobs in an Azure Blob
// Storage container, one blob per page, mirroring S3Backend's
// per-page-object layout.
type AzBlobBackend struct {
	client    *azblob.Client
	container string
	prefix    string
}

func NewAzBlobBackend(serviceURL, sharedKeyAccount, sharedKeyValue, path string) (*AzBlobBackend, error) {
	container, prefix, err := splitS3Path(path)
	if err != nil {
		return nil, err
	}
	cred, err := azblob.NewSharedKeyCredential(sharedKeyAccount, sharedKeyValue)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrStagerUnavailable, err, "azblob credential for %s", path)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrStagerUnavailable, err, "azblob client for %s", serviceURL)
	}
	return &AzBlobBackend{client: client, container: container, prefix: prefix}, nil
}

func (ab *AzBlobBackend) blobName(page string) string {
	if ab.prefix == "" {
		return page
	}
	return ab.prefix + "/" + page
}

func (ab *AzBlobBackend) ReadRange(ctx context.Context, page string, _, _ int64) ([]byte, error) {
	resp, err := ab.client.DownloadStream(ctx, ab.container, ab.blobName(page), nil)
	if err != nil {
		if isAzBlobNotFound(err) {
			return nil, nil
		}
		return nil, cmn.NewErr(cmn.ErrStagerUnavailable, err, "azblob download %s/%s", ab.container, ab.blobName(page))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrTierFault, err, "azblob read body %s/%s", ab.container, ab.blobName(page))
	}
	return data, nil
}

func (ab *AzBlobBackend) WriteRange(ctx context.Context, page string, _ int64, data []byte) error {
	_, err := ab.client.UploadBuffer(ctx, ab.container, ab.blobName(page), data, nil)
	if err != nil {
		return cmn.NewErr(cmn.ErrStagerUnavailable, err, "azblob upload %s/%s", ab.container, ab.blobName(page))
	}
	return nil
}

func isAzBlobNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "BlobNotFound")
}
