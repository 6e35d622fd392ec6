package stage

import (
	"bytes"
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hermeshpc/hstore/cmn"
)

// S3Backend backs a bucket's pages onto objects in an S3 bucket/prefix
// (spec §6's "Future protocols (object store, ...)"). Path is of the
// form "bucket/key-prefix"; each page is stored as prefix + page name.
type S3Backend struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

// S3Credentials carries optional static credentials; when AccessKeyID
// is empty the default AWS credential chain is used instead (env vars,
// shared config, instance role).
type S3Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Endpoint        string // non-empty for S3-compatible stores (MinIO, etc.)
}

func NewS3Backend(ctx context.Context, path string, creds S3Credentials) (*S3Backend, error) {
	bucket, prefix, err := splitS3Path(path)
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if creds.Region != "" {
		opts = append(opts, awsconfig.WithRegion(creds.Region))
	}
	if creds.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrStagerUnavailable, err, "load aws config for %s", path)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if creds.Endpoint != "" {
			o.BaseEndpoint = aws.String(creds.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		prefix:     prefix,
	}, nil
}

func splitS3Path(path string) (bucket, prefix string, err error) {
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", cmn.NewErr(cmn.ErrInvalidArgument, nil, "s3 stager path %q missing bucket", path)
	}
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}

func (sb *S3Backend) key(page string) string {
	if sb.prefix == "" {
		return page
	}
	return sb.prefix + "/" + page
}

// ReadRange treats page as the object key: each page is its own S3
// object, so the "range" is the whole object: length only sets the
// destination buffer's initial capacity, and offset is not used.
func (sb *S3Backend) ReadRange(ctx context.Context, page string, offset, length int64) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(make([]byte, 0, length))
	_, err := sb.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(sb.key(page)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, cmn.NewErr(cmn.ErrStagerUnavailable, err, "s3 get %s/%s", sb.bucket, sb.key(page))
	}
	_ = offset
	return buf.Bytes(), nil
}

func (sb *S3Backend) WriteRange(ctx context.Context, page string, _ int64, data []byte) error {
	_, err := sb.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(sb.key(page)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return cmn.NewErr(cmn.ErrStagerUnavailable, err, "s3 put %s/%s", sb.bucket, sb.key(page))
	}
	return nil
}

func isS3NotFound(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound"))
}
