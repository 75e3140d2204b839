package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type S3Options struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// NewS3Client builds a client for an S3-compatible endpoint with static
// credentials.
func NewS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.BaseEndpoint != "" {
			so.BaseEndpoint = aws.String(o.BaseEndpoint)
		}
		so.UsePathStyle = true
	}), nil
}

// ObjectPutter is the part of *s3.Client used by the mirror.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BlobSource opens stored blobs by key.
type BlobSource interface {
	Retrieve(key string) (io.ReadCloser, error)
}

// S3Mirror copies every registered blob to a bucket under its storage key and
// then delegates to the wrapped catalog.
type S3Mirror struct {
	next   Catalog
	blobs  BlobSource
	client ObjectPutter
	bucket string
	logger logging.Logger
}

func NewS3Mirror(next Catalog, blobs BlobSource, client ObjectPutter, bucket string, l logging.Logger) *S3Mirror {
	return &S3Mirror{next: next, blobs: blobs, client: client, bucket: bucket, logger: l.With("module", "s3_mirror")}
}

func (m *S3Mirror) Register(ctx context.Context, b Blob, dest models.Destination) (string, error) {
	rc, err := m.blobs.Retrieve(b.StorageKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(b.StorageKey),
		Body:          rc,
		ContentLength: aws.Int64(b.Size),
	}
	if b.ContentType != "" {
		in.ContentType = aws.String(b.ContentType)
	}
	if b.Checksum != "" {
		in.Metadata = map[string]string{"checksum": b.Checksum}
	}

	if _, err := m.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("%w: mirror %s: %w", common.ErrorStorage, b.StorageKey, err)
	}
	m.logger.Info(ctx, "mirrored blob", "key", b.StorageKey, "bucket", m.bucket, "size", b.Size)

	return m.next.Register(ctx, b, dest)
}
