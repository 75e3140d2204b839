package catalog

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

func TestMemoryCatalog_Register(t *testing.T) {
	c := NewMemoryCatalog()
	id, err := c.Register(context.Background(), Blob{StorageKey: "audio/small/2025/03/x-a.mp3", Source: SourceUpload},
		models.Destination{Owner: "bob"})
	require.NoError(t, err)

	e, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "bob", e.Destination.Owner)
	assert.Equal(t, 1, c.Len())
}

func TestPostgresCatalog_Register(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+media_entries\s*\(id,\s*storage_key,.*\)\s*VALUES\s*\(\$1,.*\$12\)$`).
		WithArgs(sqlmock.AnyArg(), "audio/small/2025/03/x-a.mp3", int64(10), "sha256:ab", "audio/mpeg", "a.mp3", "download",
			"audio", "public", "bob", "a.mp3", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := NewPostgresCatalog(db)
	id, err := c.Register(context.Background(), Blob{
		StorageKey: "audio/small/2025/03/x-a.mp3", Size: 10, Checksum: "sha256:ab",
		ContentType: "audio/mpeg", Filename: "a.mp3", Source: SourceDownload,
	}, models.Destination{Visibility: "public", Owner: "bob"})
	require.NoError(t, err)
	assert.Len(t, id, 36)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_DBError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+media_entries`).WillReturnError(errors.New("db down"))

	_, err = NewPostgresCatalog(db).Register(context.Background(), Blob{}, models.Destination{})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

type fakeBlobs map[string]string

func (f fakeBlobs) Retrieve(key string) (io.ReadCloser, error) {
	s, ok := f[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (p *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.in = in
	b, _ := io.ReadAll(in.Body)
	p.body = string(b)
	if p.err != nil {
		return nil, p.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Mirror_UploadsThenDelegates(t *testing.T) {
	next := NewMemoryCatalog()
	putter := &fakePutter{}
	m := NewS3Mirror(next, fakeBlobs{"k": "hello"}, putter, "media", logging.Nop{})

	id, err := m.Register(context.Background(), Blob{StorageKey: "k", Size: 5, ContentType: "text/plain", Checksum: "sha256:x"},
		models.Destination{})
	require.NoError(t, err)

	assert.Equal(t, "hello", putter.body)
	assert.Equal(t, "media", aws.ToString(putter.in.Bucket))
	assert.Equal(t, "k", aws.ToString(putter.in.Key))
	assert.Equal(t, "sha256:x", putter.in.Metadata["checksum"])
	_, ok := next.Get(id)
	assert.True(t, ok)
}

func TestS3Mirror_PutFailureSkipsCatalog(t *testing.T) {
	next := NewMemoryCatalog()
	m := NewS3Mirror(next, fakeBlobs{"k": "hello"}, &fakePutter{err: errors.New("bucket gone")}, "media", logging.Nop{})

	_, err := m.Register(context.Background(), Blob{StorageKey: "k", Size: 5}, models.Destination{})
	assert.ErrorIs(t, err, common.ErrorStorage)
	assert.Equal(t, 0, next.Len())

	_, err = m.Register(context.Background(), Blob{StorageKey: "missing"}, models.Destination{})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestNewS3Client_AppliesOptions(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	c, err := NewS3Client(context.Background(), S3Options{
		Region: "us-east-1", BaseEndpoint: "http://127.0.0.1:9000", AccessKey: "minioadmin", SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = NewS3Client(context.Background(), S3Options{})
	assert.EqualError(t, err, "load-fail")
}
