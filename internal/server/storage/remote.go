package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/resvault/internal/logging"
)

// S3API is the part of the S3 client the remote backend uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) S3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// RemoteConfig locates the bucket and key prefix of a remote instance.
type RemoteConfig struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	// Prefix is prepended to every key, e.g. "resvault/".
	Prefix string
	// Concurrency bounds parallel requests in batch operations.
	Concurrency int
}

// RemoteBackend stores each entry as one S3 object.
type RemoteBackend struct {
	cfg    RemoteConfig
	logger logging.Logger

	name string

	mu     sync.RWMutex
	client S3API
}

func NewRemoteBackend(cfg RemoteConfig, logger logging.Logger) *RemoteBackend {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &RemoteBackend{cfg: cfg, logger: logger}
}

// NewRemoteBackendWithClient skips client construction in Initialize.
func NewRemoteBackendWithClient(client S3API, cfg RemoteConfig, logger logging.Logger) *RemoteBackend {
	b := NewRemoteBackend(cfg, logger)
	b.client = client
	return b
}

func (b *RemoteBackend) Name() string { return b.name }

func (b *RemoteBackend) Initialize(ctx context.Context, name string) error {
	b.name = name
	b.logger = b.logger.With("storage", name, "kind", "remote")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if b.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(b.cfg.Region))
	}
	if b.cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.cfg.AccessKey, b.cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	b.client = newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if b.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(b.cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return nil
}

func (b *RemoteBackend) api() (S3API, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.client == nil {
		return nil, errors.New("remote storage not initialized")
	}
	return b.client, nil
}

func (b *RemoteBackend) objectKey(key string) string {
	return b.cfg.Prefix + key
}

// LoadStorage checks the bucket is reachable. Objects are read on demand.
func (b *RemoteBackend) LoadStorage(ctx context.Context) error {
	c, err := b.api()
	if err != nil {
		return err
	}
	if _, err := c.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.cfg.Bucket)}); err != nil {
		return fmt.Errorf("s3 head bucket %s: %w", b.cfg.Bucket, err)
	}
	b.logger.Info(ctx, "storage reachable", "bucket", b.cfg.Bucket, "prefix", b.cfg.Prefix)
	return nil
}

// SaveStorage has nothing to flush: every write already went to S3.
func (b *RemoteBackend) SaveStorage(context.Context) error {
	return nil
}

// ClearStorage deletes every object under the instance prefix.
func (b *RemoteBackend) ClearStorage(ctx context.Context) error {
	c, err := b.api()
	if err != nil {
		return err
	}

	p := s3.NewListObjectsV2Paginator(c, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.cfg.Bucket),
		Prefix: aws.String(b.cfg.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list objects: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = types.ObjectIdentifier{Key: obj.Key}
		}
		if _, err := c.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.cfg.Bucket),
			Delete: &types.Delete{Objects: objects},
		}); err != nil {
			return fmt.Errorf("s3 delete objects: %w", err)
		}
	}
	return nil
}

func (b *RemoteBackend) AddResource(ctx context.Context, key string, value []byte, forced bool) (bool, error) {
	c, err := b.api()
	if err != nil {
		return false, err
	}

	if !forced {
		exists, err := b.HasResource(ctx, key)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	_, err = c.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(b.objectKey(key)),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
	})
	if err != nil {
		return false, fmt.Errorf("s3 put object: %w", err)
	}
	return true, nil
}

func (b *RemoteBackend) HasResource(ctx context.Context, key string) (bool, error) {
	c, err := b.api()
	if err != nil {
		return false, err
	}

	_, err = c.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head object: %w", err)
	}
	return true, nil
}

func (b *RemoteBackend) GetResource(ctx context.Context, key string) ([]byte, error) {
	c, err := b.api()
	if err != nil {
		return nil, err
	}

	resp, err := c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object body: %w", err)
	}
	return data, nil
}

// GetResources fetches keys with at most Concurrency requests in flight.
// Missing keys are skipped; any other failure fails the batch.
func (b *RemoteBackend) GetResources(ctx context.Context, keys []string) ([]Entry, error) {
	found := make([]*Entry, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, k := range keys {
		g.Go(func() error {
			v, err := b.GetResource(gctx, k)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = &Entry{Key: k, Value: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(keys))
	for _, e := range found {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

// RemoveResource deletes key. S3 deletes are idempotent, so existence is
// checked first to report ErrNotFound.
func (b *RemoteBackend) RemoveResource(ctx context.Context, key string) error {
	c, err := b.api()
	if err != nil {
		return err
	}

	exists, err := b.HasResource(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	if _, err := c.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	}); err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

func (b *RemoteBackend) RemoveResources(ctx context.Context, keys []string) ([]string, error) {
	removed := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, k := range keys {
		g.Go(func() error {
			err := b.RemoveResource(gctx, k)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			removed[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(keys))
	for i, ok := range removed {
		if ok {
			out = append(out, keys[i])
		}
	}
	return out, nil
}

func (b *RemoteBackend) ListResources(ctx context.Context) ([]string, error) {
	c, err := b.api()
	if err != nil {
		return nil, err
	}

	keys := []string{}
	p := s3.NewListObjectsV2Paginator(c, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.cfg.Bucket),
		Prefix: aws.String(b.cfg.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), b.cfg.Prefix))
		}
	}
	return keys, nil
}

func (b *RemoteBackend) Finalize(context.Context) error {
	return nil
}

func isNotFoundError(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}

var _ Backend = (*RemoteBackend)(nil)
