package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether enough is configured to try S3.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

type S3Store struct {
	client *minio.Client
	bucket string
	region string

	bucketMu    sync.Mutex
	bucketReady bool
	initBucket  func(ctx context.Context) error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	s := &S3Store{client: client, bucket: bucket, region: region}
	s.initBucket = func(ctx context.Context) error {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil || exists {
			return err
		}
		return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	}
	return s, nil
}

// ensureBucket creates the bucket on first use. A failed attempt is retried
// by the next call.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}
	if err := s.initBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	s.bucketReady = true
	return nil
}

func (s *S3Store) Put(ctx context.Context, sessionID string, data []byte) error {
	key, err := objectKey(sessionID)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (s *S3Store) Get(ctx context.Context, sessionID string) ([]byte, error) {
	key, err := objectKey(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *S3Store) GetURL(ctx context.Context, sessionID string) (string, error) {
	key, err := objectKey(sessionID)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, time.Hour, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	out := make([]string, 0, 32)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: keyPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, ".json") {
			out = append(out, sessionOf(obj.Key))
		}
	}
	sort.Strings(out)
	return out, nil
}
