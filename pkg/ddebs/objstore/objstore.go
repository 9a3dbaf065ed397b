// Package objstore publishes produced symbol archives to S3-compatible object
// storage.
package objstore

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"
)

var log = logging.Logger("ddebs/objstore")

type Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether an upload target is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

// Uploader stores files in a bucket.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// S3Uploader uploads to an S3-compatible bucket, creating it on first use.
type S3Uploader struct {
	fs       afero.Fs
	client   *minio.Client
	bucket   string
	region   string
	prefix   string
	initOnce sync.Once
	initErr  error
}

var _ Uploader = (*S3Uploader)(nil)

func NewS3Uploader(fsys afero.Fs, cfg Config) (*S3Uploader, error) {
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
	return &S3Uploader{
		fs:     fsys,
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	u.initOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.initErr = err
			return
		}
		if exists {
			return
		}
		u.initErr = u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region})
	})
	return u.initErr
}

// Upload stores the file at localPath under the configured prefix and returns
// its object key.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	if err := u.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	f, err := u.fs.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("statting %s: %w", localPath, err)
	}

	key := ObjectKey(u.prefix, filepath.Base(localPath))
	_, err = u.client.PutObject(ctx, u.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	log.Infow("uploaded symbol archive", "bucket", u.bucket, "key", key, "bytes", info.Size())
	return key, nil
}

// ObjectKey joins prefix and name into an object key.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
