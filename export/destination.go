package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultS3Region = "us-east-1"

// LocalDir writes exports into a directory, creating it when missing.
type LocalDir string

// Put copies the staged file into the directory through a .part file and a rename.
func (d LocalDir) Put(ctx context.Context, name, localPath string) (loc string, err error) {
	dir := string(d)
	if dir == "" {
		return "", errors.New("export: local directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create %s: %w", dir, err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("export: open staged file: %w", err)
	}
	defer src.Close()

	final := filepath.Join(dir, name)
	tmp := final + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("export: create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if _, err = io.Copy(out, ctxReader{ctx: ctx, r: src}); err != nil {
		return "", fmt.Errorf("export: write %s: %w", final, err)
	}
	if err = out.Close(); err != nil {
		return "", fmt.Errorf("export: close temp file: %w", err)
	}
	if err = os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("export: rename temp file: %w", err)
	}
	return final, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// S3Config holds the connection settings of an S3 (or S3-compatible) destination.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 uploads exports under a bucket prefix with the S3 upload manager.
type S3 struct {
	Bucket string
	Prefix string

	cfg         S3Config
	newUploader func(cfg aws.Config) s3Uploader
	once        sync.Once
	uploader    s3Uploader
}

// NewS3 returns an S3 destination. The client is built on first use.
func NewS3(bucket, prefix string, cfg S3Config) *S3 {
	return &S3{
		Bucket: bucket,
		Prefix: strings.Trim(prefix, "/"),
		cfg:    cfg,
		newUploader: func(awsCfg aws.Config) s3Uploader {
			client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
				if cfg.Endpoint != "" {
					o.BaseEndpoint = aws.String(cfg.Endpoint)
				}
				o.UsePathStyle = cfg.UsePathStyle
			})
			return manager.NewUploader(client)
		},
	}
}

func (d *S3) awsConfig() aws.Config {
	region := d.cfg.Region
	if region == "" {
		region = defaultS3Region
	}
	awsCfg := aws.Config{Region: region}
	if d.cfg.AccessKeyID != "" {
		awsCfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			d.cfg.AccessKeyID, d.cfg.SecretAccessKey, d.cfg.SessionToken))
	}
	return awsCfg
}

// Key returns the object key for name.
func (d *S3) Key(name string) string {
	if d.Prefix == "" {
		return name
	}
	return path.Join(d.Prefix, name)
}

// Put uploads the staged file and returns its s3:// URL.
func (d *S3) Put(ctx context.Context, name, localPath string) (string, error) {
	if d.Bucket == "" {
		return "", errors.New("export: s3 bucket is empty")
	}
	d.once.Do(func() { d.uploader = d.newUploader(d.awsConfig()) })
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("export: open staged file: %w", err)
	}
	defer f.Close()

	key := d.Key(name)
	if _, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("image/tiff"),
	}); err != nil {
		return "", fmt.Errorf("export: upload s3://%s/%s: %w", d.Bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", d.Bucket, key), nil
}

// ParseDestination maps "s3://bucket/prefix" to an S3 destination and anything else to a
// local directory.
func ParseDestination(raw string, cfg S3Config) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("export: destination is empty")
	}
	if !strings.HasPrefix(strings.ToLower(raw), "s3://") {
		return LocalDir(raw), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("export: parse destination: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("export: destination %q has no bucket", raw)
	}
	return NewS3(u.Host, u.Path, cfg), nil
}
