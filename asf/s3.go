package asf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	internalhttp "github.com/example/go-sarslide/asf/internal/http"
	"github.com/example/go-sarslide/internal/log"
)

const (
	defaultS3Region         = "us-west-2"
	defaultS3CredentialsURL = "https://sentinel1.asf.alaska.edu/s3credentials"
	// credentials are refreshed this long before they expire.
	credentialsSlack = 5 * time.Minute
)

type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// s3Config fetches s3:// product files with temporary credentials from the ASF credentials
// endpoint. Credentials and the downloader built from them are reused until shortly before
// the credentials expire.
type s3Config struct {
	client         *Client
	credentialsURL string
	region         string
	newDownloader  func(aws.Config) s3Downloader

	mu         sync.Mutex
	creds      aws.Credentials
	downloader s3Downloader
}

func newS3Config(c *Client) *s3Config {
	return &s3Config{
		client:         c,
		credentialsURL: defaultS3CredentialsURL,
		region:         defaultS3Region,
		newDownloader: func(cfg aws.Config) s3Downloader {
			return manager.NewDownloader(s3.NewFromConfig(cfg))
		},
	}
}

// Fetch implements download.ObjectFetcher.
func (s *s3Config) Fetch(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	dl, err := s.ensureDownloader(ctx)
	if err != nil {
		return 0, err
	}
	return dl.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
}

func (s *s3Config) ensureDownloader(ctx context.Context) (s3Downloader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloader != nil && !s.expiring() {
		return s.downloader, nil
	}
	creds, err := s.fetchCredentials(ctx)
	if err != nil {
		return nil, err
	}
	s.creds = creds
	s.downloader = s.newDownloader(aws.Config{
		Region:      s.region,
		Credentials: credentials.StaticCredentialsProvider{Value: creds},
	})
	log.Logger(ctx).Debug("s3 credentials refreshed", zap.Time("expires", creds.Expires))
	return s.downloader, nil
}

func (s *s3Config) expiring() bool {
	return s.creds.CanExpire && time.Until(s.creds.Expires) < credentialsSlack
}

type credentialsResponse struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      string `json:"expiration"`
}

func (s *s3Config) fetchCredentials(ctx context.Context) (aws.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.credentialsURL, nil)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("asf: s3 credentials request: %w", err)
	}
	if ba := s.client.basicAuth; ba != nil {
		req.SetBasicAuth(ba.Username, ba.Password)
	}
	resp, err := s.client.do(ctx, req)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("asf: s3 credentials: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return aws.Credentials{}, fmt.Errorf("asf: s3 credentials: %w", internalhttp.HTTPError(resp))
	}

	var payload credentialsResponse
	if err := internalhttp.DecodeJSON(resp.Body, &payload); err != nil {
		return aws.Credentials{}, fmt.Errorf("asf: s3 credentials: %w", err)
	}
	if payload.AccessKeyID == "" || payload.SecretAccessKey == "" {
		return aws.Credentials{}, fmt.Errorf("asf: s3 credentials: response without keys")
	}
	creds := aws.Credentials{
		AccessKeyID:     payload.AccessKeyID,
		SecretAccessKey: payload.SecretAccessKey,
		SessionToken:    payload.SessionToken,
		Source:          "asf-s3credentials",
	}
	if exp, ok := parseExpiration(payload.Expiration); ok {
		creds.CanExpire, creds.Expires = true, exp
	}
	return creds, nil
}

func parseExpiration(value string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05-07:00", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
