// Package download fetches product files over HTTPS (with Earthdata login) or from S3,
// verifying checksums and writing through temporary files.
package download

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	internalhttp "github.com/example/go-sarslide/asf/internal/http"
	"github.com/example/go-sarslide/asf/model"
	"github.com/example/go-sarslide/internal/log"
)

const (
	edlClientID  = "BO_n7nTIlMljdvU6kRRB3g"
	ursHost      = "urs.earthdata.nasa.gov"
	asfAuthHost  = "auth.asf.alaska.edu"
	authRedirect = "https://auth.asf.alaska.edu/login"
	maxRedirects = 10
)

var (
	authDomains     = []string{"asf.alaska.edu", "earthdata.nasa.gov"}
	authCookieNames = map[string]struct{}{
		"urs_user_already_logged":     {},
		"uat_urs_user_already_logged": {},
		"asf-urs":                     {},
		"urs-access-token":            {},
	}
)

// ErrNoFetcher is returned for s3:// files when no ObjectFetcher is configured.
var ErrNoFetcher = errors.New("download: s3 url without an object fetcher")

// BasicAuth holds credentials for HTTP basic authentication.
type BasicAuth struct {
	Username string
	Password string
}

// ProgressFunc is invoked as bytes are written for an individual file.
type ProgressFunc func(FileProgress)

// FileProgress reports download progress for a single file.
type FileProgress struct {
	ProductID  string
	FileName   string
	URL        string
	Downloaded int64
	Total      int64
	Skipped    bool
}

// ObjectFetcher reads an S3 object into w.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// Config controls how downloads are executed.
type Config struct {
	Concurrency int
	Verify      bool
	Progress    ProgressFunc
	BasicAuth   *BasicAuth
	S3          ObjectFetcher
	Retry       internalhttp.RetryPolicy
	// Overwrite re-downloads files already present with the expected size.
	Overwrite bool
}

// Manager is responsible for downloading product files.
type Manager interface {
	// Download fetches every file of product into destDir and returns the local paths in
	// product.Files order.
	Download(ctx context.Context, client *http.Client, userAgent string, product model.Product, destDir string) ([]string, error)
}

type manager struct {
	cfg Config
}

// NewManager constructs a download manager with the provided configuration.
func NewManager(cfg Config) Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &manager{cfg: cfg}
}

func (m *manager) Download(ctx context.Context, client *http.Client, userAgent string, product model.Product, destDir string) ([]string, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if destDir == "" {
		return nil, errors.New("destination directory is required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}
	if len(product.Files) == 0 {
		return nil, errors.New("product contains no downloadable files")
	}

	if err := ensureCookieJar(client); err != nil {
		return nil, err
	}
	dlClient := m.clientForDownload(client, userAgent)
	if needsHTTP(product.Files) {
		if err := m.ensureAuth(ctx, dlClient, userAgent); err != nil {
			return nil, err
		}
	}

	paths := make([]string, len(product.Files))
	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, m.cfg.Concurrency)

	for i, file := range product.Files {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			p, err := m.downloadFile(ctx, dlClient, userAgent, product.ID, destDir, file)
			if err != nil {
				return fmt.Errorf("%s: %w", file.URL, err)
			}
			paths[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (m *manager) downloadFile(ctx context.Context, client *http.Client, userAgent, productID, destDir string, file model.File) (finalPath string, err error) {
	if file.URL == "" {
		return "", errors.New("file missing URL")
	}
	u, err := url.Parse(file.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := file.Name
	if name == "" {
		base := filepath.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			name = base
		}
	}
	if name == "" {
		return "", errors.New("could not determine filename")
	}

	finalPath = filepath.Join(destDir, name)
	meta := FileProgress{ProductID: productID, FileName: name, URL: file.URL, Total: file.Size}
	if !m.cfg.Overwrite && file.Size > 0 {
		if info, statErr := os.Stat(finalPath); statErr == nil && info.Size() == file.Size {
			log.Logger(ctx).Debug("file already present", zap.String("path", finalPath))
			if m.cfg.Progress != nil {
				meta.Downloaded, meta.Skipped = file.Size, true
				m.cfg.Progress(meta)
			}
			return finalPath, nil
		}
	}

	tmpPath := finalPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	hasher := m.hasher(file)
	if u.Scheme == "s3" {
		err = m.fetchS3(ctx, u, out, hasher, meta)
	} else {
		err = m.fetchHTTP(ctx, client, userAgent, file, out, hasher, meta)
	}
	if err != nil {
		return "", err
	}

	if hasher != nil {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, file.Checksum) {
			return "", fmt.Errorf("checksum mismatch for %s: expected %s got %s", name, file.Checksum, sum)
		}
	}

	if err = out.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	log.Logger(ctx).Info("downloaded", zap.String("product", productID), zap.String("path", finalPath))
	return finalPath, nil
}

func (m *manager) hasher(file model.File) hash.Hash {
	if !m.cfg.Verify || file.Checksum == "" {
		return nil
	}
	switch strings.ToLower(file.ChecksumType) {
	case "", "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	}
	return nil
}

func (m *manager) fetchHTTP(ctx context.Context, client *http.Client, userAgent string, file model.File, out *os.File, hasher hash.Hash, meta FileProgress) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if m.cfg.BasicAuth != nil && m.cfg.BasicAuth.Username != "" && hostRequiresAuth(req.URL.Hostname()) {
		req.SetBasicAuth(m.cfg.BasicAuth.Username, m.cfg.BasicAuth.Password)
	}

	resp, err := internalhttp.Do(ctx, client, req, m.cfg.Retry)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return internalhttp.HTTPError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		lower := strings.ToLower(ct)
		if strings.Contains(lower, "text/html") || strings.Contains(lower, "application/xhtml") {
			preview, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return fmt.Errorf("unexpected HTML response while downloading %s: %s", file.URL, strings.TrimSpace(string(preview)))
		}
	}

	if resp.ContentLength >= 0 {
		meta.Total = resp.ContentLength
	}
	writer := newProgressWriter(out, m.cfg.Progress, meta)
	if hasher != nil {
		writer.SetHasher(hasher)
	}
	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("copy data: %w", err)
	}
	return nil
}

func (m *manager) fetchS3(ctx context.Context, u *url.URL, out *os.File, hasher hash.Hash, meta FileProgress) error {
	if m.cfg.S3 == nil {
		return ErrNoFetcher
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("invalid s3 url %q", u.String())
	}
	n, err := m.cfg.S3.Fetch(ctx, bucket, key, out)
	if err != nil {
		return fmt.Errorf("fetch s3://%s/%s: %w", bucket, key, err)
	}
	if hasher != nil {
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind temp file: %w", err)
		}
		if _, err := io.Copy(hasher, out); err != nil {
			return fmt.Errorf("hash temp file: %w", err)
		}
	}
	if m.cfg.Progress != nil {
		meta.Downloaded = n
		if meta.Total <= 0 {
			meta.Total = n
		}
		m.cfg.Progress(meta)
	}
	return nil
}

func needsHTTP(files []model.File) bool {
	for _, f := range files {
		if !strings.HasPrefix(f.URL, "s3://") {
			return true
		}
	}
	return false
}

func (m *manager) ensureAuth(ctx context.Context, client *http.Client, userAgent string) error {
	if m.cfg.BasicAuth == nil || m.cfg.BasicAuth.Username == "" {
		return nil
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return fmt.Errorf("create cookie jar: %w", err)
		}
		client.Jar = jar
	}
	if hasAuthCookies(client.Jar) {
		return nil
	}

	loginURL := fmt.Sprintf("https://%s/oauth/authorize?client_id=%s&response_type=code&redirect_uri=%s", ursHost, edlClientID, url.QueryEscape(authRedirect))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return fmt.Errorf("prepare login request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if hostRequiresAuth(req.URL.Hostname()) {
		req.SetBasicAuth(m.cfg.BasicAuth.Username, m.cfg.BasicAuth.Password)
	}

	resp, err := internalhttp.Do(ctx, client, req, m.cfg.Retry)
	if err != nil {
		return fmt.Errorf("authenticate with earthdata: %w", err)
	}
	resp.Body.Close()

	if !hasAuthCookies(client.Jar) {
		return errors.New("earthdata authentication failed: login cookies not set")
	}
	return nil
}

func (m *manager) clientForDownload(base *http.Client, userAgent string) *http.Client {
	if m.cfg.BasicAuth == nil || m.cfg.BasicAuth.Username == "" {
		return base
	}

	clone := *base
	clone.Jar = base.Jar
	clone.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if len(via) > 0 {
			req.Header = via[len(via)-1].Header.Clone()
		}
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}
		if hostRequiresAuth(req.URL.Hostname()) {
			req.SetBasicAuth(m.cfg.BasicAuth.Username, m.cfg.BasicAuth.Password)
		} else {
			req.Header.Del("Authorization")
		}
		return nil
	}
	return &clone
}

func hostRequiresAuth(host string) bool {
	lower := strings.ToLower(host)
	for _, domain := range authDomains {
		if lower == domain || strings.HasSuffix(lower, "."+domain) {
			return true
		}
	}
	return false
}

func hasAuthCookies(jar http.CookieJar) bool {
	if jar == nil {
		return false
	}
	hosts := []string{
		fmt.Sprintf("https://%s/", ursHost),
		fmt.Sprintf("https://%s/", asfAuthHost),
	}
	for _, raw := range hosts {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for _, c := range jar.Cookies(u) {
			if _, ok := authCookieNames[c.Name]; ok {
				return true
			}
		}
	}
	return false
}

func ensureCookieJar(client *http.Client) error {
	if client == nil {
		return errors.New("http client is required")
	}
	if client.Jar != nil {
		return nil
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	client.Jar = jar
	return nil
}

type progressWriter struct {
	dst      io.Writer
	progress ProgressFunc
	meta     FileProgress
	hasher   hash.Hash
}

func newProgressWriter(dst io.Writer, fn ProgressFunc, meta FileProgress) *progressWriter {
	return &progressWriter{dst: dst, progress: fn, meta: meta}
}

func (w *progressWriter) SetHasher(h hash.Hash) {
	w.hasher = h
}

func (w *progressWriter) Write(p []byte) (int, error) {
	if w.hasher != nil {
		if _, err := w.hasher.Write(p); err != nil {
			return 0, err
		}
	}

	n, err := w.dst.Write(p)
	if n > 0 {
		w.meta.Downloaded += int64(n)
		if w.progress != nil {
			w.progress(w.meta)
		}
	}
	return n, err
}
