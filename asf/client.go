// Package asf searches the Alaska Satellite Facility catalogue for Sentinel-1 products and
// downloads their files over HTTPS or S3.
package asf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/go-sarslide/asf/download"
	internalhttp "github.com/example/go-sarslide/asf/internal/http"
	"github.com/example/go-sarslide/asf/model"
	"github.com/example/go-sarslide/asf/search"
	"github.com/example/go-sarslide/internal/log"
)

const (
	defaultBaseURL   = "https://api.daac.asf.alaska.edu"
	defaultUserAgent = "go-sarslide"
	defaultTimeout   = 60 * time.Second
	searchPath       = "services/search/param"
)

var (
	// ErrNilClient is returned when methods are invoked on a nil Client pointer.
	ErrNilClient = errors.New("asf: nil client")
	// ErrMissingDownloadURL indicates that a product does not include any downloadable files.
	ErrMissingDownloadURL = errors.New("asf: product missing download URL")
)

// Client provides access to ASF Search endpoints and product downloads.
type Client struct {
	baseURL   *url.URL
	userAgent string
	session   *Session
	retry     RetryPolicy
	basicAuth *download.BasicAuth
	s3        download.ObjectFetcher
}

// NewClient creates a Client with sensible defaults.
func NewClient(opts ...Option) (*Client, error) {
	base, _ := url.Parse(defaultBaseURL)
	c := &Client{
		baseURL:   base,
		userAgent: defaultUserAgent,
		session:   NewSession(),
		retry:     internalhttp.DefaultRetryPolicy(),
	}
	c.s3 = newS3Config(c)
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("asf: %w", err)
		}
	}
	return c, nil
}

func (c *Client) s3cfg() *s3Config {
	cfg, ok := c.s3.(*s3Config)
	if !ok {
		cfg = newS3Config(c)
		c.s3 = cfg
	}
	return cfg
}

// Search starts a paginated search. Parameters are validated before any request is made.
func (c *Client) Search(ctx context.Context, params search.Params) (*ResultIterator, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	query, err := params.Encode()
	if err != nil {
		return nil, fmt.Errorf("asf: %w", err)
	}
	return newResultIterator(c, query, params.PageSize()), nil
}

// SearchAll drains a search into a slice. A positive params.MaxResults caps the total.
func (c *Client) SearchAll(ctx context.Context, params search.Params) ([]model.Product, error) {
	it, err := c.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	var products []model.Product
	for it.Next(ctx) {
		products = append(products, it.Product())
		if params.MaxResults > 0 && len(products) >= params.MaxResults {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	log.Logger(ctx).Debug("search finished", zap.Int("products", len(products)))
	return products, nil
}

func (c *Client) doSearchRequest(ctx context.Context, query url.Values) ([]model.Product, error) {
	endpoint := *c.baseURL
	endpoint.Path = joinURLPath(endpoint.Path, searchPath)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("asf: create request: %w", err)
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("asf: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asf: search: %w", internalhttp.HTTPError(resp))
	}
	products, err := model.ParseFeatureCollection(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("asf: search: %w", err)
	}
	return products, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if err := c.session.authenticate(req); err != nil {
		return nil, err
	}
	return internalhttp.Do(ctx, c.session.client, req, c.retry)
}

// DownloadProduct downloads every file of product into destDir.
func (c *Client) DownloadProduct(ctx context.Context, product model.Product, destDir string, opts ...DownloadOption) error {
	_, err := c.DownloadFiles(ctx, product, destDir, opts...)
	return err
}

// DownloadFiles downloads the files of product into destDir and returns their local paths in
// product.Files order. Trim product.Files first to fetch a subset.
func (c *Client) DownloadFiles(ctx context.Context, product model.Product, destDir string, opts ...DownloadOption) ([]string, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if len(product.Files) == 0 {
		return nil, ErrMissingDownloadURL
	}
	cfg := newDownloadConfig(opts)
	cfg.ensureDefaults(c)
	if cfg.preferS3 {
		product = preferS3(product)
	}
	paths, err := cfg.downloader.Download(ctx, c.session.client, c.userAgent, product, destDir)
	if err != nil {
		return nil, fmt.Errorf("asf: download %s: %w", product.ID, err)
	}
	return paths, nil
}

// preferS3 swaps each HTTPS file for the s3:// URL with the same base name.
func preferS3(p model.Product) model.Product {
	if len(p.S3URLs) == 0 {
		return p
	}
	byName := make(map[string]string, len(p.S3URLs))
	for _, u := range p.S3URLs {
		byName[path.Base(u)] = u
	}
	files := make([]model.File, len(p.Files))
	for i, f := range p.Files {
		if s3url, ok := byName[f.Name]; ok {
			f.URL = s3url
		}
		files[i] = f
	}
	p.Files = files
	return p
}

func joinURLPath(basePath string, elems ...string) string {
	parts := make([]string, 0, len(elems)+1)
	trimmedBase := strings.Trim(basePath, "/")
	if trimmedBase != "" {
		parts = append(parts, trimmedBase)
	}
	for _, elem := range elems {
		trimmed := strings.Trim(elem, "/")
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return "/" + path.Join(parts...)
}

// BatchError aggregates multiple download errors.
type BatchError struct {
	Errors []error
}

// Error implements the error interface.
func (e BatchError) Error() string {
	if len(e.Errors) == 0 {
		return ""
	}
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		if err != nil {
			messages = append(messages, err.Error())
		}
	}
	return strings.Join(messages, "; ")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e BatchError) Unwrap() []error {
	return e.Errors
}

// Authenticator applies authentication information to a request.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// AuthenticatorFunc converts a function into an Authenticator.
type AuthenticatorFunc func(*http.Request) error

// Authenticate applies the function to the request.
func (f AuthenticatorFunc) Authenticate(req *http.Request) error {
	return f(req)
}

// BearerToken authenticates with a bearer token header.
type BearerToken string

// Authenticate applies the bearer token header.
func (b BearerToken) Authenticate(req *http.Request) error {
	if string(b) == "" {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+string(b))
	return nil
}

// BasicAuth uses HTTP Basic authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Authenticate applies the basic auth header.
func (b BasicAuth) Authenticate(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// HeaderAuth sets arbitrary headers.
type HeaderAuth map[string]string

// Authenticate applies stored headers to the request.
func (h HeaderAuth) Authenticate(req *http.Request) error {
	for key, value := range h {
		req.Header.Set(key, value)
	}
	return nil
}

// Session holds the HTTP client (with its cookie jar) and the authenticator shared by
// search, credential and download requests.
type Session struct {
	client        *http.Client
	authenticator Authenticator
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithSessionHTTPClient overrides the HTTP client used by the session.
func WithSessionHTTPClient(hc *http.Client) SessionOption {
	return func(s *Session) {
		s.client = hc
	}
}

// WithSessionAuthenticator sets the session authenticator.
func WithSessionAuthenticator(auth Authenticator) SessionOption {
	return func(s *Session) {
		s.authenticator = auth
	}
}

// NewSession constructs a session with cookie jar and timeout defaults.
func NewSession(opts ...SessionOption) *Session {
	jar, _ := cookiejar.New(nil)
	session := &Session{client: &http.Client{Timeout: defaultTimeout, Jar: jar}}
	for _, opt := range opts {
		opt(session)
	}
	if session.client == nil {
		session.client = &http.Client{Timeout: defaultTimeout, Jar: jar}
	}
	return session
}

func (s *Session) authenticate(req *http.Request) error {
	if s.authenticator == nil {
		return nil
	}
	if err := s.authenticator.Authenticate(req); err != nil {
		return fmt.Errorf("asf: authenticate request: %w", err)
	}
	return nil
}
