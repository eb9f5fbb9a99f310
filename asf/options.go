package asf

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/go-sarslide/asf/download"
	internalhttp "github.com/example/go-sarslide/asf/internal/http"
)

// RetryPolicy decides whether and when a failed request is retried.
type RetryPolicy = internalhttp.RetryPolicy

// NewRetryPolicy retries transport errors, 429 and 5xx responses up to maxAttempts times with
// exponential backoff starting at baseDelay.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	return internalhttp.NewRetryPolicy(maxAttempts, baseDelay)
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient allows providing a custom HTTP client implementation.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		if hc.Timeout == 0 {
			hc.Timeout = defaultTimeout
		}
		c.session.client = hc
		return nil
	}
}

// WithTimeout sets the timeout of the session HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.session.client.Timeout = d
		return nil
	}
}

// WithBaseURL overrides the default ASF API base URL.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		if raw == "" {
			return fmt.Errorf("base url cannot be empty")
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		c.baseURL = u
		return nil
	}
}

// WithUserAgent sets a custom user-agent header for outbound requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		if ua != "" {
			c.userAgent = ua
		}
		return nil
	}
}

// WithRetryPolicy sets a custom retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) error {
		if policy == nil {
			return fmt.Errorf("retry policy cannot be nil")
		}
		c.retry = policy
		return nil
	}
}

// WithAuthToken configures the bearer token used for authenticated requests.
func WithAuthToken(token string) Option {
	return WithAuthenticator(BearerToken(token))
}

// WithAuthenticator sets a custom authenticator for the client's session.
func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) error {
		c.session.authenticator = auth
		return nil
	}
}

// WithSession replaces the client's session.
func WithSession(session *Session) Option {
	return func(c *Client) error {
		if session == nil {
			return fmt.Errorf("session cannot be nil")
		}
		c.session = session
		return nil
	}
}

// WithBasicAuth sets the Earthdata Login credentials used for product downloads.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) error {
		if username == "" {
			return fmt.Errorf("username cannot be empty")
		}
		c.basicAuth = &download.BasicAuth{Username: username, Password: password}
		return nil
	}
}

// WithS3CredentialsURL sets the endpoint that hands out temporary S3 credentials for s3://
// product URLs.
func WithS3CredentialsURL(raw string) Option {
	return func(c *Client) error {
		if _, err := url.Parse(raw); err != nil || raw == "" {
			return fmt.Errorf("invalid s3 credentials url %q", raw)
		}
		c.s3cfg().credentialsURL = raw
		return nil
	}
}

// WithS3Region sets the region of the product buckets.
func WithS3Region(region string) Option {
	return func(c *Client) error {
		if region != "" {
			c.s3cfg().region = region
		}
		return nil
	}
}
