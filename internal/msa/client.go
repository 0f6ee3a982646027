package msa

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/rsclarke/msamon/internal/logging"
	"github.com/rsclarke/msamon/internal/metrics"
)

const (
	statusReturnCodePath = "./OBJECT[@name='status']/PROPERTY[@name='return-code']"
	statusResponsePath   = "./OBJECT[@name='status']/PROPERTY[@name='response']"

	// DefaultCAFile is where the system CA bundle lives on the hosts the
	// monitor was first deployed to.
	DefaultCAFile = "/etc/pki/tls/certs/ca-bundle.crt"

	maxBodySize = 16 << 20
)

// Config holds client settings. Zero timeouts use the defaults.
type Config struct {
	VerifyTLS bool
	CAFile    string

	// APIVersion 2 sends the session key in a sessionKey header. Version 1
	// controllers expect it in a Cookie together with the username.
	APIVersion int
	Username   string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	Logger *zap.Logger
}

// Client issues requests against the management API. It holds no session
// state; every call is given the session key to use.
type Client struct {
	httpClient *http.Client
	verifyTLS  bool
	apiVersion int
	username   string
	logger     *zap.Logger
}

// NewClient builds a client. It fails only if TLS verification is enabled
// and the CA file cannot be loaded.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.APIVersion == 0 {
		cfg.APIVersion = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tlsConfig, err := newTLSConfig(cfg.VerifyTLS, cfg.CAFile)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		verifyTLS:  cfg.VerifyTLS,
		apiVersion: cfg.APIVersion,
		username:   cfg.Username,
		logger:     logger,
	}, nil
}

func newTLSConfig(verify bool, caFile string) (*tls.Config, error) {
	if !verify {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // controllers ship self-signed certificates
	}
	if caFile == "" {
		return &tls.Config{}, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// Host returns the host part of URLs for id. With certificate verification
// on, the DNS name is used so it matches the certificate.
func (c *Client) Host(id HostIdentity, t Transport) string {
	if t == TLS && c.verifyTLS && id.DNSName != "" {
		return id.DNSName
	}
	if id.Address == "" {
		return id.DNSName
	}
	return id.Address
}

// Authenticate logs in with a credential digest and returns the session key.
// A rejected login returns ErrAuthRejected; any return code other than
// authenticated or rejected is ErrMalformedResponse.
func (c *Client) Authenticate(ctx context.Context, id HostIdentity, t Transport, digest string) (string, error) {
	resp, err := c.get(ctx, id, t, "login", "/api/login/"+digest, "")
	if err != nil {
		return "", err
	}

	switch resp.ReturnCode {
	case CodeAuthenticated:
		key := strings.TrimSpace(resp.Message)
		if key == "" {
			metrics.APIRequests.WithLabelValues("login", "malformed").Inc()
			return "", fmt.Errorf("%w: login succeeded without a session key", ErrMalformedResponse)
		}
		metrics.APIRequests.WithLabelValues("login", "ok").Inc()
		return key, nil
	case CodeAuthRejected:
		metrics.APIRequests.WithLabelValues("login", "rejected").Inc()
		return "", fmt.Errorf("%w: %s", ErrAuthRejected, resp.Message)
	default:
		metrics.APIRequests.WithLabelValues("login", "malformed").Inc()
		return "", fmt.Errorf("%w: unexpected login return code %q: %s", ErrMalformedResponse, resp.ReturnCode, resp.Message)
	}
}

// FetchResource runs "show <resource>" with the given session key. A
// non-zero return code is reported as a *StatusError.
func (c *Client) FetchResource(ctx context.Context, id HostIdentity, t Transport, sessionKey, resource string) (*Response, error) {
	resource = strings.Trim(resource, "/")
	if resource == "" {
		return nil, errors.New("resource name required")
	}

	resp, err := c.get(ctx, id, t, "show", "/api/show/"+resource, sessionKey)
	if err != nil {
		return nil, err
	}
	if resp.ReturnCode != CodeSuccess {
		metrics.APIRequests.WithLabelValues("show", "failed").Inc()
		return nil, &StatusError{Code: resp.ReturnCode, Message: resp.Message}
	}
	metrics.APIRequests.WithLabelValues("show", "ok").Inc()
	return resp, nil
}

func (c *Client) get(ctx context.Context, id HostIdentity, t Transport, endpoint, path, sessionKey string) (*Response, error) {
	host := c.Host(id, t)
	if host == "" {
		return nil, errors.New("host address required")
	}
	url := t.String() + "://" + host + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setAuthHeader(req, sessionKey)

	logPath := path
	if endpoint == "login" {
		logPath = "/api/login/<digest>"
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "transport").Inc()
		c.logger.Warn("management api request failed",
			logging.Scheme(t.String()),
			logging.Host(host),
			logging.Path(logPath),
			zap.String("reason", transportReason(err)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %s: %w", ErrTransport, t, host, transportReason(err), err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "transport").Inc()
		return nil, fmt.Errorf("%w: read body from %s: %w", ErrTransport, host, err)
	}

	c.logger.Debug("management api response",
		logging.Scheme(t.String()),
		logging.Host(host),
		logging.Path(logPath),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	resp, err := ParseResponse(body)
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "malformed").Inc()
		if httpResp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("http status %d: %w", httpResp.StatusCode, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) setAuthHeader(req *http.Request, sessionKey string) {
	if sessionKey == "" {
		return
	}
	if c.apiVersion >= 2 {
		req.Header.Set("sessionKey", sessionKey)
		return
	}
	req.Header.Set("Cookie", fmt.Sprintf("wbiusername=%s; wbisessionkey=%s", c.username, sessionKey))
}

// ParseResponse parses body as an API envelope. A body that is not XML, or
// that lacks the status object's return-code or response property, is
// ErrMalformedResponse.
func ParseResponse(body []byte) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedResponse)
	}

	code := root.FindElement(statusReturnCodePath)
	if code == nil {
		return nil, fmt.Errorf("%w: missing status return-code", ErrMalformedResponse)
	}
	msg := root.FindElement(statusResponsePath)
	if msg == nil {
		return nil, fmt.Errorf("%w: missing status response", ErrMalformedResponse)
	}

	return &Response{
		ReturnCode: strings.TrimSpace(code.Text()),
		Message:    strings.TrimSpace(msg.Text()),
		Document:   doc,
	}, nil
}

func transportReason(err error) string {
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var netErr net.Error
	switch {
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr):
		return "cannot verify certificate"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "cannot connect"
	}
}
