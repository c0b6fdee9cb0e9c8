package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/betbot/replicator/internal/vault"
	"github.com/betbot/replicator/pkg/cache"
	"github.com/betbot/replicator/pkg/logger"
)

// DefaultHTTPTimeout 单次请求超时
const DefaultHTTPTimeout = 30 * time.Second

const userAgent = "replicator-betfair/1.0"

// PoolOption configures a ClientPool.
type PoolOption func(*ClientPool)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) PoolOption {
	return func(p *ClientPool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRootCAs sets the trusted server roots (system pool when nil).
func WithRootCAs(pool *x509.CertPool) PoolOption {
	return func(p *ClientPool) { p.rootCAs = pool }
}

// ClientPool keeps one long-lived mTLS client per account.
type ClientPool struct {
	certs   CertificateProvider
	timeout time.Duration
	rootCAs *x509.CertPool
	clients *cache.InMemoryCache[string, *resty.Client]
}

// NewClientPool creates an empty pool.
func NewClientPool(certs CertificateProvider, opts ...PoolOption) *ClientPool {
	p := &ClientPool{
		certs:   certs,
		timeout: DefaultHTTPTimeout,
		clients: cache.NewInMemoryCache[string, *resty.Client](0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the account's client, building it on first use. Concurrent
// first callers share one build.
func (p *ClientPool) Get(ctx context.Context, displayName string) (*resty.Client, error) {
	key := vault.Key(displayName)
	if key == "" {
		return nil, newConfigurationError(CodeAccountNotFound, "display name is empty")
	}
	return p.clients.GetOrLoad(ctx, key, func(ctx context.Context) (*resty.Client, error) {
		cert, err := p.certs.Get(ctx, displayName)
		if err != nil {
			return nil, err
		}
		logger.Debugf("[pool] building client for %s", displayName)
		return p.build(cert), nil
	})
}

// Invalidate drops an account's client and closes its idle connections.
func (p *ClientPool) Invalidate(displayName string) {
	key := vault.Key(displayName)
	if c, ok := p.clients.Get(key); ok {
		c.GetClient().CloseIdleConnections()
	}
	p.clients.Delete(key)
}

// Close closes idle connections of every client and empties the pool.
func (p *ClientPool) Close() {
	for _, c := range p.clients.Values() {
		c.GetClient().CloseIdleConnections()
	}
	p.clients.Clear()
}

func (p *ClientPool) build(cert *tls.Certificate) *resty.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			MaxVersion:   tls.VersionTLS13,
			Certificates: []tls.Certificate{*cert},
			RootCAs:      p.rootCAs,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	// 重试由网关控制（仅会话过期重试一次），传输层不重试
	return resty.NewWithClient(&http.Client{Transport: transport, Timeout: p.timeout}).
		SetTimeout(p.timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)
}
