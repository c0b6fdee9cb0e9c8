package client

import (
	"context"
	"crypto/tls"

	"github.com/go-resty/resty/v2"

	"github.com/betbot/replicator/internal/vault"
)

// AccountSource is the read side of the credential vault.
type AccountSource interface {
	Get(ctx context.Context, displayName string) (*vault.AccountRecord, error)
	UnprotectSecrets(rec *vault.AccountRecord) vault.Secrets
}

// TokenStore is the write side of the session vault.
type TokenStore interface {
	SetToken(ctx context.Context, displayName, token string) error
	RemoveToken(ctx context.Context, displayName string) error
}

// CertificateProvider materializes an account's client certificate.
type CertificateProvider interface {
	Get(ctx context.Context, displayName string) (*tls.Certificate, error)
}

// ClientProvider hands out the per-account mTLS HTTP client.
type ClientProvider interface {
	Get(ctx context.Context, displayName string) (*resty.Client, error)
}

// Relogger re-authenticates an account from stored credentials and returns the new token.
type Relogger interface {
	ReLogin(ctx context.Context, displayName string) (string, error)
}
