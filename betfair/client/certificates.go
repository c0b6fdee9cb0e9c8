package client

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"strings"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/betbot/replicator/internal/vault"
	"github.com/betbot/replicator/pkg/cache"
	"github.com/betbot/replicator/pkg/logger"
)

// CertificateCache builds each account's client certificate once and keeps it
// in memory for the process lifetime. Invalidate is the only way to refresh.
type CertificateCache struct {
	accounts AccountSource
	certs    *cache.InMemoryCache[string, *tls.Certificate]
}

// NewCertificateCache creates an empty cache over the account vault.
func NewCertificateCache(accounts AccountSource) *CertificateCache {
	return &CertificateCache{
		accounts: accounts,
		certs:    cache.NewInMemoryCache[string, *tls.Certificate](0),
	}
}

// Get returns the cached certificate, decoding it from the vault on first use.
func (c *CertificateCache) Get(ctx context.Context, displayName string) (*tls.Certificate, error) {
	key := vault.Key(displayName)
	if key == "" {
		return nil, newConfigurationError(CodeAccountNotFound, "display name is empty")
	}
	return c.certs.GetOrLoad(ctx, key, func(ctx context.Context) (*tls.Certificate, error) {
		return c.load(ctx, displayName)
	})
}

// Invalidate drops one account's certificate.
func (c *CertificateCache) Invalidate(displayName string) {
	c.certs.Delete(vault.Key(displayName))
}

func (c *CertificateCache) load(ctx context.Context, displayName string) (*tls.Certificate, error) {
	rec, err := c.accounts.Get(ctx, displayName)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Code: CodeAccountStore, Message: err.Error(), cause: err}
	}
	if rec == nil {
		return nil, newConfigurationError(CodeAccountNotFound, displayName)
	}

	sec := c.accounts.UnprotectSecrets(rec)
	if strings.TrimSpace(sec.CertificateBase64) == "" {
		return nil, newConfigurationError(CodeCertificateMissing, displayName)
	}
	if sec.CertificatePassword == "" {
		return nil, newConfigurationError(CodeCertificatePassword, displayName)
	}

	cert, err := DecodeCertificate(sec.CertificateBase64, sec.CertificatePassword)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Code: CodeCertificateInvalid, Message: displayName + ": " + err.Error(), cause: err}
	}
	logger.Infof("[certs] loaded certificate for %s (subject=%s, expires=%s)",
		displayName, cert.Leaf.Subject.CommonName, cert.Leaf.NotAfter.Format("2006-01-02"))
	return cert, nil
}

// DecodeCertificate decodes a base64 PKCS#12 bundle (legacy or AES encodings)
// into a TLS client certificate including any intermediate chain.
func DecodeCertificate(b64, password string) (*tls.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(b64), ""))
	if err != nil {
		return nil, err
	}
	key, leaf, chain, err := pkcs12.DecodeChain(der, password)
	if err != nil {
		return nil, err
	}
	out := &tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, ca := range chain {
		out.Certificate = append(out.Certificate, ca.Raw)
	}
	return out, nil
}
