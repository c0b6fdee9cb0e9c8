package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/betbot/replicator/internal/vault"
)

type fakeAccounts struct {
	mu   sync.Mutex
	recs map[string]vault.AccountRecord
	secs map[string]vault.Secrets
	err  error
	gets atomic.Int32
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		recs: make(map[string]vault.AccountRecord),
		secs: make(map[string]vault.Secrets),
	}
}

func (f *fakeAccounts) add(name, appKey string, sec vault.Secrets) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[vault.Key(name)] = vault.AccountRecord{DisplayName: name, AppKey: appKey}
	f.secs[vault.Key(name)] = sec
}

func (f *fakeAccounts) Get(_ context.Context, displayName string) (*vault.AccountRecord, error) {
	f.gets.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[vault.Key(displayName)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeAccounts) UnprotectSecrets(rec *vault.AccountRecord) vault.Secrets {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.secs[vault.Key(rec.DisplayName)]
}

type fakeTokens struct {
	mu     sync.Mutex
	tokens map[string]string
	sets   int
	err    error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: make(map[string]string)}
}

func (f *fakeTokens) SetToken(_ context.Context, displayName, token string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.tokens[vault.Key(displayName)] = token
	return nil
}

func (f *fakeTokens) RemoveToken(_ context.Context, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, vault.Key(displayName))
	return nil
}

func (f *fakeTokens) get(displayName string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[vault.Key(displayName)]
	return tok, ok
}

// staticClients hands out one resty client wired to a mock transport.
type staticClients struct {
	client *resty.Client
	err    error
}

func (s *staticClients) Get(context.Context, string) (*resty.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

func newMockClients() (*staticClients, *httpmock.MockTransport) {
	mt := httpmock.NewMockTransport()
	return &staticClients{client: resty.New().SetTransport(mt)}, mt
}

// fakeRelogger records how many re-logins overlap.
type fakeRelogger struct {
	token    string
	err      error
	delay    time.Duration
	calls    atomic.Int32
	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeRelogger) ReLogin(context.Context, string) (string, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.inflight.Add(-1)
	return f.token, f.err
}

// newTestCertificate returns a self-signed client certificate as a base64
// PKCS#12 bundle.
func newTestCertificate(t *testing.T, commonName, password string) (string, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	bundle, err := pkcs12.Modern.Encode(key, cert, nil, password)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(bundle), cert
}
