// Package vault persists exchange accounts and session tokens with secret
// fields protected at rest.
package vault

import (
	"context"
	"encoding/base64"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/replicator/pkg/logger"
	"github.com/betbot/replicator/pkg/persistence"
	"github.com/betbot/replicator/pkg/protect"
)

const (
	AccountsStoreName = "betfair-accounts"
	AccountsPurpose   = "BetfairAccountStore.v1"
)

// ErrInvalidInput marks rejected Upsert input.
var ErrInvalidInput = errors.New("vault: invalid input")

// AccountRecord is the persisted form of an account. Enc fields are opaque.
type AccountRecord struct {
	DisplayName            string    `json:"displayName"`
	AppKey                 string    `json:"appKey"`
	UsernameEnc            string    `json:"usernameEnc,omitempty"`
	PasswordEnc            string    `json:"passwordEnc,omitempty"`
	CertificateEnc         string    `json:"certificateEnc,omitempty"`
	CertificatePasswordEnc string    `json:"certificatePasswordEnc,omitempty"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// HasCredentials reports whether both username and password are stored.
func (r *AccountRecord) HasCredentials() bool {
	return r.UsernameEnc != "" && r.PasswordEnc != ""
}

// HasCertificate reports whether a certificate and its passphrase are stored.
func (r *AccountRecord) HasCertificate() bool {
	return r.CertificateEnc != "" && r.CertificatePasswordEnc != ""
}

// AccountInput is the Upsert payload. A nil optional field keeps the stored
// value; a pointer to "" clears it.
type AccountInput struct {
	DisplayName         string
	AppKey              string
	Username            *string
	Password            *string
	CertificateBase64   *string
	CertificatePassword *string
}

// SeedAccount is a statically configured (display name, app key) pair.
type SeedAccount struct {
	DisplayName string
	AppKey      string
}

// Secrets holds decrypted fields. A field that could not be decrypted is "".
type Secrets struct {
	Username            string
	Password            string
	CertificateBase64   string
	CertificatePassword string
}

type accountsDocument struct {
	Accounts map[string]AccountRecord `json:"accounts"`
}

// AccountStore is the credential vault. One mutex serializes every access
// to the backing file.
type AccountStore struct {
	mu        sync.Mutex
	store     persistence.Store
	protector *protect.Protector

	listenersMu sync.RWMutex
	listeners   []func(displayName string)
}

// NewAccountStore creates the account vault backed by <dir>/betfair-accounts.json.
func NewAccountStore(svc persistence.Service, provider *protect.Provider) (*AccountStore, error) {
	p, err := provider.For(AccountsPurpose)
	if err != nil {
		return nil, err
	}
	return &AccountStore{
		store:     svc.NewStore(AccountsStoreName),
		protector: p,
	}, nil
}

// Key normalizes a display name into the case-insensitive record key.
func Key(displayName string) string {
	return strings.ToLower(strings.TrimSpace(displayName))
}

// load 调用方持有 mu
func (s *AccountStore) load() (*accountsDocument, error) {
	doc := &accountsDocument{}
	if err := s.store.Load(doc); err != nil && !errors.Is(err, persistence.ErrNotExists) {
		return nil, errors.Wrap(err, "vault: load accounts")
	}
	if doc.Accounts == nil {
		doc.Accounts = make(map[string]AccountRecord)
	}
	return doc, nil
}

func (s *AccountStore) save(doc *accountsDocument) error {
	return errors.Wrap(s.store.Save(doc), "vault: save accounts")
}

// GetAll returns every record sorted case-insensitively by display name.
func (s *AccountStore) GetAll(ctx context.Context) ([]AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]AccountRecord, 0, len(doc.Accounts))
	for _, r := range doc.Accounts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return Key(out[i].DisplayName) < Key(out[j].DisplayName)
	})
	return out, nil
}

// Get returns the record or (nil, nil) when absent.
func (s *AccountStore) Get(ctx context.Context, displayName string) (*AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := Key(displayName)
	if key == "" {
		return nil, nil
	}

	s.mu.Lock()
	doc, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	r, ok := doc.Accounts[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Upsert creates or updates a record.
func (s *AccountStore) Upsert(ctx context.Context, in AccountInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := strings.TrimSpace(in.DisplayName)
	appKey := strings.TrimSpace(in.AppKey)
	if name == "" {
		return errors.Wrap(ErrInvalidInput, "display name is required")
	}
	if appKey == "" {
		return errors.Wrap(ErrInvalidInput, "app key is required")
	}

	var cert string
	if in.CertificateBase64 != nil {
		cert = compactBase64(*in.CertificateBase64)
		if cert != "" {
			if in.CertificatePassword == nil || *in.CertificatePassword == "" {
				return errors.Wrap(ErrInvalidInput, "certificate password is required when a certificate is supplied")
			}
			if _, err := base64.StdEncoding.DecodeString(cert); err != nil {
				return errors.Wrap(ErrInvalidInput, "certificate is not valid base64")
			}
		}
	}

	protectField := func(dst *string, v *string) error {
		if v == nil {
			return nil
		}
		if *v == "" {
			*dst = ""
			return nil
		}
		enc, err := s.protector.Protect(*v)
		if err != nil {
			return errors.Wrap(err, "vault: protect field")
		}
		*dst = enc
		return nil
	}

	s.mu.Lock()
	doc, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	key := Key(name)
	rec := doc.Accounts[key]
	rec.DisplayName = name
	rec.AppKey = appKey
	if in.CertificateBase64 != nil {
		in.CertificateBase64 = &cert
	}
	for _, f := range []struct {
		dst *string
		v   *string
	}{
		{&rec.UsernameEnc, in.Username},
		{&rec.PasswordEnc, in.Password},
		{&rec.CertificateEnc, in.CertificateBase64},
		{&rec.CertificatePasswordEnc, in.CertificatePassword},
	} {
		if err := protectField(f.dst, f.v); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	doc.Accounts[key] = rec
	err = s.save(doc)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	logger.Infof("[vault] account upserted: %s", name)
	s.notify(name)
	return nil
}

// Remove deletes a record. Removing an absent record is not an error.
func (s *AccountStore) Remove(ctx context.Context, displayName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := Key(displayName)

	s.mu.Lock()
	doc, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rec, ok := doc.Accounts[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(doc.Accounts, key)
	err = s.save(doc)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	logger.Infof("[vault] account removed: %s", rec.DisplayName)
	s.notify(rec.DisplayName)
	return nil
}

// SeedFromConfig creates absent records and backfills empty app keys. It
// never touches secret fields, and a second call with the same input
// changes nothing.
func (s *AccountStore) SeedFromConfig(ctx context.Context, seeds []SeedAccount) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}

	changed := false
	for _, seed := range seeds {
		name := strings.TrimSpace(seed.DisplayName)
		appKey := strings.TrimSpace(seed.AppKey)
		key := Key(name)
		if key == "" {
			continue
		}

		rec, ok := doc.Accounts[key]
		switch {
		case !ok:
			doc.Accounts[key] = AccountRecord{
				DisplayName: name,
				AppKey:      appKey,
				UpdatedAt:   time.Now().UTC(),
			}
			changed = true
			logger.Infof("[vault] seeded account: %s", name)
		case strings.TrimSpace(rec.AppKey) == "" && appKey != "":
			rec.AppKey = appKey
			rec.UpdatedAt = time.Now().UTC()
			doc.Accounts[key] = rec
			changed = true
			logger.Infof("[vault] backfilled app key: %s", rec.DisplayName)
		}
	}

	if !changed {
		return false, nil
	}
	return true, s.save(doc)
}

// UnprotectSecrets decrypts each secret field independently.
func (s *AccountStore) UnprotectSecrets(rec *AccountRecord) Secrets {
	if rec == nil {
		return Secrets{}
	}
	open := func(field, enc string) string {
		if enc == "" {
			return ""
		}
		v, err := s.protector.Unprotect(enc)
		if err != nil {
			logger.Warnf("[vault] %s of %s could not be decrypted: %v", field, rec.DisplayName, err)
			return ""
		}
		return v
	}
	return Secrets{
		Username:            open("username", rec.UsernameEnc),
		Password:            open("password", rec.PasswordEnc),
		CertificateBase64:   open("certificate", rec.CertificateEnc),
		CertificatePassword: open("certificate password", rec.CertificatePasswordEnc),
	}
}

// Subscribe registers a listener called after a successful Upsert or Remove.
func (s *AccountStore) Subscribe(fn func(displayName string)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *AccountStore) notify(displayName string) {
	s.listenersMu.RLock()
	listeners := append([]func(string){}, s.listeners...)
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(displayName)
	}
}

// compactBase64 drops whitespace that PEM-style line wrapping leaves behind.
func compactBase64(s string) string {
	return strings.Join(strings.Fields(s), "")
}
