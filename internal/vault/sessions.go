package vault

import (
	"context"
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
	SessionsStoreName = "betfair-sessions"
	SessionsPurpose   = "BetfairSessionToken.v1"
)

type sessionEntry struct {
	DisplayName string    `json:"displayName"`
	TokenEnc    string    `json:"tokenEnc"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type sessionsDocument struct {
	Sessions map[string]sessionEntry `json:"sessions"`
}

// SessionStore keeps one protected session token per account. Presence of a
// token says nothing about its validity.
type SessionStore struct {
	mu        sync.Mutex
	store     persistence.Store
	protector *protect.Protector
}

// NewSessionStore creates the session vault backed by <dir>/betfair-sessions.json.
func NewSessionStore(svc persistence.Service, provider *protect.Provider) (*SessionStore, error) {
	p, err := provider.For(SessionsPurpose)
	if err != nil {
		return nil, err
	}
	return &SessionStore{
		store:     svc.NewStore(SessionsStoreName),
		protector: p,
	}, nil
}

func (s *SessionStore) load() (*sessionsDocument, error) {
	doc := &sessionsDocument{}
	if err := s.store.Load(doc); err != nil && !errors.Is(err, persistence.ErrNotExists) {
		return nil, errors.Wrap(err, "vault: load sessions")
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]sessionEntry)
	}
	return doc, nil
}

// SetToken stores or overwrites the token for an account.
func (s *SessionStore) SetToken(ctx context.Context, displayName, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := Key(displayName)
	if key == "" {
		return errors.Wrap(ErrInvalidInput, "display name is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.Wrap(ErrInvalidInput, "token is empty")
	}
	enc, err := s.protector.Protect(token)
	if err != nil {
		return errors.Wrap(err, "vault: protect token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Sessions[key] = sessionEntry{
		DisplayName: strings.TrimSpace(displayName),
		TokenEnc:    enc,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.Save(doc); err != nil {
		return errors.Wrap(err, "vault: save sessions")
	}
	logger.Debugf("[vault] token stored for %s (%s)", displayName, logger.Redact(token))
	return nil
}

// GetToken returns ("", false) when no token is stored or it cannot be decrypted.
func (s *SessionStore) GetToken(ctx context.Context, displayName string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	key := Key(displayName)

	s.mu.Lock()
	doc, err := s.load()
	s.mu.Unlock()
	if err != nil {
		logger.Warnf("[vault] read sessions: %v", err)
		return "", false
	}
	entry, ok := doc.Sessions[key]
	if !ok || entry.TokenEnc == "" {
		return "", false
	}
	token, err := s.protector.Unprotect(entry.TokenEnc)
	if err != nil {
		logger.Warnf("[vault] token of %s could not be decrypted: %v", displayName, err)
		return "", false
	}
	return token, true
}

// RemoveToken deletes the stored token, if any.
func (s *SessionStore) RemoveToken(ctx context.Context, displayName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := Key(displayName)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Sessions[key]; !ok {
		return nil
	}
	delete(doc.Sessions, key)
	return errors.Wrap(s.store.Save(doc), "vault: save sessions")
}

// Connected lists display names holding a stored token, sorted case-insensitively.
func (s *SessionStore) Connected(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc.Sessions))
	for _, e := range doc.Sessions {
		if e.TokenEnc != "" {
			names = append(names, e.DisplayName)
		}
	}
	sort.Slice(names, func(i, j int) bool { return Key(names[i]) < Key(names[j]) })
	return names, nil
}
