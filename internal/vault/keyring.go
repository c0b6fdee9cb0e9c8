package vault

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/betbot/replicator/pkg/config"
	"github.com/betbot/replicator/pkg/logger"
	"github.com/betbot/replicator/pkg/protect"
	"github.com/betbot/replicator/pkg/secretstore"
)

const (
	keyringDirName = "keyring.badger"

	rootKeyName = "protect/root.v1"
	saltKeyName = "protect/salt.v1"
)

// OpenProvider resolves the root protection key.
//
// Order: an explicit keyring key, then a passphrase (Argon2id, salt kept in
// the key ring), then a random root key generated once and kept in the key
// ring under dataDir.
func OpenProvider(dataDir string, secrets config.SecretsConfig) (*protect.Provider, error) {
	if raw := strings.TrimSpace(secrets.KeyringKey); raw != "" {
		key, err := secretstore.ParseKey(raw)
		if err != nil {
			return nil, errors.Wrap(err, "vault: invalid keyring key")
		}
		logger.Infof("[vault] protection key: configured keyring key")
		return protect.NewProvider(key)
	}

	store, err := secretstore.Open(secretstore.OpenOptions{Path: filepath.Join(dataDir, keyringDirName)})
	if err != nil {
		return nil, errors.Wrap(err, "vault: open key ring")
	}
	defer store.Close()

	if pass := secrets.Passphrase; pass != "" {
		salt, err := store.LoadOrCreateKey(saltKeyName)
		if err != nil {
			return nil, errors.Wrap(err, "vault: load salt")
		}
		key, err := protect.DeriveKeyFromPassphrase([]byte(pass), salt)
		if err != nil {
			return nil, errors.Wrap(err, "vault: derive key")
		}
		logger.Infof("[vault] protection key: passphrase")
		return protect.NewProvider(key)
	}

	key, err := store.LoadOrCreateKey(rootKeyName)
	if err != nil {
		return nil, errors.Wrap(err, "vault: load root key")
	}
	logger.Infof("[vault] protection key: key ring %s", filepath.Join(dataDir, keyringDirName))
	return protect.NewProvider(key)
}
