package engine

import (
	"fmt"

	"github.com/celerix-dev/celerix-pond/internal/vault"
)

// App returns a scope pinned to one persona and app.
func (m *MemStore) App(personaID, appID string) *AppScope {
	return &AppScope{store: m, personaID: personaID, appID: appID}
}

// AppScope is the embedded counterpart of the SDK's remote app scope.
type AppScope struct {
	store     *MemStore
	personaID string
	appID     string
}

func (a *AppScope) Get(key string) (any, error) {
	return a.store.Get(a.personaID, a.appID, key)
}

func (a *AppScope) Set(key string, val any) error {
	return a.store.Set(a.personaID, a.appID, key, val)
}

func (a *AppScope) Delete(key string) error {
	return a.store.Delete(a.personaID, a.appID, key)
}

// Vault returns a scope that encrypts values before they reach the store.
// It returns any to satisfy the SDK AppScope interface.
func (a *AppScope) Vault(masterKey []byte) any {
	return &VaultScope{app: a, masterKey: masterKey}
}

// VaultScope encrypts on Set and decrypts on Get.
type VaultScope struct {
	app       *AppScope
	masterKey []byte
}

func (v *VaultScope) Set(key string, plaintext string) error {
	ciphertext, err := vault.Encrypt(plaintext, v.masterKey)
	if err != nil {
		return err
	}
	return v.app.Set(key, ciphertext)
}

func (v *VaultScope) Get(key string) (string, error) {
	val, err := v.app.Get(key)
	if err != nil {
		return "", err
	}
	ciphertext, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("vault data is not a string")
	}
	return vault.Decrypt(ciphertext, v.masterKey)
}
