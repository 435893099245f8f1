package sdk

import (
	"fmt"

	"github.com/celerix-dev/celerix-pond/internal/vault"
)

// Scope pins a persona and app on any KVStore, embedded or remote.
func Scope(s KVStore, personaID, appID string) AppScope {
	return &scopedStore{store: s, personaID: personaID, appID: appID}
}

type scopedStore struct {
	store     KVStore
	personaID string
	appID     string
}

func (a *scopedStore) Set(key string, val any) error {
	return a.store.Set(a.personaID, a.appID, key, val)
}

func (a *scopedStore) Get(key string) (any, error) {
	return a.store.Get(a.personaID, a.appID, key)
}

func (a *scopedStore) Delete(key string) error {
	return a.store.Delete(a.personaID, a.appID, key)
}

// Vault returns a scope that automatically encrypts/decrypts data.
func (a *scopedStore) Vault(masterKey []byte) any {
	return &vaultScope{app: a, masterKey: masterKey}
}

type vaultScope struct {
	app       AppScope
	masterKey []byte
}

// Set encrypts locally before the value leaves the process.
func (v *vaultScope) Set(key string, plaintext string) error {
	ciphertext, err := vault.Encrypt(plaintext, v.masterKey)
	if err != nil {
		return err
	}
	return v.app.Set(key, ciphertext)
}

func (v *vaultScope) Get(key string) (string, error) {
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
