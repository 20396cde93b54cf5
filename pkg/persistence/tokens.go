package persistence

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

// OAuth tokens are stored encrypted at rest with a secretbox key from the
// environment; the database file alone is not enough to read them. Real
// email/calendar providers plugging in behind the source interfaces keep
// their credentials here, keyed by config.TokenEncryptionKey.

const nonceSize = 24

// SaveToken encrypts and stores a provider's OAuth token blob.
func (o *DatabaseOperations) SaveToken(provider string, token []byte, key *[32]byte) error {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], token, &nonce, key)

	_, err := o.db.Exec(
		`INSERT INTO oauth_tokens (provider, ciphertext, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET ciphertext = excluded.ciphertext, updated_at = excluded.updated_at`,
		provider, sealed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store token for %s: %w", provider, err)
	}
	return nil
}

// LoadToken decrypts a provider's stored OAuth token. Returns ok=false when
// no token is stored.
func (o *DatabaseOperations) LoadToken(provider string, key *[32]byte) ([]byte, bool, error) {
	var sealed []byte
	err := o.db.QueryRow(
		`SELECT ciphertext FROM oauth_tokens WHERE provider = ?`, provider,
	).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load token for %s: %w", provider, err)
	}

	if len(sealed) < nonceSize {
		return nil, false, fmt.Errorf("stored token for %s is truncated", provider)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	token, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, false, fmt.Errorf("failed to decrypt token for %s: wrong key or corrupt data", provider)
	}
	return token, true, nil
}

// DeleteToken removes a provider's stored token.
func (o *DatabaseOperations) DeleteToken(provider string) error {
	if _, err := o.db.Exec(`DELETE FROM oauth_tokens WHERE provider = ?`, provider); err != nil {
		return fmt.Errorf("failed to delete token for %s: %w", provider, err)
	}
	return nil
}
