package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/promptgate/promptgate/internal/crypto"
)

// WritableSecretStore is a secret store the admin surface can also write
// to. AWS Secrets Manager is managed out of band and stays read-only here.
type WritableSecretStore interface {
	SecretStore
	PutSecret(ctx context.Context, name, value string) error
}

// PostgresSecretStore keeps secrets in the database, encrypted at rest
// with AES-GCM under the configured master key.
type PostgresSecretStore struct {
	db  *sql.DB
	enc *crypto.Encryptor
}

func NewPostgresSecretStore(db *sql.DB, masterKey string) (*PostgresSecretStore, error) {
	enc, err := crypto.NewEncryptor(masterKey)
	if err != nil {
		return nil, err
	}
	return &PostgresSecretStore{db: db, enc: enc}, nil
}

func (s *PostgresSecretStore) GetSecret(ctx context.Context, name string) (string, error) {
	var ciphertext string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM secrets WHERE name = $1`, name,
	).Scan(&ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("secret %s not found", name)
	}
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}

	value, err := s.enc.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt secret %s: %w", name, err)
	}
	return value, nil
}

func (s *PostgresSecretStore) PutSecret(ctx context.Context, name, value string) error {
	ciphertext, err := s.enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypt secret %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO secrets (name, value, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		name, ciphertext, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("put secret %s: %w", name, err)
	}
	return nil
}
