package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"horizon/internal/infrastructure/openfinance"
)

var ErrLinkNotFound = errors.New("provider link not found")

// Sealer encrypts values before they reach the table.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// LinkRepository stores each user's provider API key, encrypted.
type LinkRepository struct {
	db     *DB
	sealer Sealer
}

// Ensure LinkRepository implements openfinance.KeyResolver
var _ openfinance.KeyResolver = (*LinkRepository)(nil)

func NewLinkRepository(db *DB, sealer Sealer) *LinkRepository {
	return &LinkRepository{db: db, sealer: sealer}
}

// ProviderKey returns the decrypted key linked to userID.
func (r *LinkRepository) ProviderKey(ctx context.Context, userID string) (string, error) {
	query := `SELECT encrypted_key FROM provider_links WHERE user_id = $1`

	var sealed string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %w", openfinance.ErrNoProviderKey, ErrLinkNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query provider link: %w", err)
	}

	key, err := r.sealer.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt provider key: %w", err)
	}
	return key, nil
}

// Upsert links key to userID, replacing any existing link.
func (r *LinkRepository) Upsert(ctx context.Context, userID, key string) error {
	if key == "" {
		return openfinance.ErrNoProviderKey
	}
	sealed, err := r.sealer.Encrypt(key)
	if err != nil {
		return fmt.Errorf("failed to encrypt provider key: %w", err)
	}

	query := `
		INSERT INTO provider_links (user_id, encrypted_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET encrypted_key = EXCLUDED.encrypted_key, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, sealed); err != nil {
		return fmt.Errorf("failed to upsert provider link: %w", err)
	}
	return nil
}

// Delete unlinks userID.
func (r *LinkRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM provider_links WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete provider link: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// ListLinkedUserIDs returns every user with a provider link, oldest link
// refresh first.
func (r *LinkRepository) ListLinkedUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM provider_links ORDER BY updated_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider links: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan provider link: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider links: %w", err)
	}
	return ids, nil
}
