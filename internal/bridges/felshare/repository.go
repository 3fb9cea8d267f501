package felshare

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// instanceKey is the installation row holding the client id disambiguator.
const instanceKey = "mqtt_client_instance"

// SQLiteSyncRepository stores learned sync payloads in the sync_payloads
// table and installation facts in the installation table.
type SQLiteSyncRepository struct {
	db *sql.DB
}

// NewSQLiteSyncRepository creates a repository over an open, migrated DB.
func NewSQLiteSyncRepository(db *sql.DB) *SQLiteSyncRepository {
	return &SQLiteSyncRepository{db: db}
}

// LoadSyncPayload returns the stored payload for deviceID, or nil.
func (r *SQLiteSyncRepository) LoadSyncPayload(ctx context.Context, deviceID string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM sync_payloads WHERE device_id = ?", deviceID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading sync payload: %w", err)
	}
	return payload, nil
}

// SaveSyncPayload inserts or replaces the payload for deviceID.
func (r *SQLiteSyncRepository) SaveSyncPayload(ctx context.Context, deviceID string, payload []byte) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidInput)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: sync payload is empty", ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_payloads (device_id, payload, learned_at) VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET payload = excluded.payload, learned_at = excluded.learned_at`,
		deviceID, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving sync payload: %w", err)
	}
	return nil
}

// LoadOrCreateInstanceID returns this installation's client id
// disambiguator, generating and storing one on first use.
func (r *SQLiteSyncRepository) LoadOrCreateInstanceID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM installation WHERE key = ?", instanceKey).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("loading instance id: %w", err)
	}

	id = uuid.NewString()
	if _, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO installation (key, value, created_at) VALUES (?, ?, ?)",
		instanceKey, id, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return "", fmt.Errorf("storing instance id: %w", err)
	}

	// Re-read in case another writer won the insert.
	if err := r.db.QueryRowContext(ctx, "SELECT value FROM installation WHERE key = ?", instanceKey).Scan(&id); err != nil {
		return "", fmt.Errorf("loading instance id: %w", err)
	}
	return id, nil
}
