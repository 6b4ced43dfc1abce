package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Settings keys used by the subsystem itself. Callers may store their
// own keys alongside these.
const (
	SettingAuthToken = "auth_token"
	SettingUserID    = "user_id"
)

// GetSetting retrieves a settings value. Returns ErrNotFound if the key
// was never set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a settings value. Deleting an absent key is a
// no-op.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// GetSettingJSON decodes a JSON settings value into out.
func (s *Store) GetSettingJSON(ctx context.Context, key string, out any) error {
	value, err := s.GetSetting(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return nil
}

// SetSettingJSON encodes value as JSON and stores it under key.
func (s *Store) SetSettingJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	return s.SetSetting(ctx, key, string(data))
}
