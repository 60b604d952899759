package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Setting reads <settings_prefix><key> from the settings table.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT `value` FROM "+s.d.settings()+" WHERE `key` = ?", s.settingsPrefix+key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value.String, value.Valid, nil
}

// PutSetting writes a setting in a standalone database.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	if !s.d.ownsHostTables {
		return fmt.Errorf("settings are managed by the forum database")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO "+s.d.settings()+" (`key`, `value`) VALUES (?, ?) ON CONFLICT(`key`) DO UPDATE SET `value` = excluded.`value`",
		s.settingsPrefix+key, value)
	return err
}
