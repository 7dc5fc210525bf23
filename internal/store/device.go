package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tillsync/internal/model"
)

// DeviceConfig returns the cached device configuration and the fingerprint
// of its lock configuration. found is false if no configuration has been
// cached yet (fresh install or after a wipe).
func (s *Store) DeviceConfig(ctx context.Context) (cfg model.DeviceConfig, fingerprint string, found bool, err error) {
	var (
		lockJSON    sql.NullString
		showBalance int
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT lock, lock_fingerprint, show_member_balance FROM device_config WHERE id = 1
	`).Scan(&lockJSON, &fingerprint, &showBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeviceConfig{}, "", false, nil
	}
	if err != nil {
		return model.DeviceConfig{}, "", false, fmt.Errorf("read device config: %w", err)
	}

	cfg.ShowMemberBalance = showBalance == 1
	if lockJSON.Valid {
		var lc model.LockConfig
		if err := json.Unmarshal([]byte(lockJSON.String), &lc); err != nil {
			return model.DeviceConfig{}, "", false, fmt.Errorf("read device config: %w", err)
		}
		cfg.Lock = &lc
	}
	return cfg, fingerprint, true, nil
}

// SaveDeviceConfig overwrites the single cached configuration row.
// The lock fingerprint is computed here so the stored value always matches
// the stored lock configuration.
func (s *Store) SaveDeviceConfig(ctx context.Context, cfg model.DeviceConfig) error {
	var lockJSON sql.NullString
	if cfg.Lock != nil {
		data, err := json.Marshal(cfg.Lock)
		if err != nil {
			return fmt.Errorf("save device config: %w", err)
		}
		lockJSON = sql.NullString{String: string(data), Valid: true}
	}

	fingerprint, err := model.LockFingerprint(cfg.Lock)
	if err != nil {
		return fmt.Errorf("save device config: %w", err)
	}

	showBalance := 0
	if cfg.ShowMemberBalance {
		showBalance = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO device_config (id, lock, lock_fingerprint, show_member_balance, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			lock = excluded.lock,
			lock_fingerprint = excluded.lock_fingerprint,
			show_member_balance = excluded.show_member_balance,
			updated_at = excluded.updated_at
	`, lockJSON, fingerprint, showBalance, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save device config: %w", err)
	}
	return nil
}
