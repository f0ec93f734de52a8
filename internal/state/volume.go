package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/llehouerou/wavesbot/internal/db"
	"github.com/llehouerou/wavesbot/internal/playback"
)

var errClosed = errors.New("settings store is closed")

// LoadVolume returns the saved volume for tenant. A write that has not been
// committed yet wins over the stored value.
func (s *Store) LoadVolume(tenant string) (int, bool, error) {
	s.saveMu.Lock()
	v, ok := s.pending[tenant]
	if !ok {
		v, ok = s.inflight[tenant]
	}
	closed := s.closed
	s.saveMu.Unlock()
	if ok {
		return v, true, nil
	}
	if closed {
		return 0, false, errClosed
	}

	var volume int
	row := s.db.QueryRow(`SELECT volume FROM tenant_settings WHERE tenant_id = ?`, tenant)
	err := row.Scan(&volume)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load volume for %q: %w", tenant, err)
	}
	return volume, true, nil
}

// SaveVolume records the volume for tenant. The write reaches the database
// after the debounce delay, on Flush or on Close.
func (s *Store) SaveVolume(tenant string, volume int) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.closed {
		return errClosed
	}
	s.pending[tenant] = volume
	s.scheduleLocked()
	return nil
}

func saveVolumes(conn *sql.DB, volumes map[string]int, now time.Time) error {
	return db.WithTx(conn, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO tenant_settings (tenant_id, volume, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(tenant_id) DO UPDATE SET
				volume = excluded.volume,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for tenant, volume := range volumes {
			if _, err := stmt.Exec(tenant, volume, now.Unix()); err != nil {
				return fmt.Errorf("save volume for %q: %w", tenant, err)
			}
		}
		return nil
	})
}

var _ playback.VolumeStore = (*Store)(nil)
