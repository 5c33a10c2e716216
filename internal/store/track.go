package store

import (
	"database/sql"
	"errors"
	"time"
)

// Track kinds.
const (
	TrackCorrected = "corrected"
	TrackManual    = "manual"
)

// TrackRepository stores exported track documents, one per asset and kind.
type TrackRepository struct {
	db *sql.DB
}

// Tracks returns the track repository for this store.
func (s *Store) Tracks() *TrackRepository {
	return &TrackRepository{db: s.db}
}

// Put replaces the document of the given kind.
func (r *TrackRepository) Put(assetID, kind string, data []byte) error {
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO tracks (asset_id, kind, data, updated_at) VALUES (?, ?, ?, ?)`,
		assetID, kind, string(data), time.Now().UTC(),
	)
	return err
}

// Get returns the document of the given kind.
func (r *TrackRepository) Get(assetID, kind string) ([]byte, error) {
	var data string
	err := r.db.QueryRow(`SELECT data FROM tracks WHERE asset_id = ? AND kind = ?`, assetID, kind).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(data), nil
}
