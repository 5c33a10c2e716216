package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// AssetStatus tracks how far an asset has progressed.
type AssetStatus string

const (
	AssetStatusNew      AssetStatus = "new"
	AssetStatusReviewed AssetStatus = "reviewed"
	AssetStatusRendered AssetStatus = "rendered"
	AssetStatusFailed   AssetStatus = "failed"
)

// Asset represents one source video.
type Asset struct {
	ID            string      `json:"id"`
	Path          string      `json:"path"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	Frames        int         `json:"frames"`
	Status        AssetStatus `json:"status"`
	RetentionRate float64     `json:"retention_rate"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// AssetRepository provides CRUD operations for assets.
type AssetRepository struct {
	db *sql.DB
}

// Assets returns the asset repository for this store.
func (s *Store) Assets() *AssetRepository {
	return &AssetRepository{db: s.db}
}

const assetColumns = `id, path, width, height, frames, status, retention_rate, created_at, updated_at`

// Create inserts a new asset. An empty ID is replaced with a fresh UUID.
func (r *AssetRepository) Create(a *Asset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = AssetStatusNew
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Path, a.Width, a.Height, a.Frames, string(a.Status), a.RetentionRate, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// Ensure returns the asset stored for path, creating it when absent.
func (r *AssetRepository) Ensure(path string) (*Asset, error) {
	a, err := r.GetByPath(path)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	a = &Asset{Path: path}
	if err := r.Create(a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an asset by its ID.
func (r *AssetRepository) GetByID(id string) (*Asset, error) {
	return r.scanOne(r.db.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id))
}

// GetByPath retrieves an asset by its source path.
func (r *AssetRepository) GetByPath(path string) (*Asset, error) {
	return r.scanOne(r.db.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE path = ?`, path))
}

// List retrieves all assets ordered by path.
func (r *AssetRepository) List() ([]*Asset, error) {
	rows, err := r.db.Query(`SELECT ` + assetColumns + ` FROM assets ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

// Update stores the mutable fields of a.
func (r *AssetRepository) Update(a *Asset) error {
	a.UpdatedAt = time.Now().UTC()

	result, err := r.db.Exec(
		`UPDATE assets SET width = ?, height = ?, frames = ?, status = ?, retention_rate = ?, updated_at = ?
		 WHERE id = ?`,
		a.Width, a.Height, a.Frames, string(a.Status), a.RetentionRate, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes an asset and everything recorded for it.
func (r *AssetRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *AssetRepository) scanOne(row *sql.Row) (*Asset, error) {
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(s scanner) (*Asset, error) {
	a := &Asset{}
	var status string
	if err := s.Scan(&a.ID, &a.Path, &a.Width, &a.Height, &a.Frames, &status, &a.RetentionRate, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = AssetStatus(status)
	return a, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
