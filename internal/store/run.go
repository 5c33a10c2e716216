package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ayusman/reelcam/internal/domain"
)

// RunRepository stores batch run reports.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create stores a finalized report. An empty RunID is replaced with a fresh UUID.
func (r *RunRepository) Create(report *domain.RunReport) error {
	if report.RunID == "" {
		report.RunID = uuid.New().String()
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO runs (id, started_at, finished_at, succeeded, failed, report) VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID, report.StartedAt, report.FinishedAt, report.Summary.Succeeded, report.Summary.Failed, string(data),
	)
	return err
}

// GetByID retrieves a report by run ID.
func (r *RunRepository) GetByID(id string) (*domain.RunReport, error) {
	var data string
	err := r.db.QueryRow(`SELECT report FROM runs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeReport(data)
}

// List returns the most recent reports first, at most limit of them. limit <= 0 returns all.
func (r *RunRepository) List(limit int) ([]*domain.RunReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(`SELECT report FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.RunReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rep, err := decodeReport(data)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

func decodeReport(data string) (*domain.RunReport, error) {
	rep := &domain.RunReport{}
	if err := json.Unmarshal([]byte(data), rep); err != nil {
		return nil, fmt.Errorf("decode run report: %w", err)
	}
	return rep, nil
}
