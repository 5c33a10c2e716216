package store

import (
	"database/sql"

	"github.com/ayusman/reelcam/internal/classify"
	"github.com/ayusman/reelcam/internal/geom"
	"github.com/ayusman/reelcam/internal/review"
	"github.com/ayusman/reelcam/internal/track"
)

// ClassificationRepository stores reviewed detections per asset.
type ClassificationRepository struct {
	db *sql.DB
}

// Classifications returns the classification repository for this store.
func (s *Store) Classifications() *ClassificationRepository {
	return &ClassificationRepository{db: s.db}
}

// Save upserts classifications for an asset in a single transaction.
func (r *ClassificationRepository) Save(assetID string, classes []classify.Classification) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO classifications
		 (asset_id, timestamp_ms, ordinal, box_left, box_top, box_right, box_bottom, hint, verdict,
		  span_start, span_end, span_start_ms, span_end_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range classes {
		if _, err := stmt.Exec(
			assetID, c.Timestamp, c.Ordinal, c.Box.Left, c.Box.Top, c.Box.Right, c.Box.Bottom,
			c.Hint.String(), string(c.Verdict),
			c.Span.Start, c.Span.End, c.Span.StartTS, c.Span.EndTS,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListByAsset returns the stored classifications of an asset keyed by timestamp.
func (r *ClassificationRepository) ListByAsset(assetID string) (map[int64]classify.Classification, error) {
	rows, err := r.db.Query(
		`SELECT timestamp_ms, ordinal, box_left, box_top, box_right, box_bottom, hint, verdict,
		        span_start, span_end, span_start_ms, span_end_ms
		 FROM classifications
		 WHERE asset_id = ?
		 ORDER BY timestamp_ms`,
		assetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]classify.Classification)
	for rows.Next() {
		var c classify.Classification
		var hint, verdict string
		if err := rows.Scan(
			&c.Timestamp, &c.Ordinal, &c.Box.Left, &c.Box.Top, &c.Box.Right, &c.Box.Bottom, &hint, &verdict,
			&c.Span.Start, &c.Span.End, &c.Span.StartTS, &c.Span.EndTS,
		); err != nil {
			return nil, err
		}
		c.Hint = parseHint(hint)
		c.Verdict = classify.Verdict(verdict)
		out[c.Timestamp] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByAsset removes every classification of an asset.
func (r *ClassificationRepository) DeleteByAsset(assetID string) error {
	_, err := r.db.Exec(`DELETE FROM classifications WHERE asset_id = ?`, assetID)
	return err
}

func parseHint(s string) review.Hint {
	if s == review.LikelyIncorrect.String() {
		return review.LikelyIncorrect
	}
	return review.LikelyCorrect
}

// ManualBoxRepository stores boxes entered during manual enhancement.
type ManualBoxRepository struct {
	db *sql.DB
}

// ManualBoxes returns the manual box repository for this store.
func (s *Store) ManualBoxes() *ManualBoxRepository {
	return &ManualBoxRepository{db: s.db}
}

// Save upserts every sample of boxes for an asset.
func (r *ManualBoxRepository) Save(assetID string, boxes *track.Boxes) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO manual_boxes (asset_id, timestamp_ms, box_left, box_top, box_right, box_bottom)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range boxes.Samples() {
		b := s.Value
		if _, err := stmt.Exec(assetID, s.Timestamp, b.Left, b.Top, b.Right, b.Bottom); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load returns the manual boxes of an asset as a path. An asset without boxes yields an empty path.
func (r *ManualBoxRepository) Load(assetID string) (*track.Boxes, error) {
	rows, err := r.db.Query(
		`SELECT timestamp_ms, box_left, box_top, box_right, box_bottom
		 FROM manual_boxes WHERE asset_id = ? ORDER BY timestamp_ms`,
		assetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []track.Sample[geom.Box]
	for rows.Next() {
		var s track.Sample[geom.Box]
		if err := rows.Scan(&s.Timestamp, &s.Value.Left, &s.Value.Top, &s.Value.Right, &s.Value.Bottom); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return track.NewPath(samples), nil
}

// DeleteByAsset removes every manual box of an asset.
func (r *ManualBoxRepository) DeleteByAsset(assetID string) error {
	_, err := r.db.Exec(`DELETE FROM manual_boxes WHERE asset_id = ?`, assetID)
	return err
}
