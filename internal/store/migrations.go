package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Assets table - one row per source video
		`CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			frames INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'new',
			retention_rate REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Classifications table - reviewer verdicts and influence spans per detection
		`CREATE TABLE IF NOT EXISTS classifications (
			asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
			timestamp_ms INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			box_left REAL NOT NULL,
			box_top REAL NOT NULL,
			box_right REAL NOT NULL,
			box_bottom REAL NOT NULL,
			hint TEXT NOT NULL,
			verdict TEXT NOT NULL CHECK(verdict IN ('confirmed', 'rejected')),
			span_start INTEGER NOT NULL,
			span_end INTEGER NOT NULL,
			span_start_ms INTEGER NOT NULL,
			span_end_ms INTEGER NOT NULL,
			PRIMARY KEY (asset_id, timestamp_ms)
		)`,

		// Manual boxes table - boxes entered during manual enhancement
		`CREATE TABLE IF NOT EXISTS manual_boxes (
			asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
			timestamp_ms INTEGER NOT NULL,
			box_left REAL NOT NULL,
			box_top REAL NOT NULL,
			box_right REAL NOT NULL,
			box_bottom REAL NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (asset_id, timestamp_ms)
		)`,

		// Tracks table - exported track documents
		`CREATE TABLE IF NOT EXISTS tracks (
			asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
			kind TEXT NOT NULL CHECK(kind IN ('corrected', 'manual')),
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (asset_id, kind)
		)`,

		// Runs table - batch run reports
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			report TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_classifications_asset_id ON classifications(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_manual_boxes_asset_id ON manual_boxes(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
