package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/venuedex/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	slug           TEXT NOT NULL,
	name           TEXT NOT NULL,
	area           TEXT NOT NULL DEFAULT '',
	data           TEXT NOT NULL,
	hero_image_url TEXT,
	lease_expires  DATETIME,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_progress (
	entity_id  TEXT PRIMARY KEY REFERENCES entities(id),
	steps      TEXT NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL DEFAULT 'pending',
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS gallery_images (
	id             TEXT PRIMARY KEY,
	entity_id      TEXT NOT NULL REFERENCES entities(id),
	url            TEXT NOT NULL,
	source_url     TEXT NOT NULL DEFAULT '',
	alt_text       TEXT NOT NULL DEFAULT '',
	approved       INTEGER NOT NULL DEFAULT 0,
	display_order  INTEGER NOT NULL,
	quality_score  REAL,
	tags           TEXT,
	ai_description TEXT NOT NULL DEFAULT '',
	hero           INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_slug ON entities(slug);
CREATE INDEX IF NOT EXISTS idx_progress_status ON extraction_progress(status);
CREATE INDEX IF NOT EXISTS idx_gallery_entity ON gallery_images(entity_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_gallery_source
	ON gallery_images(entity_id, source_url) WHERE source_url <> '';
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Entities ---

func (s *SQLiteStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entity")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (id, slug, name, area, data, hero_image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Slug, e.Name, e.Area, string(data), e.HeroImageURL, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert entity %s", e.ID)
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, hero_image_url, created_at, updated_at FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	e.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entity")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET slug = ?, name = ?, area = ?, data = ?, updated_at = ? WHERE id = ?`,
		e.Slug, e.Name, e.Area, string(data), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entity %s", e.ID)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error) {
	query := `SELECT e.id, e.data, e.hero_image_url, e.created_at, e.updated_at
		FROM entities e
		LEFT JOIN extraction_progress p ON p.entity_id = e.id
		WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND COALESCE(p.status, 'pending') = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Area != "" {
		query += ` AND e.area = ?`
		args = append(args, filter.Area)
	}
	query += ` ORDER BY e.created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

// --- Progress ---

func (s *SQLiteStore) GetProgress(ctx context.Context, entityID string) (*model.Progress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT steps, updated_at FROM extraction_progress WHERE entity_id = ?`, entityID)

	p := &model.Progress{EntityID: entityID, Steps: map[string]model.StepState{}}
	var stepsJSON string
	err := row.Scan(&stepsJSON, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		// No record yet means every step is pending.
		return p, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get progress")
	}
	if err := json.Unmarshal([]byte(stepsJSON), &p.Steps); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal steps")
	}
	return p, nil
}

func (s *SQLiteStore) SetStepStatus(ctx context.Context, entityID, step string, state model.StepState) error {
	p, err := s.GetProgress(ctx, entityID)
	if err != nil {
		return err
	}
	p.Steps[step] = state
	p.UpdatedAt = time.Now().UTC()

	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal steps")
	}
	status := model.OverallStatus(p, model.StepOrder)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_progress (entity_id, steps, status, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(entity_id) DO UPDATE SET steps = excluded.steps,
			status = excluded.status, updated_at = excluded.updated_at`,
		entityID, string(stepsJSON), string(status), p.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: set step status %s/%s", entityID, step)
}

func (s *SQLiteStore) ResetProgress(ctx context.Context, entityID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_progress (entity_id, steps, status, updated_at)
		 VALUES (?, '{}', 'pending', ?)
		 ON CONFLICT(entity_id) DO UPDATE SET steps = '{}',
			status = 'pending', updated_at = excluded.updated_at`,
		entityID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: reset progress %s", entityID)
}

// --- Leases ---

func (s *SQLiteStore) AcquireLease(ctx context.Context, entityID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET lease_expires = ?
		 WHERE id = ? AND (lease_expires IS NULL OR lease_expires <= ?)`,
		now.Add(ttl), entityID, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: acquire lease %s", entityID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish "held by someone else" from "no such entity".
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, entityID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check entity")
	}
	return false, nil
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, entityID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entities SET lease_expires = NULL WHERE id = ?`, entityID)
	return eris.Wrapf(err, "sqlite: release lease %s", entityID)
}

// --- Gallery ---

func (s *SQLiteStore) AddImage(ctx context.Context, img *model.GalleryImage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	img.CreatedAt = time.Now().UTC()

	// Dense display order: current max + 1.
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(display_order), 0) + 1 FROM gallery_images WHERE entity_id = ?`,
		img.EntityID,
	).Scan(&img.DisplayOrder)
	if err != nil {
		return eris.Wrap(err, "sqlite: next display order")
	}

	tagsJSON, err := json.Marshal(img.Tags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tags")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO gallery_images (id, entity_id, url, source_url, alt_text, approved,
			display_order, quality_score, tags, ai_description, hero, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.EntityID, img.URL, img.SourceURL, img.AltText, img.Approved,
		img.DisplayOrder, img.QualityScore, string(tagsJSON), img.AIDescription,
		img.Hero, img.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert image for %s", img.EntityID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) ListImages(ctx context.Context, entityID string) ([]model.GalleryImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_id, url, source_url, alt_text, approved, display_order,
			quality_score, tags, ai_description, hero, created_at
		 FROM gallery_images WHERE entity_id = ? ORDER BY display_order`,
		entityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list images")
	}
	defer rows.Close()

	var out []model.GalleryImage
	for rows.Next() {
		var img model.GalleryImage
		var tagsJSON sql.NullString
		if err := rows.Scan(&img.ID, &img.EntityID, &img.URL, &img.SourceURL,
			&img.AltText, &img.Approved, &img.DisplayOrder, &img.QualityScore,
			&tagsJSON, &img.AIDescription, &img.Hero, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan image")
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &img.Tags); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal tags")
			}
		}
		out = append(out, img)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list images iterate")
}

func (s *SQLiteStore) SetHero(ctx context.Context, entityID, imageID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var url string
	err = tx.QueryRowContext(ctx,
		`SELECT url FROM gallery_images WHERE id = ? AND entity_id = ?`,
		imageID, entityID,
	).Scan(&url)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: get image")
	}

	// Exactly one hero: clear the previous flag and set the new one
	// atomically with the denormalized mirror on the entity row.
	if _, err := tx.ExecContext(ctx,
		`UPDATE gallery_images SET hero = 0 WHERE entity_id = ? AND hero = 1`, entityID); err != nil {
		return eris.Wrap(err, "sqlite: clear hero")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE gallery_images SET hero = 1 WHERE id = ?`, imageID); err != nil {
		return eris.Wrap(err, "sqlite: set hero")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET hero_image_url = ?, updated_at = ? WHERE id = ?`,
		url, time.Now().UTC(), entityID); err != nil {
		return eris.Wrap(err, "sqlite: mirror hero url")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) DeleteImage(ctx context.Context, entityID, imageID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var hero bool
	var order int
	err = tx.QueryRowContext(ctx,
		`SELECT hero, display_order FROM gallery_images WHERE id = ? AND entity_id = ?`,
		imageID, entityID,
	).Scan(&hero, &order)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: get image")
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM gallery_images WHERE id = ?`, imageID); err != nil {
		return eris.Wrap(err, "sqlite: delete image")
	}

	// Keep display order dense after removal.
	if _, err := tx.ExecContext(ctx,
		`UPDATE gallery_images SET display_order = display_order - 1
		 WHERE entity_id = ? AND display_order > ?`, entityID, order); err != nil {
		return eris.Wrap(err, "sqlite: compact display order")
	}

	if hero {
		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET hero_image_url = NULL, updated_at = ? WHERE id = ?`,
			time.Now().UTC(), entityID); err != nil {
			return eris.Wrap(err, "sqlite: clear hero mirror")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// --- helpers ---

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntity(row scannable) (*model.Entity, error) {
	var dataJSON string
	var id string
	var hero sql.NullString
	var createdAt, updatedAt time.Time

	err := row.Scan(&id, &dataJSON, &hero, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan entity")
	}

	var e model.Entity
	if err := json.Unmarshal([]byte(dataJSON), &e); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entity")
	}
	e.ID = id
	e.CreatedAt = createdAt
	e.UpdatedAt = updatedAt

	// The column is authoritative for the hero mirror.
	e.HeroImageURL = nil
	if hero.Valid && hero.String != "" {
		e.HeroImageURL = &hero.String
	}
	return &e, nil
}
