package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/venuedex/enrich-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store depends on, narrowed so
// tests can substitute a mock connection.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths of a batch run.
var preparedStatements = map[string]string{
	"get_entity":    `SELECT id, data, hero_image_url, created_at, updated_at FROM entities WHERE id = $1`,
	"get_progress":  `SELECT steps, updated_at FROM extraction_progress WHERE entity_id = $1`,
	"acquire_lease": `UPDATE entities SET lease_expires = $1 WHERE id = $2 AND (lease_expires IS NULL OR lease_expires <= $3)`,
	"release_lease": `UPDATE entities SET lease_expires = NULL WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug           TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL,
	area           TEXT NOT NULL DEFAULT '',
	data           JSONB NOT NULL,
	hero_image_url TEXT,
	lease_expires  TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_progress (
	entity_id  TEXT PRIMARY KEY REFERENCES entities(id),
	steps      JSONB NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL DEFAULT 'pending',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS gallery_images (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	entity_id      TEXT NOT NULL REFERENCES entities(id),
	url            TEXT NOT NULL,
	source_url     TEXT NOT NULL DEFAULT '',
	alt_text       TEXT NOT NULL DEFAULT '',
	approved       BOOLEAN NOT NULL DEFAULT false,
	display_order  INTEGER NOT NULL,
	quality_score  DOUBLE PRECISION,
	tags           JSONB,
	ai_description TEXT NOT NULL DEFAULT '',
	hero           BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_progress_status ON extraction_progress(status);
CREATE INDEX IF NOT EXISTS idx_gallery_entity ON gallery_images(entity_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_gallery_source
	ON gallery_images(entity_id, source_url) WHERE source_url <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_gallery_hero
	ON gallery_images(entity_id) WHERE hero;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Entities ---

func (s *PostgresStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entity")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (id, slug, name, area, data, hero_image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Slug, e.Name, e.Area, data, e.HeroImageURL, now, now,
	)
	return eris.Wrapf(err, "postgres: insert entity %s", e.ID)
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	var dataJSON []byte
	var entityID string
	var hero *string
	var createdAt, updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, data, hero_image_url, created_at, updated_at FROM entities WHERE id = $1`, id,
	).Scan(&entityID, &dataJSON, &hero, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	return decodeEntity(entityID, dataJSON, hero, createdAt, updatedAt)
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	e.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entity")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET slug = $1, name = $2, area = $3, data = $4, updated_at = $5 WHERE id = $6`,
		e.Slug, e.Name, e.Area, data, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entity %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error) {
	query := `SELECT e.id, e.data, e.hero_image_url, e.created_at, e.updated_at
		FROM entities e
		LEFT JOIN extraction_progress p ON p.entity_id = e.id
		WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND COALESCE(p.status, 'pending') = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Area != "" {
		query += fmt.Sprintf(` AND e.area = $%d`, argIdx)
		args = append(args, filter.Area)
		argIdx++
	}
	query += ` ORDER BY e.created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var dataJSON []byte
		var id string
		var hero *string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&id, &dataJSON, &hero, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		e, err := decodeEntity(id, dataJSON, hero, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

// --- Progress ---

func (s *PostgresStore) GetProgress(ctx context.Context, entityID string) (*model.Progress, error) {
	p := &model.Progress{EntityID: entityID, Steps: map[string]model.StepState{}}
	var stepsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT steps, updated_at FROM extraction_progress WHERE entity_id = $1`, entityID,
	).Scan(&stepsJSON, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get progress")
	}
	if err := json.Unmarshal(stepsJSON, &p.Steps); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal steps")
	}
	return p, nil
}

func (s *PostgresStore) SetStepStatus(ctx context.Context, entityID, step string, state model.StepState) error {
	p, err := s.GetProgress(ctx, entityID)
	if err != nil {
		return err
	}
	p.Steps[step] = state
	p.UpdatedAt = time.Now().UTC()

	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal steps")
	}
	status := model.OverallStatus(p, model.StepOrder)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_progress (entity_id, steps, status, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity_id) DO UPDATE SET steps = $2, status = $3, updated_at = $4`,
		entityID, stepsJSON, string(status), p.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: set step status %s/%s", entityID, step)
}

func (s *PostgresStore) ResetProgress(ctx context.Context, entityID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_progress (entity_id, steps, status, updated_at)
		 VALUES ($1, '{}', 'pending', $2)
		 ON CONFLICT (entity_id) DO UPDATE SET steps = '{}', status = 'pending', updated_at = $2`,
		entityID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: reset progress %s", entityID)
}

// --- Leases ---

func (s *PostgresStore) AcquireLease(ctx context.Context, entityID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET lease_expires = $1
		 WHERE id = $2 AND (lease_expires IS NULL OR lease_expires <= $3)`,
		now.Add(ttl), entityID, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: acquire lease %s", entityID)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var one int
	err = s.pool.QueryRow(ctx, `SELECT 1 FROM entities WHERE id = $1`, entityID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: check entity")
	}
	return false, nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, entityID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE entities SET lease_expires = NULL WHERE id = $1`, entityID)
	return eris.Wrapf(err, "postgres: release lease %s", entityID)
}

// --- Gallery ---

func (s *PostgresStore) AddImage(ctx context.Context, img *model.GalleryImage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	img.CreatedAt = time.Now().UTC()

	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(display_order), 0) + 1 FROM gallery_images WHERE entity_id = $1`,
		img.EntityID,
	).Scan(&img.DisplayOrder)
	if err != nil {
		return eris.Wrap(err, "postgres: next display order")
	}

	tagsJSON, err := json.Marshal(img.Tags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tags")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO gallery_images (id, entity_id, url, source_url, alt_text, approved,
			display_order, quality_score, tags, ai_description, hero, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		img.ID, img.EntityID, img.URL, img.SourceURL, img.AltText, img.Approved,
		img.DisplayOrder, img.QualityScore, tagsJSON, img.AIDescription,
		img.Hero, img.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert image for %s", img.EntityID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) ListImages(ctx context.Context, entityID string) ([]model.GalleryImage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_id, url, source_url, alt_text, approved, display_order,
			quality_score, tags, ai_description, hero, created_at
		 FROM gallery_images WHERE entity_id = $1 ORDER BY display_order`,
		entityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list images")
	}
	defer rows.Close()

	var out []model.GalleryImage
	for rows.Next() {
		var img model.GalleryImage
		var tagsJSON []byte
		if err := rows.Scan(&img.ID, &img.EntityID, &img.URL, &img.SourceURL,
			&img.AltText, &img.Approved, &img.DisplayOrder, &img.QualityScore,
			&tagsJSON, &img.AIDescription, &img.Hero, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan image")
		}
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &img.Tags); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal tags")
			}
		}
		out = append(out, img)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list images iterate")
}

func (s *PostgresStore) SetHero(ctx context.Context, entityID, imageID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var url string
	err = tx.QueryRow(ctx,
		`SELECT url FROM gallery_images WHERE id = $1 AND entity_id = $2`,
		imageID, entityID,
	).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrap(err, "postgres: get image")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE gallery_images SET hero = false WHERE entity_id = $1 AND hero`, entityID); err != nil {
		return eris.Wrap(err, "postgres: clear hero")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE gallery_images SET hero = true WHERE id = $1`, imageID); err != nil {
		return eris.Wrap(err, "postgres: set hero")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE entities SET hero_image_url = $1, updated_at = $2 WHERE id = $3`,
		url, time.Now().UTC(), entityID); err != nil {
		return eris.Wrap(err, "postgres: mirror hero url")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) DeleteImage(ctx context.Context, entityID, imageID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var hero bool
	var order int
	err = tx.QueryRow(ctx,
		`SELECT hero, display_order FROM gallery_images WHERE id = $1 AND entity_id = $2`,
		imageID, entityID,
	).Scan(&hero, &order)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrap(err, "postgres: get image")
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM gallery_images WHERE id = $1`, imageID); err != nil {
		return eris.Wrap(err, "postgres: delete image")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE gallery_images SET display_order = display_order - 1
		 WHERE entity_id = $1 AND display_order > $2`, entityID, order); err != nil {
		return eris.Wrap(err, "postgres: compact display order")
	}
	if hero {
		if _, err := tx.Exec(ctx,
			`UPDATE entities SET hero_image_url = NULL, updated_at = $1 WHERE id = $2`,
			time.Now().UTC(), entityID); err != nil {
			return eris.Wrap(err, "postgres: clear hero mirror")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func decodeEntity(id string, dataJSON []byte, hero *string, createdAt, updatedAt time.Time) (*model.Entity, error) {
	var e model.Entity
	if err := json.Unmarshal(dataJSON, &e); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entity")
	}
	e.ID = id
	e.CreatedAt = createdAt
	e.UpdatedAt = updatedAt
	e.HeroImageURL = nil
	if hero != nil && *hero != "" {
		e.HeroImageURL = hero
	}
	return &e, nil
}
