// Package store is the durable progress/entity store. The orchestrator is
// the only writer for an entity during a run; other components read.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/venuedex/enrich-cli/internal/model"
)

// ErrNotFound is returned when an entity, progress record, or gallery
// image does not exist.
var ErrNotFound = errors.New("store: not found")

// EntityFilter selects a worklist for the batch runner. It is the only
// list-shaped query the store supports.
type EntityFilter struct {
	Status model.EntityStatus `json:"status,omitempty"`
	Area   string             `json:"area,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines persistence for entities, extraction progress, and
// galleries.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	UpdateEntity(ctx context.Context, e *model.Entity) error
	ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error)

	// Progress
	GetProgress(ctx context.Context, entityID string) (*model.Progress, error)
	SetStepStatus(ctx context.Context, entityID, step string, state model.StepState) error
	ResetProgress(ctx context.Context, entityID string) error

	// Run leases. AcquireLease returns false when another run holds a
	// live lease for the entity; expired leases are claimed silently.
	AcquireLease(ctx context.Context, entityID string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, entityID string) error

	// Gallery. AddImage assigns DisplayOrder = current max + 1. SetHero
	// clears any prior hero and mirrors the URL onto the entity record in
	// the same transaction; DeleteImage clears the mirror when the hero
	// is removed.
	AddImage(ctx context.Context, img *model.GalleryImage) error
	ListImages(ctx context.Context, entityID string) ([]model.GalleryImage, error)
	SetHero(ctx context.Context, entityID, imageID string) error
	DeleteImage(ctx context.Context, entityID, imageID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
