package orchestrator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/venuedex/enrich-cli/internal/gallery"
	"github.com/venuedex/enrich-cli/internal/model"
)

type mockGeodata struct {
	mock.Mock
}

func (m *mockGeodata) Fetch(ctx context.Context, entity *model.Entity) (*model.GeodataPayload, error) {
	args := m.Called(ctx, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GeodataPayload), args.Error(1)
}

type mockCrawl struct {
	mock.Mock
}

func (m *mockCrawl) Fetch(ctx context.Context, entity *model.Entity) (*model.CrawlPayload, error) {
	args := m.Called(ctx, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CrawlPayload), args.Error(1)
}

type mockEnhance struct {
	mock.Mock
}

func (m *mockEnhance) Fetch(ctx context.Context, entity *model.Entity) (*model.EnhancePayload, error) {
	args := m.Called(ctx, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EnhancePayload), args.Error(1)
}

type mockImages struct {
	mock.Mock
}

func (m *mockImages) Process(ctx context.Context, entity *model.Entity, candidates []gallery.Candidate) (*gallery.Result, error) {
	args := m.Called(ctx, entity, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gallery.Result), args.Error(1)
}
