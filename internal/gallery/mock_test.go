package gallery

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/pkg/anthropic"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListImages(ctx context.Context, entityID string) ([]model.GalleryImage, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.GalleryImage), args.Error(1)
}

func (m *mockStore) AddImage(ctx context.Context, img *model.GalleryImage) error {
	args := m.Called(ctx, img)
	return args.Error(0)
}

func (m *mockStore) SetHero(ctx context.Context, entityID, imageID string) error {
	args := m.Called(ctx, entityID, imageID)
	return args.Error(0)
}

// --- Uploader Mock ---

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) GenerateContent(ctx context.Context, req anthropic.ContentRequest) (*anthropic.ContentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.ContentResponse), args.Error(1)
}

func (m *mockAnthropicClient) AnalyzeImage(ctx context.Context, req anthropic.ImageRequest) (*anthropic.ImageAnalysis, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.ImageAnalysis), args.Error(1)
}
