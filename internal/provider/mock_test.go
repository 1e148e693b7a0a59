package provider

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/venuedex/enrich-cli/pkg/anthropic"
	"github.com/venuedex/enrich-cli/pkg/firecrawl"
	"github.com/venuedex/enrich-cli/pkg/places"
)

// --- Places Mock ---

type mockPlacesClient struct {
	mock.Mock
}

func (m *mockPlacesClient) TextSearch(ctx context.Context, req places.TextSearchRequest) (*places.TextSearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*places.TextSearchResponse), args.Error(1)
}

func (m *mockPlacesClient) PhotoURL(ref string, maxWidth int) string {
	args := m.Called(ref, maxWidth)
	return args.String(0)
}

// --- Firecrawl Mock ---

type mockFirecrawlClient struct {
	mock.Mock
}

func (m *mockFirecrawlClient) Search(ctx context.Context, req firecrawl.SearchRequest) (*firecrawl.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.SearchResponse), args.Error(1)
}

func (m *mockFirecrawlClient) Scrape(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.ScrapeResponse), args.Error(1)
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
