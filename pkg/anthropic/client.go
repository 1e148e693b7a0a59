// Package anthropic wraps the Anthropic SDK behind the two capabilities the
// pipeline needs: text generation from structured facts and image analysis.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the AI enhancement operations used by the pipeline.
type Client interface {
	// GenerateContent produces description and SEO fields from facts.
	GenerateContent(ctx context.Context, req ContentRequest) (*ContentResponse, error)
	// AnalyzeImage scores and describes a gallery candidate image.
	AnalyzeImage(ctx context.Context, req ImageRequest) (*ImageAnalysis, error)
}

// ContentRequest carries the structured facts for text generation.
type ContentRequest struct {
	Model      string
	MaxTokens  int64
	EntityName string
	Category   string // restaurant, hotel, mall, attraction, school, fitness
	Facts      map[string]string
}

// ContentResponse holds generated content fields plus the verbatim model
// output for audit.
type ContentResponse struct {
	Description      string   `json:"description"`
	ShortDescription string   `json:"short_description"`
	SEOTitle         string   `json:"seo_title"`
	SEODescription   string   `json:"seo_description"`
	SEOKeywords      []string `json:"seo_keywords"`

	Usage TokenUsage      `json:"-"`
	Raw   json.RawMessage `json:"-"`
}

// ImageRequest carries one image for analysis.
type ImageRequest struct {
	Model      string
	MaxTokens  int64
	MediaType  string // e.g. "image/jpeg"
	Data       []byte
	EntityName string
}

// ImageAnalysis is the vision result for a gallery candidate.
type ImageAnalysis struct {
	QualityScore  float64  `json:"quality_score"` // 0.0-1.0
	AltText       string   `json:"alt_text"`
	SuggestedName string   `json:"suggested_name"`
	Tags          []string `json:"tags"`
	HeroSuitable  bool     `json:"hero_suitable"`

	Usage TokenUsage      `json:"-"`
	Raw   json.RawMessage `json:"-"`
}

// TokenUsage tracks token consumption for cost attribution.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// LogCost logs token usage with structured fields for billing analysis.
func (u TokenUsage) LogCost(model, step string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("step", step),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
	)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new Anthropic client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

const contentSystem = `You write concise, factual directory listings. Respond
with a single JSON object: {"description", "short_description", "seo_title",
"seo_description", "seo_keywords"}. Never invent facts that are not given.`

func (c *sdkClient) GenerateContent(ctx context.Context, req ContentRequest) (*ContentResponse, error) {
	prompt := buildContentPrompt(req)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens(req.MaxTokens, 1024),
		System:    []sdk.TextBlockParam{{Text: contentSystem}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: generate content")
	}

	text := firstText(msg)
	var out ContentResponse
	if err := json.Unmarshal(ExtractJSON(text), &out); err != nil {
		return nil, eris.Wrap(err, "anthropic: parse content response")
	}
	out.Raw = json.RawMessage(text)
	out.Usage = usageOf(msg)

	return &out, nil
}

const imageSystem = `You assess photos for a business-directory gallery.
Respond with a single JSON object: {"quality_score" (0.0-1.0), "alt_text",
"suggested_name" (short lowercase file stem), "tags", "hero_suitable"}.`

func (c *sdkClient) AnalyzeImage(ctx context.Context, req ImageRequest) (*ImageAnalysis, error) {
	if len(req.Data) == 0 {
		return nil, eris.New("anthropic: empty image data")
	}

	encoded := base64.StdEncoding.EncodeToString(req.Data)
	prompt := fmt.Sprintf("Assess this photo of %q for the listing gallery.", req.EntityName)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens(req.MaxTokens, 512),
		System:    []sdk.TextBlockParam{{Text: imageSystem}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(
				sdk.NewImageBlockBase64(req.MediaType, encoded),
				sdk.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: analyze image")
	}

	text := firstText(msg)
	var out ImageAnalysis
	if err := json.Unmarshal(ExtractJSON(text), &out); err != nil {
		return nil, eris.Wrap(err, "anthropic: parse image analysis")
	}
	out.Raw = json.RawMessage(text)
	out.Usage = usageOf(msg)

	return &out, nil
}

func buildContentPrompt(req ContentRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write listing content for %q", req.EntityName)
	if req.Category != "" {
		fmt.Fprintf(&b, " (%s)", req.Category)
	}
	b.WriteString(".\n\nKnown facts:\n")
	for key, val := range req.Facts {
		if strings.TrimSpace(val) == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", key, val)
	}
	return b.String()
}

func firstText(msg *sdk.Message) string {
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}

func usageOf(msg *sdk.Message) TokenUsage {
	return TokenUsage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
}

func maxTokens(requested, fallback int64) int64 {
	if requested > 0 {
		return requested
	}
	return fallback
}
