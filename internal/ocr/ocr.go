// Package ocr extracts structured fields from scanned Korean property
// documents (building ledger, registry certificate) using the Anthropic
// vision API. Output is the loosely-typed document tree consumed by the
// document extractor, which owns all tolerant parsing.
package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config holds vision extraction settings.
type Config struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Messager is the slice of the Anthropic SDK the extractor uses; tests
// substitute a stub.
type Messager interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// VisionExtractor turns document images into field trees.
type VisionExtractor struct {
	messages  Messager
	model     string
	maxTokens int64
}

// NewVisionExtractor creates an extractor backed by the real API.
func NewVisionExtractor(cfg Config) (*VisionExtractor, error) {
	if cfg.APIKey == "" {
		return nil, eris.New("ocr: api_key not configured")
	}
	client := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return newVisionExtractor(&client.Messages, cfg), nil
}

func newVisionExtractor(m Messager, cfg Config) *VisionExtractor {
	model := cfg.Model
	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &VisionExtractor{messages: m, model: model, maxTokens: maxTokens}
}

const ledgerPrompt = `이 이미지는 한국 건축물대장입니다. 다음 JSON 구조로만 응답하세요. 읽을 수 없는 값은 null로 두세요.
{
  "building_status": {"main_usage": "주용도", "area": "전용면적", "usage_approval_date": "사용승인일", "address": "대지위치 지번주소"},
  "document_info": {"unique_number": "고유번호"},
  "safety_check": {"is_violator": "위반건축물 여부 (true/false)"}
}`

const registryPrompt = `이 이미지는 한국 등기부등본입니다. 다음 JSON 구조로만 응답하세요. 읽을 수 없는 값은 null로 두세요. debts에는 을구의 근저당권을 모두 포함하고, 말소된 항목은 status에 "말소"라고 적으세요.
{
  "basic_info": {"address": "소재지 지번주소", "owner": "소유자 성명", "ownership_date": "소유권이전일 (YYYY-MM-DD)"},
  "risk_factors": {"trust_content": "신탁 관련 기재사항"},
  "debts": [{"amount": "채권최고액 (원)", "status": "현재 상태"}]
}`

// ExtractLedger reads a building-ledger image.
func (v *VisionExtractor) ExtractLedger(ctx context.Context, image []byte, mediaType string) (map[string]any, error) {
	return v.extract(ctx, image, mediaType, ledgerPrompt)
}

// ExtractRegistry reads a property-registry image.
func (v *VisionExtractor) ExtractRegistry(ctx context.Context, image []byte, mediaType string) (map[string]any, error) {
	return v.extract(ctx, image, mediaType, registryPrompt)
}

func (v *VisionExtractor) extract(ctx context.Context, image []byte, mediaType, prompt string) (map[string]any, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	resp, err := v.messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(v.model),
		MaxTokens: v.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(
				sdk.NewImageBlockBase64(mediaType, encoded),
				sdk.NewTextBlock(prompt),
			),
		},
		Temperature: sdk.Float(0),
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: vision request")
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	raw := StripJSONFence(sb.String())

	var tree map[string]any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		zap.L().Warn("ocr: unparseable model output", zap.Int("bytes", len(raw)))
		return nil, eris.Wrap(err, "ocr: decode extraction")
	}
	return tree, nil
}

// StripJSONFence removes a surrounding markdown code fence if present.
func StripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
