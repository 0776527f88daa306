package vision

import (
	"context"
	"io"

	"github.com/vbonduro/mealsnap/internal/domain"
)

// AnalysisPrompt is the shared prompt used by all vision adapters.
const AnalysisPrompt = `この食事の写真を分析して、料理名、カロリー、PFC（タンパク質・脂質・炭水化物）を推定してください。
日本の一般的な食事として分析し、料理名は日本語で回答してください。
分析の信頼度も0-1の範囲で評価してください。できるだけ正確な数値を提供してください。
回答は次の形式のJSONオブジェクト1つだけにしてください。説明文は不要です。
{"name": "料理名", "calories": kcal, "protein": g, "fat": g, "carbs": g, "confidence": 0-1}`

// MaxTokens bounds the model response; one JSON object needs far less.
const MaxTokens = 1000

// Estimate is the nutrition a model reports for one meal photo.
type Estimate = domain.Nutrients

type Analyzer interface {
	Analyze(ctx context.Context, r io.Reader, mimeType string) (*Estimate, error)
}

// ConfigChecker is implemented by analyzers that can report missing
// configuration before any image is inspected.
type ConfigChecker interface {
	CheckConfig() error
}
