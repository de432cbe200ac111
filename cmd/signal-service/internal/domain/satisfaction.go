package domain

import "fmt"

// SatisfactionLabel 满意度标签，与前端展示约定保持西语取值
type SatisfactionLabel string

const (
	LabelNegative SatisfactionLabel = "negativo"
	LabelNeutral  SatisfactionLabel = "neutral"
	LabelPositive SatisfactionLabel = "positivo"
)

// MaxInsightLength insight 字段的最大长度（1 行）
const MaxInsightLength = 100

// FallbackInsight 任何评分失败时的固定兜底洞察
const FallbackInsight = "No significant change detected."

// SatisfactionResult 本地与远端评分器共享的统一契约
type SatisfactionResult struct {
	SentimentScore float64           `json:"sentiment_score"` // [0,1]
	Label          SatisfactionLabel `json:"label"`
	Insight        string            `json:"insight"`
}

// FallbackResult 固定兜底结果，远端失败时原样返回，绝不向上抛错
func FallbackResult() SatisfactionResult {
	return SatisfactionResult{
		SentimentScore: 0.5,
		Label:          LabelNeutral,
		Insight:        FallbackInsight,
	}
}

// Validate 校验评分结果是否满足契约
func (r SatisfactionResult) Validate() error {
	if r.SentimentScore < 0 || r.SentimentScore > 1 {
		return fmt.Errorf("sentiment_score %.3f out of range [0,1]", r.SentimentScore)
	}
	switch r.Label {
	case LabelNegative, LabelNeutral, LabelPositive:
	default:
		return fmt.Errorf("invalid label %q", r.Label)
	}
	if r.Insight == "" || len(r.Insight) > MaxInsightLength {
		return fmt.Errorf("insight must be a non-empty string of at most %d chars", MaxInsightLength)
	}
	return nil
}

// LabelForScore 按 0-1 得分映射标签
func LabelForScore(score float64) SatisfactionLabel {
	switch {
	case score < 0.4:
		return LabelNegative
	case score > 0.6:
		return LabelPositive
	default:
		return LabelNeutral
	}
}
