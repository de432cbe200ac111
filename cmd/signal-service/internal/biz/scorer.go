package biz

import (
	"context"
	"math"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// 评分器名称
const (
	ScorerPattern = "pattern"
	ScorerRemote  = "remote"
)

// SatisfactionScorer 满意度评分能力。本地模式评分与远端 LLM 评分
// 共享同一契约，调用方可按请求切换，实现永远返回一个合法结果。
type SatisfactionScorer interface {
	// Analyze 对整段会话文本评分，任何失败都退化为兜底结果
	Analyze(ctx context.Context, conversation string) domain.SatisfactionResult
	// Name 评分器名称
	Name() string
}

// PatternScorer 基于模式库的本地评分器
type PatternScorer struct {
	engine   *SentimentEngine
	emotions *EmotionDetector
	log      *log.Helper
}

// NewPatternScorer 创建本地评分器
func NewPatternScorer(engine *SentimentEngine, emotions *EmotionDetector, logger log.Logger) *PatternScorer {
	return &PatternScorer{
		engine:   engine,
		emotions: emotions,
		log:      log.NewHelper(log.With(logger, "module", "pattern-scorer")),
	}
}

// Analyze 同步本地评分，不会失败
func (s *PatternScorer) Analyze(_ context.Context, conversation string) domain.SatisfactionResult {
	sentiment := s.engine.Score(conversation)
	score := math.Max(0, math.Min(1, (sentiment.Compound+1)/2))

	insight := domain.FallbackInsight
	if emotions := s.emotions.Detect(conversation); len(emotions) > 0 {
		if text, ok := emotionInsights[emotions[0].Emotion]; ok {
			insight = text
		}
	}

	result := domain.SatisfactionResult{
		SentimentScore: score,
		Label:          domain.LabelForScore(score),
		Insight:        insight,
	}
	s.log.Debugf("pattern score: %.3f (%s)", result.SentimentScore, result.Label)
	return result
}

// Name 评分器名称
func (s *PatternScorer) Name() string {
	return ScorerPattern
}
