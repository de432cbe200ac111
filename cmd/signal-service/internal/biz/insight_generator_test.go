package biz

import (
	"testing"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

func positiveUserAnalysis() *domain.MessageAnalysis {
	return &domain.MessageAnalysis{
		Text:      "Gracias, excelente servicio",
		Sender:    domain.SenderUser,
		Sentiment: domain.SentimentScore{Positive: 0.8, Neutral: 0.2, Compound: 0.6},
	}
}

func TestInsightGenerator_StrongSentiment(t *testing.T) {
	generator := NewInsightGenerator(log.DefaultLogger)

	insight := generator.FromAnalysis(positiveUserAnalysis(), nil)

	assert.NotNil(t, insight)
	assert.Equal(t, "Cliente muestra satisfacción con el servicio", insight.Text)
	assert.Equal(t, domain.InsightPositive, insight.Type)
	assert.Equal(t, domain.PriorityHigh, insight.Priority)
}

func TestInsightGenerator_DeduplicatesRecent(t *testing.T) {
	generator := NewInsightGenerator(log.DefaultLogger)

	// 同一候选连续出现时只保留第一条
	first := generator.FromAnalysis(positiveUserAnalysis(), nil)
	second := generator.FromAnalysis(positiveUserAnalysis(), nil)
	third := generator.FromAnalysis(positiveUserAnalysis(), nil)

	assert.NotNil(t, first)
	assert.Nil(t, second)
	assert.Nil(t, third)
	assert.Len(t, generator.Recent(5), 1)
}

func TestInsightGenerator_AgentNegative(t *testing.T) {
	generator := NewInsightGenerator(log.DefaultLogger)

	insight := generator.FromAnalysis(&domain.MessageAnalysis{
		Text:      "respuesta inadecuada",
		Sender:    domain.SenderAgent,
		Sentiment: domain.SentimentScore{Negative: 0.9, Neutral: 0.1, Compound: -0.7},
	}, nil)

	assert.NotNil(t, insight)
	assert.Equal(t, "Respuesta del agente necesita mejora", insight.Text)
	assert.Equal(t, domain.InsightNegative, insight.Type)
}

func TestInsightGenerator_EmotionFallback(t *testing.T) {
	generator := NewInsightGenerator(log.DefaultLogger)

	// 复合得分不足阈值时落到情绪文案
	insight := generator.FromAnalysis(&domain.MessageAnalysis{
		Text:      "necesito esto urgente",
		Sender:    domain.SenderUser,
		Sentiment: domain.SentimentScore{Neutral: 1, Compound: 0.1},
		Emotions:  []domain.EmotionAnalysis{{Emotion: "urgencia", Confidence: 0.4, Intensity: 40}},
	}, nil)

	assert.NotNil(t, insight)
	assert.Equal(t, "Cliente requiere respuesta inmediata", insight.Text)
}

func TestInsightGenerator_TrendInsight(t *testing.T) {
	generator := NewInsightGenerator(log.DefaultLogger)

	insight := generator.FromAnalysis(&domain.MessageAnalysis{
		Text:      "vale",
		Sender:    domain.SenderUser,
		Sentiment: domain.SentimentScore{Neutral: 1, Compound: 0.05},
	}, []float64{50, 40, 25})

	assert.NotNil(t, insight)
	assert.Equal(t, "Tendencia negativa - intervención requerida", insight.Text)
}

func TestInsightGenerator_NoCandidate(t *testing.T) {
	generator := NewInsightGenerator(log.DefaultLogger)

	insight := generator.FromAnalysis(&domain.MessageAnalysis{
		Text:      "vale",
		Sender:    domain.SenderUser,
		Sentiment: domain.SentimentScore{Neutral: 1, Compound: 0.0},
	}, nil)

	assert.Nil(t, insight)
}

func TestInsightGenerator_ConversationInsight(t *testing.T) {
	generator := NewInsightGenerator(log.DefaultLogger)

	// 消息不足 3 条时不生成复盘洞察
	assert.Nil(t, generator.ConversationInsight(1, 0, 2))

	insight := generator.ConversationInsight(5, 1, 6)
	assert.NotNil(t, insight)
	assert.Equal(t, "Conversación con tendencia mayoritariamente positiva", insight.Text)
	assert.Equal(t, domain.InsightPositive, insight.Type)
}

func TestInsightGenerator_RecentReversed(t *testing.T) {
	generator := NewInsightGenerator(log.DefaultLogger)

	generator.FromAnalysis(positiveUserAnalysis(), nil)
	generator.ConversationInsight(1, 5, 6)

	recent := generator.Recent(5)
	assert.Len(t, recent, 2)
	// 时间倒序：最新的在前
	assert.Equal(t, "Conversación con desafíos de satisfacción detectados", recent[0].Text)
	assert.Equal(t, "Cliente muestra satisfacción con el servicio", recent[1].Text)
}
