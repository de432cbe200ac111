package biz

import (
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

func TestSentimentEngine_EmptyText(t *testing.T) {
	engine := NewSentimentEngine(LivelinessDeterministic, log.DefaultLogger)

	score := engine.Score("")

	assert.Equal(t, 1.0, score.Neutral)
	assert.Equal(t, 0.0, score.Positive)
	assert.Equal(t, 0.0, score.Negative)
	assert.Equal(t, 0.0, score.Compound)
}

func TestSentimentEngine_PositiveText(t *testing.T) {
	engine := NewSentimentEngine(LivelinessDeterministic, log.DefaultLogger)

	score := engine.Score("Gracias, excelente servicio!")

	// 正负中三元组应归一化
	assert.InDelta(t, 1.0, score.Positive+score.Negative+score.Neutral, 0.0001)
	assert.Greater(t, score.Compound, 0.0)
	assert.Greater(t, score.Positive, score.Negative)
}

func TestSentimentEngine_NegativeText(t *testing.T) {
	engine := NewSentimentEngine(LivelinessDeterministic, log.DefaultLogger)

	score := engine.Score("Esto es terrible, estoy muy frustrado")

	assert.Less(t, score.Compound, 0.0)
	assert.Greater(t, score.Negative, score.Positive)
	assert.GreaterOrEqual(t, score.Compound, -1.0)
}

func TestSentimentEngine_CompoundClamped(t *testing.T) {
	engine := NewSentimentEngine(LivelinessDeterministic, log.DefaultLogger)

	// 强负向文本放大后仍应落在 [-1, 1]
	score := engine.Score("terrible horrible desastre inaceptable furioso")

	assert.GreaterOrEqual(t, score.Compound, -1.0)
	assert.LessOrEqual(t, score.Compound, 1.0)
}

func TestSentimentEngine_DeterministicLiveliness(t *testing.T) {
	engine := NewSentimentEngine(LivelinessDeterministic, log.DefaultLogger)

	// 无任何模式命中的文本，同一输入必须得到同一评分
	text := "xyzzy plugh frobozz"
	first := engine.Score(text)
	second := engine.Score(text)

	assert.Equal(t, first, second)
	assert.InDelta(t, 1.0, first.Positive+first.Negative+first.Neutral, 0.0001)
}

func TestSentimentEngine_EngagementBoostsPositive(t *testing.T) {
	engine := NewSentimentEngine(LivelinessDeterministic, log.DefaultLogger)

	score := engine.Score("hola, necesito ayuda")

	// 互动性话语计入正向
	assert.Greater(t, score.Positive, 0.0)
}

func TestSentimentEngine_ExtractKeywords(t *testing.T) {
	engine := NewSentimentEngine(LivelinessDeterministic, log.DefaultLogger)

	keywords := engine.ExtractKeywords("Tengo un problema con mi tarjeta de crédito, es urgente")

	assert.NotEmpty(t, keywords)
	assert.LessOrEqual(t, len(keywords), 5)
	// 停用词和短词不应出现
	assert.NotContains(t, keywords, "de")
	assert.NotContains(t, keywords, "con")
	assert.Contains(t, keywords, "problema")
	assert.Contains(t, keywords, "tarjeta")
}
