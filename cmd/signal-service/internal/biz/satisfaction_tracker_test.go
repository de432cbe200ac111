package biz

import (
	"testing"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestTracker(clock *fakeClock) *SatisfactionTracker {
	logger := log.DefaultLogger
	tracker := NewSatisfactionTracker(
		NewSentimentEngine(LivelinessDeterministic, logger),
		NewEmotionDetector(logger),
		NewInsightGenerator(logger),
		logger,
	)
	tracker.now = clock.Now
	tracker.startTime = clock.Now()
	return tracker
}

func TestSatisfactionTracker_NeutralPrior(t *testing.T) {
	tracker := newTestTracker(newFakeClock())

	assert.Equal(t, 50.0, tracker.CurrentScore())

	metrics := tracker.Metrics()
	assert.Equal(t, 50.0, metrics.CurrentScore)
	assert.Equal(t, domain.TrendStable, metrics.Trend)
	assert.Nil(t, metrics.LastAnalysis)
}

func TestSatisfactionTracker_PositiveMessageRaisesScore(t *testing.T) {
	tracker := newTestTracker(newFakeClock())

	analysis := tracker.Analyze("Gracias, excelente servicio, estoy muy contento", domain.SenderUser)

	assert.Greater(t, analysis.SatisfactionImpact, 0.0)
	assert.Greater(t, tracker.CurrentScore(), 50.0)
	assert.Equal(t, 1, tracker.AnalysisCount())
}

func TestSatisfactionTracker_NegativeMessageLowersScore(t *testing.T) {
	tracker := newTestTracker(newFakeClock())

	analysis := tracker.Analyze("Esto es terrible, estoy muy frustrado", domain.SenderUser)

	assert.Less(t, analysis.SatisfactionImpact, 0.0)
	assert.Less(t, tracker.CurrentScore(), 50.0)
}

func TestSatisfactionTracker_RateLimitRejects(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.Analyze("Gracias, excelente", domain.SenderUser)
	scoreAfterFirst := tracker.CurrentScore()

	// 500ms 内的第二次分析被拒绝，不改动任何状态
	clock.Advance(200 * time.Millisecond)
	rejected := tracker.Analyze("Esto es terrible", domain.SenderUser)

	assert.Equal(t, 0.0, rejected.SatisfactionImpact)
	assert.Equal(t, scoreAfterFirst, tracker.CurrentScore())
	assert.Equal(t, 1, tracker.AnalysisCount())
	assert.Len(t, tracker.Messages(), 1)

	// 间隔足够后恢复接受
	clock.Advance(400 * time.Millisecond)
	accepted := tracker.Analyze("Esto es terrible", domain.SenderUser)
	assert.Less(t, accepted.SatisfactionImpact, 0.0)
	assert.Equal(t, 2, tracker.AnalysisCount())
}

func TestSatisfactionTracker_InvalidInput(t *testing.T) {
	tracker := newTestTracker(newFakeClock())

	empty := tracker.Analyze("   ", domain.SenderUser)
	badSender := tracker.Analyze("hola", domain.Sender("system"))

	assert.Equal(t, 0.0, empty.SatisfactionImpact)
	assert.Equal(t, 0.0, badSender.SatisfactionImpact)
	assert.Equal(t, 0, tracker.AnalysisCount())
	assert.Empty(t, tracker.Messages())
}

func TestSatisfactionTracker_ScoreClampedToRange(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	for i := 0; i < 8; i++ {
		clock.Advance(time.Second)
		tracker.Analyze("Esto es terrible, horrible, un desastre inaceptable", domain.SenderUser)
	}

	assert.GreaterOrEqual(t, tracker.CurrentScore(), 0.0)

	metrics := tracker.Metrics()
	assert.GreaterOrEqual(t, metrics.LowestScore, 0.0)
	assert.LessOrEqual(t, metrics.PeakScore, 100.0)
}

func TestSatisfactionTracker_TrendDecreasing(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		tracker.Analyze("Esto está mal, tengo un problema, estoy molesto", domain.SenderUser)
	}

	metrics := tracker.Metrics()
	assert.Equal(t, domain.TrendDecreasing, metrics.Trend)
	assert.NotNil(t, metrics.LastAnalysis)
}

func TestSatisfactionTracker_DeferredReanalysis(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.StoreMessage("Hola, necesito ayuda", domain.SenderUser)
	tracker.StoreMessage("Claro, voy a procesar tu solicitud", domain.SenderAgent)
	tracker.StoreMessage("Gracias, excelente atención", domain.SenderUser)
	tracker.StoreMessage("", domain.SenderUser) // 空消息被静默忽略

	assert.Equal(t, 3, tracker.StoredCount())
	assert.Equal(t, 0, tracker.AnalysisCount())

	analyses := tracker.ReanalyzeStored()

	assert.Len(t, analyses, 3)
	assert.Equal(t, 0, tracker.StoredCount())
	assert.Equal(t, 3, tracker.AnalysisCount())
	// 消息量足够时追加一条整体复盘洞察
	assert.NotEmpty(t, tracker.RecentInsights())
}

func TestSatisfactionTracker_ConversationDataExtraction(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.Analyze("Hola, mi nombre es Laura y tengo un problema con mi tarjeta", domain.SenderUser)
	clock.Advance(time.Second)
	tracker.Analyze("He verificado tu cuenta y todo está en orden", domain.SenderAgent)
	clock.Advance(90 * time.Second)

	summary := tracker.Summary()
	assert.Equal(t, "Laura", summary.CustomerName)
	assert.Contains(t, summary.ContactReason, "tengo un problema con")
	assert.Len(t, summary.ExecutedActions, 1)
	assert.Equal(t, 91, summary.DurationSeconds)
}

func TestSatisfactionTracker_SummaryDefaults(t *testing.T) {
	tracker := newTestTracker(newFakeClock())

	summary := tracker.Summary()

	assert.Equal(t, "Cliente", summary.CustomerName)
	assert.Equal(t, "Consulta general", summary.ContactReason)
	assert.Equal(t, "neutral", summary.DominantEmotion)
	assert.Equal(t, domain.ResolutionPending, summary.Resolution)
}

func TestSatisfactionTracker_ApplyRemoteResult(t *testing.T) {
	tracker := newTestTracker(newFakeClock())

	result := domain.SatisfactionResult{
		SentimentScore: 0.9,
		Label:          domain.LabelPositive,
		Insight:        "El cliente se siente satisfecho",
	}
	analysis := tracker.ApplyRemoteResult(result, "Cliente: gracias", domain.SenderUser)

	assert.Equal(t, 90.0, tracker.CurrentScore())
	assert.InDelta(t, 0.8, analysis.Sentiment.Compound, 0.0001)
	assert.Equal(t, 1.0, analysis.Sentiment.Positive)
	assert.Equal(t, 1, tracker.AnalysisCount())

	// 汇总行包含消息计数与最终得分
	line := tracker.SessionSummaryLine(result)
	assert.Contains(t, line, "1 mensajes totales")
	assert.Contains(t, line, "90/100")
	assert.Contains(t, line, "positivo")
}

func TestSatisfactionTracker_LastMessages(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	assert.Equal(t, "No hay conversación aún.", tracker.LastMessages(10))

	tracker.Analyze("Hola, buenas tardes", domain.SenderUser)
	clock.Advance(time.Second)
	tracker.Analyze("Hola, en qué puedo ayudarte", domain.SenderAgent)

	conversation := tracker.LastMessages(10)
	assert.Contains(t, conversation, "Cliente: Hola, buenas tardes")
	assert.Contains(t, conversation, "Avatar: Hola, en qué puedo ayudarte")
}

func TestSatisfactionTracker_Reset(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(clock)

	tracker.Analyze("Gracias, excelente servicio", domain.SenderUser)
	tracker.StoreMessage("pendiente", domain.SenderUser)
	tracker.Reset()

	assert.Equal(t, 50.0, tracker.CurrentScore())
	assert.Equal(t, 0, tracker.AnalysisCount())
	assert.Equal(t, 0, tracker.StoredCount())
	assert.Empty(t, tracker.Messages())
	assert.Empty(t, tracker.RecentInsights())
}
