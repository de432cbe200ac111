package biz

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// 两次被接受的分析之间的最小间隔
	analysisMinInterval = 500 * time.Millisecond

	neutralPriorScore = 50.0

	impactBaseFactor       = 25.0
	impactAgentFactor      = 0.75
	impactUserFactor       = 1.4
	impactEmotionFactor    = 0.5
	impactVisibilityFloor  = 1.5
	impactTrendFactor      = 1.3
	impactLimit            = 35.0
	trendWindow            = 3
	trendThreshold         = 5.0
	recentNegativeCompound = -0.1
)

// 会话汇总用的提取模式
var (
	customerNamePatterns = compileAll(
		`mi nombre es (\w+)`, `soy (\w+)`, `me llamo (\w+)`,
	)
	contactReasonPatterns = compileAll(
		`tengo un problema con`, `necesito ayuda con`,
		`quiero consultar sobre`, `me contacto por`,
	)
	executedActionPatterns = compileAll(
		`he realizado`, `he procesado`, `he verificado`,
		`he solucionado`, `voy a procesar`,
	)
)

// SatisfactionTracker 单会话的满意度跟踪器。
// 历史、消息日志和洞察都归属一个会话，reset 时整体清空。
type SatisfactionTracker struct {
	engine   *SentimentEngine
	emotions *EmotionDetector
	insights *InsightGenerator

	history  []float64
	messages []*domain.MessageAnalysis
	stored   []domain.StoredMessage

	startTime        time.Time
	customerName     string
	contactReason    string
	executedActions  []string
	analysisCount    int
	lastAnalysisTime time.Time

	now func() time.Time
	log *log.Helper
}

// NewSatisfactionTracker 创建满意度跟踪器
func NewSatisfactionTracker(engine *SentimentEngine, emotions *EmotionDetector, insights *InsightGenerator, logger log.Logger) *SatisfactionTracker {
	t := &SatisfactionTracker{
		engine:   engine,
		emotions: emotions,
		insights: insights,
		now:      time.Now,
		log:      log.NewHelper(log.With(logger, "module", "satisfaction-tracker")),
	}
	t.startTime = t.now()
	return t
}

// Analyze 分析一条话语并更新历史。
// 非法输入或距上次被接受的分析不足 500ms 时返回零冲击结果且不改动任何状态。
func (t *SatisfactionTracker) Analyze(text string, sender domain.Sender) *domain.MessageAnalysis {
	if strings.TrimSpace(text) == "" || !sender.Valid() {
		AnalysisTotal.WithLabelValues(string(sender), "invalid").Inc()
		return t.emptyAnalysis(text, sender)
	}

	now := t.now()
	if !t.lastAnalysisTime.IsZero() && now.Sub(t.lastAnalysisTime) < analysisMinInterval {
		t.log.Debugf("analysis rejected, too frequent (%.0fms)", float64(now.Sub(t.lastAnalysisTime).Milliseconds()))
		AnalysisTotal.WithLabelValues(string(sender), "rejected").Inc()
		return t.emptyAnalysis(text, sender)
	}
	t.lastAnalysisTime = now

	return t.analyze(text, sender, now)
}

// analyze 频率守卫之后的实际分析路径，手动重分析会直接走到这里
func (t *SatisfactionTracker) analyze(text string, sender domain.Sender, now time.Time) *domain.MessageAnalysis {
	t.analysisCount++

	sentiment := t.engine.Score(text)
	emotions := t.emotions.Detect(text)
	impact := t.calculateImpact(sentiment, sender, emotions)

	analysis := &domain.MessageAnalysis{
		Text:               text,
		Sender:             sender,
		Sentiment:          sentiment,
		Emotions:           emotions,
		SatisfactionImpact: impact,
		Keywords:           t.engine.ExtractKeywords(text),
		AnalyzedAt:         now,
	}

	t.extractConversationData(text, sender)
	t.messages = append(t.messages, analysis)
	t.appendScore(impact)
	t.insights.FromAnalysis(analysis, t.history)

	AnalysisTotal.WithLabelValues(string(sender), "accepted").Inc()
	SatisfactionImpact.Observe(impact)

	t.log.Debugf("analysis %d: sender=%s compound=%.3f impact=%.2f score=%.1f",
		t.analysisCount, sender, sentiment.Compound, impact, t.CurrentScore())

	return analysis
}

// calculateImpact 满意度冲击公式
func (t *SatisfactionTracker) calculateImpact(sentiment domain.SentimentScore, sender domain.Sender, emotions []domain.EmotionAnalysis) float64 {
	impact := sentiment.Compound * impactBaseFactor

	if sender == domain.SenderAgent {
		impact *= impactAgentFactor
	} else {
		impact *= impactUserFactor
	}

	if len(emotions) > 0 {
		impact *= 1 + emotions[0].Intensity/100*impactEmotionFactor
	}

	// 复合得分非零时保证最小可见冲击
	if math.Abs(impact) < 1 && math.Abs(sentiment.Compound) > 0.01 {
		if sentiment.Compound > 0 {
			impact = impactVisibilityFloor
		} else {
			impact = -impactVisibilityFloor
		}
	}

	// 最近 3 条中至少 2 条明显负向且当前仍为负时加强
	recent := t.messages
	if len(recent) > trendWindow {
		recent = recent[len(recent)-trendWindow:]
	}
	recentNegative := 0
	for _, msg := range recent {
		if msg.Sentiment.Compound < recentNegativeCompound {
			recentNegative++
		}
	}
	if recentNegative >= 2 && sentiment.Compound < 0 {
		impact *= impactTrendFactor
	}

	return math.Max(-impactLimit, math.Min(impactLimit, impact))
}

func (t *SatisfactionTracker) appendScore(impact float64) {
	newScore := math.Max(0, math.Min(100, t.CurrentScore()+impact))
	t.history = append(t.history, newScore)
}

func (t *SatisfactionTracker) emptyAnalysis(text string, sender domain.Sender) *domain.MessageAnalysis {
	return &domain.MessageAnalysis{
		Text:       text,
		Sender:     sender,
		Sentiment:  domain.SentimentScore{Neutral: 1},
		Keywords:   []string{},
		AnalyzedAt: t.now(),
	}
}

// StoreMessage 暂存消息，等待手动重分析；非法输入静默忽略
func (t *SatisfactionTracker) StoreMessage(text string, sender domain.Sender) {
	if strings.TrimSpace(text) == "" || !sender.Valid() {
		return
	}
	t.stored = append(t.stored, domain.StoredMessage{
		Text:      text,
		Sender:    sender,
		Timestamp: t.now(),
	})
}

// StoredCount 暂存消息数
func (t *SatisfactionTracker) StoredCount() int {
	return len(t.stored)
}

// ReanalyzeStored 批量分析暂存消息（绕过频率守卫），并在消息量足够时
// 生成一条整体复盘洞察。返回本次产生的分析结果。
func (t *SatisfactionTracker) ReanalyzeStored() []*domain.MessageAnalysis {
	if len(t.stored) > 0 {
		for _, msg := range t.stored {
			t.analyze(msg.Text, msg.Sender, t.now())
		}
		t.stored = nil
		t.lastAnalysisTime = t.now()
	}

	if len(t.messages) == 0 {
		return nil
	}

	positive, negative := 0, 0
	for _, msg := range t.messages {
		if msg.Sentiment.Compound > 0.1 {
			positive++
		}
		if msg.Sentiment.Compound < -0.1 {
			negative++
		}
	}
	t.insights.ConversationInsight(positive, negative, len(t.messages))

	return t.Messages()
}

// CurrentScore 当前满意度，历史为空时返回中性先验 50
func (t *SatisfactionTracker) CurrentScore() float64 {
	if len(t.history) == 0 {
		return neutralPriorScore
	}
	return t.history[len(t.history)-1]
}

// Metrics 基于完整历史重算派生指标
func (t *SatisfactionTracker) Metrics() domain.SatisfactionMetrics {
	metrics := domain.SatisfactionMetrics{
		CurrentScore: neutralPriorScore,
		Trend:        domain.TrendStable,
		PeakScore:    neutralPriorScore,
		LowestScore:  neutralPriorScore,
		AverageScore: neutralPriorScore,
	}
	if len(t.history) == 0 {
		return metrics
	}

	peak, lowest, sum := t.history[0], t.history[0], 0.0
	for _, score := range t.history {
		peak = math.Max(peak, score)
		lowest = math.Min(lowest, score)
		sum += score
	}

	metrics.CurrentScore = t.CurrentScore()
	metrics.PeakScore = peak
	metrics.LowestScore = lowest
	metrics.AverageScore = math.Round(sum / float64(len(t.history)))
	metrics.Trend = t.trend()

	if latest := t.insights.Latest(); latest != nil {
		metrics.CurrentInsight = latest.Text
		metrics.Urgency = latest.Priority
	}
	if !t.lastAnalysisTime.IsZero() {
		last := t.lastAnalysisTime
		metrics.LastAnalysis = &last
	}
	return metrics
}

// trend 最近 3 条样本首尾差值超过 ±5 才改变走势
func (t *SatisfactionTracker) trend() domain.Trend {
	if len(t.history) < trendWindow {
		return domain.TrendStable
	}
	recent := t.history[len(t.history)-trendWindow:]
	delta := recent[len(recent)-1] - recent[0]
	switch {
	case delta > trendThreshold:
		return domain.TrendIncreasing
	case delta < -trendThreshold:
		return domain.TrendDecreasing
	default:
		return domain.TrendStable
	}
}

// RecentInsights 最近 5 条洞察，时间倒序
func (t *SatisfactionTracker) RecentInsights() []*domain.Insight {
	return t.insights.Recent(5)
}

// DominantEmotions 最近 3 条分析中按最大强度合并的主导情绪，至多 3 个
func (t *SatisfactionTracker) DominantEmotions() []domain.EmotionAnalysis {
	recent := t.messages
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	merged := make(map[string]domain.EmotionAnalysis)
	order := make([]string, 0)
	for _, msg := range recent {
		for _, emotion := range msg.Emotions {
			existing, ok := merged[emotion.Emotion]
			if !ok {
				order = append(order, emotion.Emotion)
			}
			if !ok || emotion.Intensity > existing.Intensity {
				merged[emotion.Emotion] = emotion
			}
		}
	}

	emotions := make([]domain.EmotionAnalysis, 0, len(merged))
	for _, name := range order {
		emotions = append(emotions, merged[name])
	}
	sort.SliceStable(emotions, func(i, j int) bool {
		return emotions[i].Intensity > emotions[j].Intensity
	})
	if len(emotions) > 3 {
		emotions = emotions[:3]
	}
	return emotions
}

// extractConversationData 从话语中提取客户姓名、来意和坐席动作
func (t *SatisfactionTracker) extractConversationData(text string, sender domain.Sender) {
	if sender == domain.SenderUser {
		if t.customerName == "" {
			for _, re := range customerNamePatterns {
				if match := re.FindStringSubmatch(text); len(match) > 1 {
					t.customerName = match[1]
					break
				}
			}
		}
		if t.contactReason == "" {
			for _, re := range contactReasonPatterns {
				if re.MatchString(text) {
					t.contactReason = truncate(text, 100)
					break
				}
			}
		}
		return
	}

	for _, re := range executedActionPatterns {
		if re.MatchString(text) {
			t.executedActions = append(t.executedActions, truncate(text, 80))
			return
		}
	}
}

// Summary 会话汇总视图
func (t *SatisfactionTracker) Summary() domain.ConversationSummary {
	metrics := t.Metrics()

	resolution := domain.ResolutionPending
	switch {
	case metrics.CurrentScore >= 80:
		resolution = domain.ResolutionResolved
	case metrics.CurrentScore < 30:
		resolution = domain.ResolutionEscalated
	}

	dominant := "neutral"
	if emotions := t.DominantEmotions(); len(emotions) > 0 {
		dominant = emotions[0].Emotion
	}

	name := t.customerName
	if name == "" {
		name = "Cliente"
	}
	reason := t.contactReason
	if reason == "" {
		reason = "Consulta general"
	}

	return domain.ConversationSummary{
		CustomerName:    name,
		ContactReason:   reason,
		ExecutedActions: dedupeStrings(t.executedActions),
		FinalScore:      metrics.CurrentScore,
		DominantEmotion: dominant,
		DurationSeconds: int(t.now().Sub(t.startTime).Seconds()),
		KeyInsights:     t.insights.LastTexts(3),
		Resolution:      resolution,
	}
}

// Messages 会话消息日志副本
func (t *SatisfactionTracker) Messages() []*domain.MessageAnalysis {
	out := make([]*domain.MessageAnalysis, len(t.messages))
	copy(out, t.messages)
	return out
}

// LastMessages 拼接最近 n 条消息作为评分上下文
func (t *SatisfactionTracker) LastMessages(n int) string {
	messages := t.messages
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	if len(messages) == 0 {
		return "No hay conversación aún."
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		prefix := "Avatar"
		if msg.Sender == domain.SenderUser {
			prefix = "Cliente"
		}
		lines = append(lines, prefix+": "+msg.Text)
	}
	return strings.Join(lines, "\n")
}

// AnalysisCount 累计分析次数
func (t *SatisfactionTracker) AnalysisCount() int {
	return t.analysisCount
}

// ApplyRemoteResult 将远端评分结果写入历史：得分按 0-100 追加，
// 冲击取与上一分的差值，复合得分由 0-1 区间线性映射到 [-1,1]。
func (t *SatisfactionTracker) ApplyRemoteResult(result domain.SatisfactionResult, text string, sender domain.Sender) *domain.MessageAnalysis {
	score := result.SentimentScore * 100
	impact := 0.0
	if len(t.history) > 0 {
		impact = score - t.history[len(t.history)-1]
	}

	sentiment := domain.SentimentScore{Compound: result.SentimentScore*2 - 1}
	switch result.Label {
	case domain.LabelPositive:
		sentiment.Positive = 1
	case domain.LabelNegative:
		sentiment.Negative = 1
	default:
		sentiment.Neutral = 1
	}

	analysis := &domain.MessageAnalysis{
		Text:               text,
		Sender:             sender,
		Sentiment:          sentiment,
		Emotions:           []domain.EmotionAnalysis{},
		SatisfactionImpact: impact,
		Keywords:           []string{},
		AnalyzedAt:         t.now(),
	}

	t.messages = append(t.messages, analysis)
	t.history = append(t.history, math.Max(0, math.Min(100, score)))
	t.lastAnalysisTime = t.now()
	t.analysisCount++

	t.log.Debugf("remote result applied: score=%.1f label=%s", score, result.Label)
	return analysis
}

// SessionSummaryLine 远端评分路径的单行会话总结
func (t *SatisfactionTracker) SessionSummaryLine(result domain.SatisfactionResult) string {
	client, avatar := 0, 0
	for _, msg := range t.messages {
		if msg.Sender == domain.SenderUser {
			client++
		} else {
			avatar++
		}
	}
	return fmt.Sprintf(
		"Resumen de sesión: %d mensajes totales (%d del cliente, %d del avatar). Satisfacción final: %d/100 (%s). %s",
		len(t.messages), client, avatar,
		int(math.Round(result.SentimentScore*100)), result.Label, result.Insight,
	)
}

// Reset 清空全部会话状态
func (t *SatisfactionTracker) Reset() {
	t.history = nil
	t.messages = nil
	t.stored = nil
	t.startTime = t.now()
	t.customerName = ""
	t.contactReason = ""
	t.executedActions = nil
	t.analysisCount = 0
	t.lastAnalysisTime = time.Time{}
	t.insights.Reset()
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

