package biz

import (
	"fmt"
	"math"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

const insightDedupWindow = 3

// 情绪对应的洞察文案
var emotionInsights = map[string]string{
	"frustración":  "Se detecta frustración - priorizar resolución",
	"urgencia":     "Cliente requiere respuesta inmediata",
	"satisfacción": "El cliente se siente satisfecho",
	"preocupación": "Cliente muestra preocupación - tranquilizar",
	"gratitud":     "Cliente agradece el servicio recibido",
	"confusión":    "Cliente necesita clarificación adicional",
}

// InsightGenerator 从分析结果推导一句话洞察，按最近 3 条精确去重
type InsightGenerator struct {
	insights []*domain.Insight
	counter  int
	now      func() time.Time
	log      *log.Helper
}

// NewInsightGenerator 创建洞察生成器
func NewInsightGenerator(logger log.Logger) *InsightGenerator {
	return &InsightGenerator{
		now: time.Now,
		log: log.NewHelper(log.With(logger, "module", "insight-generator")),
	}
}

// FromAnalysis 按规则表取第一个候选洞察，与最近 3 条重复则静默丢弃返回 nil。
// history 为满意度历史，用于走势类洞察。
func (g *InsightGenerator) FromAnalysis(analysis *domain.MessageAnalysis, history []float64) *domain.Insight {
	candidate := g.candidateText(analysis, history)
	if candidate == "" {
		return nil
	}

	recent := g.insights
	if len(recent) > insightDedupWindow {
		recent = recent[len(recent)-insightDedupWindow:]
	}
	for _, existing := range recent {
		if existing.Text == candidate {
			g.log.Debugf("duplicate insight discarded: %s", candidate)
			return nil
		}
	}

	insight := g.emit(candidate, analysis.Sentiment.Compound)
	return insight
}

// candidateText 规则表：情感强度 > 主导情绪 > 走势，先命中先生效
func (g *InsightGenerator) candidateText(analysis *domain.MessageAnalysis, history []float64) string {
	compound := analysis.Sentiment.Compound

	if compound > 0.4 {
		if analysis.Sender == domain.SenderUser {
			return "Cliente muestra satisfacción con el servicio"
		}
		return "Respuesta del agente genera impacto positivo"
	}
	if compound < -0.4 {
		if analysis.Sender == domain.SenderUser {
			return "Cliente expresa frustración - requiere atención"
		}
		return "Respuesta del agente necesita mejora"
	}

	if len(analysis.Emotions) > 0 {
		if text, ok := emotionInsights[analysis.Emotions[0].Emotion]; ok {
			return text
		}
	}

	if len(history) >= 3 {
		delta := history[len(history)-1] - history[len(history)-2]
		if delta > 10 {
			return "Tendencia positiva - satisfacción mejorando"
		}
		if delta < -10 {
			return "Tendencia negativa - intervención requerida"
		}
	}

	return ""
}

// ConversationInsight 整体复盘洞察（手动重分析路径），不做去重判定以外的过滤
func (g *InsightGenerator) ConversationInsight(positiveCount, negativeCount, total int) *domain.Insight {
	if total < 3 {
		return nil
	}

	var text string
	var compound float64
	switch {
	case positiveCount > negativeCount*2:
		text = "Conversación con tendencia mayoritariamente positiva"
		compound = 0.6
	case negativeCount > positiveCount*2:
		text = "Conversación con desafíos de satisfacción detectados"
		compound = -0.6
	default:
		text = "Conversación equilibrada con momentos mixtos"
	}

	return g.emit(text, compound)
}

func (g *InsightGenerator) emit(text string, compound float64) *domain.Insight {
	g.counter++
	insight := &domain.Insight{
		ID:        fmt.Sprintf("insight_%d_%d", g.now().UnixMilli(), g.counter),
		Timestamp: g.now(),
		Text:      text,
		Type:      insightType(compound),
		Priority:  insightPriority(compound),
	}
	g.insights = append(g.insights, insight)
	InsightGeneratedTotal.WithLabelValues(string(insight.Type)).Inc()
	g.log.Debugf("insight generated: %s (%s/%s)", insight.Text, insight.Type, insight.Priority)
	return insight
}

func insightType(compound float64) domain.InsightType {
	switch {
	case compound > 0.2:
		return domain.InsightPositive
	case compound < -0.2:
		return domain.InsightNegative
	default:
		return domain.InsightNeutral
	}
}

func insightPriority(compound float64) domain.Priority {
	switch {
	case math.Abs(compound) > 0.5:
		return domain.PriorityHigh
	case math.Abs(compound) > 0.2:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

// Recent 返回最近 n 条洞察，时间倒序
func (g *InsightGenerator) Recent(n int) []*domain.Insight {
	insights := g.insights
	if len(insights) > n {
		insights = insights[len(insights)-n:]
	}
	out := make([]*domain.Insight, len(insights))
	for i, ins := range insights {
		out[len(insights)-1-i] = ins
	}
	return out
}

// Latest 返回最近一条洞察，没有时返回 nil
func (g *InsightGenerator) Latest() *domain.Insight {
	if len(g.insights) == 0 {
		return nil
	}
	return g.insights[len(g.insights)-1]
}

// LastTexts 返回最近 n 条洞察文本，创建顺序
func (g *InsightGenerator) LastTexts(n int) []string {
	insights := g.insights
	if len(insights) > n {
		insights = insights[len(insights)-n:]
	}
	texts := make([]string, 0, len(insights))
	for _, ins := range insights {
		texts = append(texts, ins.Text)
	}
	return texts
}

// Reset 清空洞察日志
func (g *InsightGenerator) Reset() {
	g.insights = nil
	g.counter = 0
}
