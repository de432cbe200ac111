package domain

import "time"

// Sender 消息发送方
type Sender string

const (
	SenderUser  Sender = "user"  // 客户
	SenderAgent Sender = "agent" // 头像坐席
)

// Valid 校验发送方取值
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// SentimentScore 单条话语的情感得分，positive+neutral+negative 归一化为 1
type SentimentScore struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
	Compound float64 `json:"compound"` // 复合得分 [-1,1]，单独放大计算
}

// EmotionAnalysis 具名情绪信号
type EmotionAnalysis struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"` // [0,1]
	Intensity  float64 `json:"intensity"`  // [0,100]
}

// MessageAnalysis 一条话语的完整分析结果，创建后不可变
type MessageAnalysis struct {
	Text               string            `json:"text"`
	Sender             Sender            `json:"sender"`
	Sentiment          SentimentScore    `json:"sentiment"`
	Emotions           []EmotionAnalysis `json:"emotions"`
	SatisfactionImpact float64           `json:"satisfaction_impact"` // [-35,35]
	Keywords           []string          `json:"keywords"`
	AnalyzedAt         time.Time         `json:"analyzed_at"`
}

// StoredMessage 暂存待手动分析的消息
type StoredMessage struct {
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Trend 满意度走势
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// InsightType 洞察类型
type InsightType string

const (
	InsightPositive InsightType = "positive"
	InsightNegative InsightType = "negative"
	InsightNeutral  InsightType = "neutral"
	InsightAlert    InsightType = "alert"
)

// Priority 粗粒度优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Insight 一句话的可读洞察，与最近 3 条按文本精确去重
type Insight struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Text      string      `json:"text"`
	Type      InsightType `json:"type"`
	Priority  Priority    `json:"priority"`
}

// SatisfactionMetrics 满意度派生指标，每次请求基于完整历史重算
type SatisfactionMetrics struct {
	CurrentScore   float64    `json:"current_score"` // [0,100]
	Trend          Trend      `json:"trend"`
	PeakScore      float64    `json:"peak_score"`
	LowestScore    float64    `json:"lowest_score"`
	AverageScore   float64    `json:"average_score"`
	CurrentInsight string     `json:"current_insight,omitempty"`
	Urgency        Priority   `json:"urgency,omitempty"`
	LastAnalysis   *time.Time `json:"last_analysis,omitempty"`
}

// ResolutionStatus 会话处置状态
type ResolutionStatus string

const (
	ResolutionResolved  ResolutionStatus = "resolved"
	ResolutionPending   ResolutionStatus = "pending"
	ResolutionEscalated ResolutionStatus = "escalated"
)

// ConversationSummary 会话结束时的汇总视图
type ConversationSummary struct {
	CustomerName    string           `json:"customer_name"`
	ContactReason   string           `json:"contact_reason"`
	ExecutedActions []string         `json:"executed_actions"`
	FinalScore      float64          `json:"final_satisfaction"`
	DominantEmotion string           `json:"dominant_emotion"`
	DurationSeconds int              `json:"conversation_duration"`
	KeyInsights     []string         `json:"key_insights"`
	Resolution      ResolutionStatus `json:"resolution_status"`
}

// SessionSnapshot 写入缓存的会话快照
type SessionSnapshot struct {
	SessionID string              `json:"session_id"`
	Metrics   SatisfactionMetrics `json:"metrics"`
	Timeline  []*ReasoningNode    `json:"timeline"`
	Insights  []*Insight          `json:"insights"`
	UpdatedAt time.Time           `json:"updated_at"`
}
