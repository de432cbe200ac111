package biz

import (
	"fmt"
	"strings"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// 全局频率限制：任意两个节点之间至少 1 秒
	nodeMinInterval = time.Second
	// agent_response 去重窗口
	responseWindow = 3 * time.Second
	// agent_response 之后 agent_listening 的静默窗口
	listeningWindow = 2 * time.Second
	// 头像话语活动分析的冷却窗口
	activityCooldown = 3 * time.Second

	reasoningPhase     = "Motor de Pensamiento Cognitivo"
	activityExcerptLen = 97
)

// ReasoningEngine 单会话的推理时间线生成器。
// 节点只追加、只按创建顺序暴露，endSession 之后不再回收。
type ReasoningEngine struct {
	nodeCounter           int
	nodes                 []*domain.ReasoningNode
	sessionActive         bool
	pendingAvatarResponse bool
	lastAvatarMessageTime time.Time

	now func() time.Time
	log *log.Helper
}

// NewReasoningEngine 创建推理引擎
func NewReasoningEngine(logger log.Logger) *ReasoningEngine {
	return &ReasoningEngine{
		now: time.Now,
		log: log.NewHelper(log.With(logger, "module", "reasoning-engine")),
	}
}

// ProcessEvent 把一个生命周期事件映射为推理节点。
// 无模板的事件类型与被抑制的事件都返回 nil，只留日志。
func (e *ReasoningEngine) ProcessEvent(event domain.ConversationEvent, data map[string]interface{}) *domain.ReasoningNode {
	if e.shouldSkipEvent(event) {
		return nil
	}

	template, ok := reasoningTemplates[event]
	if !ok {
		e.log.Debugf("no template for event %s, ignored", event)
		return nil
	}

	if !e.sessionActive {
		e.sessionActive = true
	}

	if event == domain.EventAgentResponse {
		e.pendingAvatarResponse = true
		e.lastAvatarMessageTime = e.now()
	}

	node := e.appendNode(template.Label, template.Description, template.Icon, data)
	NodeCreatedTotal.WithLabelValues("event").Inc()
	e.log.Debugf("node created for event %s: %s (total %d)", event, node.Label, len(e.nodes))
	return node
}

// shouldSkipEvent 抑制规则，先命中先生效
func (e *ReasoningEngine) shouldSkipEvent(event domain.ConversationEvent) bool {
	now := e.now()

	if len(e.nodes) > 0 {
		last := e.nodes[len(e.nodes)-1]
		if now.Sub(last.Timestamp) < nodeMinInterval {
			e.log.Debugf("skipping %s, too frequent (%dms)", event, now.Sub(last.Timestamp).Milliseconds())
			NodeSuppressedTotal.WithLabelValues(string(event), "rate_limit").Inc()
			return true
		}
	}

	if event == domain.EventAgentResponse && e.pendingAvatarResponse {
		if now.Sub(e.lastAvatarMessageTime) < responseWindow {
			NodeSuppressedTotal.WithLabelValues(string(event), "duplicate_response").Inc()
			return true
		}
	}

	if event == domain.EventAgentListening && e.pendingAvatarResponse {
		if now.Sub(e.lastAvatarMessageTime) < listeningWindow {
			NodeSuppressedTotal.WithLabelValues(string(event), "after_response").Inc()
			return true
		}
		e.pendingAvatarResponse = false
	}

	return false
}

// AnalyzeActivityText 在头像话语里检测具体活动并生成节点。
// 与事件路径共用同一个 3 秒冷却时间戳。
func (e *ReasoningEngine) AnalyzeActivityText(text string) *domain.ReasoningNode {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	now := e.now()
	if !e.lastAvatarMessageTime.IsZero() && now.Sub(e.lastAvatarMessageTime) < activityCooldown {
		e.log.Debug("skipping avatar text analysis, too frequent")
		NodeSuppressedTotal.WithLabelValues("activity", "cooldown").Inc()
		return nil
	}

	for _, family := range activityFamilies {
		matched := false
		for _, re := range family.patterns {
			if re.MatchString(text) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		extractedDate := ""
		if match := activityDatePattern.FindStringSubmatch(text); len(match) > 1 {
			extractedDate = match[1]
		}
		extractedAmount := ""
		for _, re := range activityAmountPatterns {
			if match := re.FindStringSubmatch(text); len(match) > 1 {
				extractedAmount = match[1]
				break
			}
		}

		description := activityDescription(text, extractedDate, extractedAmount)
		data := map[string]interface{}{
			"original_text": text,
		}
		if extractedDate != "" {
			data["extracted_date"] = extractedDate
		}
		if extractedAmount != "" {
			data["extracted_amount"] = extractedAmount
		}

		e.lastAvatarMessageTime = now
		node := e.appendNode(family.label, description, family.icon, data)
		NodeCreatedTotal.WithLabelValues("activity").Inc()
		e.log.Debugf("activity node created: %s (total %d)", node.Label, len(e.nodes))
		return node
	}

	return nil
}

// activityDescription 有提取字段时用字段拼描述，否则截断原文
func activityDescription(text, date, amount string) string {
	details := make([]string, 0, 2)
	if date != "" {
		details = append(details, "*Fecha:* "+date)
	}
	if amount != "" {
		details = append(details, "*Importe:* "+amount+" euros")
	}
	if len(details) > 0 {
		return strings.Join(details, " • ")
	}

	runes := []rune(text)
	if len(runes) > excerptBaseLen {
		return string(runes[:activityExcerptLen]) + "..."
	}
	return text
}

func (e *ReasoningEngine) appendNode(label, description, icon string, data map[string]interface{}) *domain.ReasoningNode {
	node := &domain.ReasoningNode{
		ID:          fmt.Sprintf("node_%d", e.nodeCounter),
		Label:       label,
		Description: description,
		Status:      domain.NodeStatusActive,
		Timestamp:   e.now(),
		Icon:        icon,
		Data:        data,
	}
	e.nodeCounter++
	e.nodes = append(e.nodes, node)
	return node
}

// Steps 所有节点作为单个时间顺序阶段暴露
func (e *ReasoningEngine) Steps() []domain.ReasoningStep {
	if len(e.nodes) == 0 {
		return []domain.ReasoningStep{}
	}
	return []domain.ReasoningStep{{
		Phase: reasoningPhase,
		Nodes: e.Nodes(),
	}}
}

// Nodes 节点切片副本，保持创建顺序
func (e *ReasoningEngine) Nodes() []*domain.ReasoningNode {
	out := make([]*domain.ReasoningNode, len(e.nodes))
	copy(out, e.nodes)
	return out
}

// ActiveCount 仍处于 active 的节点数
func (e *ReasoningEngine) ActiveCount() int {
	count := 0
	for _, node := range e.nodes {
		if node.Status == domain.NodeStatusActive {
			count++
		}
	}
	return count
}

// TotalCount 节点总数
func (e *ReasoningEngine) TotalCount() int {
	return len(e.nodes)
}

// EndSession 把仍为 active 的节点置为 completed，幂等；
// completed/error 节点不受影响
func (e *ReasoningEngine) EndSession() {
	for _, node := range e.nodes {
		if node.Status == domain.NodeStatusActive {
			node.Status = domain.NodeStatusCompleted
		}
	}
	e.sessionActive = false
}

// Reset 清空时间线与全部计数器
func (e *ReasoningEngine) Reset() {
	e.nodeCounter = 0
	e.nodes = nil
	e.sessionActive = false
	e.pendingAvatarResponse = false
	e.lastAvatarMessageTime = time.Time{}
}
