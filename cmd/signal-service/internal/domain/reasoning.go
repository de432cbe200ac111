package domain

import "time"

// NodeStatus 推理节点状态
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"   // 待执行
	NodeStatusActive    NodeStatus = "active"    // 进行中
	NodeStatusCompleted NodeStatus = "completed" // 已完成
	NodeStatusError     NodeStatus = "error"     // 出错
)

// ReasoningNode 推理时间线中的一个节点，创建后只追加不回收
type ReasoningNode struct {
	ID          string                 `json:"id"`
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Status      NodeStatus             `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Icon        string                 `json:"icon,omitempty"`
	ParentID    string                 `json:"parent_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// ReasoningStep 展示层使用的阶段视图，节点按创建顺序排列
type ReasoningStep struct {
	Phase string           `json:"phase"`
	Nodes []*ReasoningNode `json:"nodes"`
}
