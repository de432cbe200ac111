package domain

import "time"

// ConversationEvent 会话生命周期事件
type ConversationEvent string

const (
	EventSessionStart       ConversationEvent = "session_start"
	EventUserGreeting       ConversationEvent = "user_greeting"
	EventAgentGreeting      ConversationEvent = "agent_greeting"
	EventUserMessage        ConversationEvent = "user_message"
	EventAgentListening     ConversationEvent = "agent_listening"
	EventAgentAnalyzing     ConversationEvent = "agent_analyzing"
	EventSystemVerification ConversationEvent = "system_verification"
	EventCRMLookup          ConversationEvent = "crm_lookup"
	EventFraudAnalysis      ConversationEvent = "fraud_analysis"
	EventDecisionMaking     ConversationEvent = "decision_making"
	EventActionExecution    ConversationEvent = "action_execution"
	EventAgentResponse      ConversationEvent = "agent_response"
	EventSessionEnd         ConversationEvent = "session_end"
	EventDatabaseQuery      ConversationEvent = "database_query"
	EventIntentDetected     ConversationEvent = "intent_detected"
	EventStreamDisconnected ConversationEvent = "stream_disconnected"
)

// EventEnvelope 头像端推送的事件封装，事件类型未知时整体忽略
type EventEnvelope struct {
	Type       ConversationEvent      `json:"type"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ReceivedAt time.Time              `json:"received_at"`
}
