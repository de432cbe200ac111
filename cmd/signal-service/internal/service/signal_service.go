package service

import (
	"context"
	"strings"

	"avatarsignal/cmd/signal-service/internal/biz"
	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// SignalService 信号引擎对外服务层：做参数归一和校验，
// 业务逻辑全部委托给 SessionUsecase。
type SignalService struct {
	sessions *biz.SessionUsecase
	log      *log.Helper
}

// NewSignalService 创建服务层
func NewSignalService(sessions *biz.SessionUsecase, logger log.Logger) *SignalService {
	return &SignalService{
		sessions: sessions,
		log:      log.NewHelper(log.With(logger, "module", "signal-service")),
	}
}

// CreateSession 创建会话
func (s *SignalService) CreateSession(ctx context.Context) *biz.SessionInfo {
	return s.sessions.CreateSession(ctx)
}

// GetSession 会话元信息
func (s *SignalService) GetSession(ctx context.Context, id string) (*biz.SessionInfo, error) {
	return s.sessions.GetSession(ctx, id)
}

// HandleEvent 处理一个生命周期事件
func (s *SignalService) HandleEvent(ctx context.Context, id, eventType string, data map[string]interface{}) (*domain.ReasoningNode, error) {
	envelope := domain.EventEnvelope{
		Type: domain.ConversationEvent(strings.TrimSpace(eventType)),
		Data: data,
	}
	return s.sessions.HandleEvent(ctx, id, envelope)
}

// AnalyzeMessage 分析一条转写文本
func (s *SignalService) AnalyzeMessage(ctx context.Context, id, text, sender string, deferred bool) (*domain.MessageAnalysis, error) {
	return s.sessions.AnalyzeMessage(ctx, id, text, domain.Sender(sender), deferred)
}

// AnalyzeActivity 在头像话语里检测活动线索
func (s *SignalService) AnalyzeActivity(ctx context.Context, id, text string) (*domain.ReasoningNode, error) {
	return s.sessions.AnalyzeActivity(ctx, id, text)
}

// Reanalyze 批量分析暂存消息
func (s *SignalService) Reanalyze(ctx context.Context, id string) ([]*domain.MessageAnalysis, error) {
	return s.sessions.Reanalyze(ctx, id)
}

// Score 按评分器名称评分
func (s *SignalService) Score(ctx context.Context, id, scorer string) (domain.SatisfactionResult, error) {
	return s.sessions.Score(ctx, id, strings.TrimSpace(scorer))
}

// Timeline 推理时间线
func (s *SignalService) Timeline(ctx context.Context, id string) ([]domain.ReasoningStep, error) {
	return s.sessions.Timeline(ctx, id)
}

// Metrics 满意度指标
func (s *SignalService) Metrics(ctx context.Context, id string) (domain.SatisfactionMetrics, error) {
	return s.sessions.Metrics(ctx, id)
}

// Insights 最近洞察
func (s *SignalService) Insights(ctx context.Context, id string) ([]*domain.Insight, error) {
	return s.sessions.Insights(ctx, id)
}

// Messages 消息日志
func (s *SignalService) Messages(ctx context.Context, id string) ([]*domain.MessageAnalysis, error) {
	return s.sessions.Messages(ctx, id)
}

// Summary 会话汇总
func (s *SignalService) Summary(ctx context.Context, id string) (domain.ConversationSummary, error) {
	return s.sessions.Summary(ctx, id)
}

// EndSession 结束会话
func (s *SignalService) EndSession(ctx context.Context, id string) error {
	return s.sessions.EndSession(ctx, id)
}

// ResetSession 重置会话
func (s *SignalService) ResetSession(ctx context.Context, id string) error {
	return s.sessions.ResetSession(ctx, id)
}

// DeleteSession 删除会话
func (s *SignalService) DeleteSession(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}
