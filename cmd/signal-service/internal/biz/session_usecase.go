package biz

import (
	"context"
	"sync"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const scoreContextMessages = 10

// SnapshotCache 会话快照缓存。写入是尽力而为的，失败只记日志。
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, snapshot *domain.SessionSnapshot) error
	DeleteSnapshot(ctx context.Context, sessionID string) error
}

// ScorerFactory 为每个会话构造一个远端评分器实例
// （取消语义按会话隔离，同一会话内至多一个在途远端调用）
type ScorerFactory func() SatisfactionScorer

// Session 一个会话独占的全部引擎状态。
// 会话内的访问由 mu 串行化，会话之间互不共享。
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	reasoning *ReasoningEngine
	tracker   *SatisfactionTracker
	remote    SatisfactionScorer
	pattern   *PatternScorer
	ended     bool
	endedAt   *time.Time
}

// SessionInfo 会话元信息
type SessionInfo struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Ended     bool       `json:"ended"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SessionUsecase 会话编排器：创建/重置/结束会话，
// 把事件与转写文本路由到各引擎，并向展示层提供快照。
type SessionUsecase struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	engine        *SentimentEngine
	emotions      *EmotionDetector
	remoteFactory ScorerFactory
	cache         SnapshotCache
	logger        log.Logger
	log           *log.Helper
}

// NewSessionUsecase 创建会话编排器。cache 与 remoteFactory 均可为 nil。
func NewSessionUsecase(engine *SentimentEngine, emotions *EmotionDetector, remoteFactory ScorerFactory, cache SnapshotCache, logger log.Logger) *SessionUsecase {
	return &SessionUsecase{
		sessions:      make(map[string]*Session),
		engine:        engine,
		emotions:      emotions,
		remoteFactory: remoteFactory,
		cache:         cache,
		logger:        logger,
		log:           log.NewHelper(log.With(logger, "module", "session-usecase")),
	}
}

// CreateSession 创建新会话并实例化独立的引擎状态
func (uc *SessionUsecase) CreateSession(ctx context.Context) *SessionInfo {
	insights := NewInsightGenerator(uc.logger)
	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		reasoning: NewReasoningEngine(uc.logger),
		tracker:   NewSatisfactionTracker(uc.engine, uc.emotions, insights, uc.logger),
		pattern:   NewPatternScorer(uc.engine, uc.emotions, uc.logger),
	}
	if uc.remoteFactory != nil {
		session.remote = uc.remoteFactory()
	}

	uc.mu.Lock()
	uc.sessions[session.ID] = session
	uc.mu.Unlock()

	ActiveSessions.Inc()
	uc.log.WithContext(ctx).Infof("session created: %s", session.ID)
	return session.info()
}

func (uc *SessionUsecase) session(id string) (*Session, error) {
	uc.mu.RLock()
	session, ok := uc.sessions[id]
	uc.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// mutable 已结束的会话只读，调用方需持有 s.mu
func (s *Session) mutable() error {
	if s.ended {
		return domain.ErrSessionEnded
	}
	return nil
}

func (s *Session) info() *SessionInfo {
	return &SessionInfo{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Ended:     s.ended,
		EndedAt:   s.endedAt,
	}
}

// GetSession 会话元信息
func (uc *SessionUsecase) GetSession(_ context.Context, id string) (*SessionInfo, error) {
	session, err := uc.session(id)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.info(), nil
}

// HandleEvent 路由一个生命周期事件。未知事件类型只记日志并返回 nil 节点。
func (uc *SessionUsecase) HandleEvent(ctx context.Context, id string, envelope domain.EventEnvelope) (*domain.ReasoningNode, error) {
	session, err := uc.session(id)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	// session_end 对已结束会话幂等，其余事件拒绝
	if envelope.Type != domain.EventSessionEnd {
		if err := session.mutable(); err != nil {
			session.mu.Unlock()
			return nil, err
		}
	}
	node := session.reasoning.ProcessEvent(envelope.Type, envelope.Data)
	if envelope.Type == domain.EventSessionEnd {
		session.reasoning.EndSession()
	}
	session.mu.Unlock()

	if node != nil {
		uc.saveSnapshot(ctx, session)
	}
	return node, nil
}

// AnalyzeMessage 分析一条转写文本。deferred 为 true 时只暂存不评分。
func (uc *SessionUsecase) AnalyzeMessage(ctx context.Context, id, text string, sender domain.Sender, deferred bool) (*domain.MessageAnalysis, error) {
	if !sender.Valid() {
		return nil, domain.ErrInvalidSender
	}
	session, err := uc.session(id)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	if err := session.mutable(); err != nil {
		session.mu.Unlock()
		return nil, err
	}
	if deferred {
		session.tracker.StoreMessage(text, sender)
		session.mu.Unlock()
		return nil, nil
	}
	analysis := session.tracker.Analyze(text, sender)
	session.mu.Unlock()

	uc.saveSnapshot(ctx, session)
	return analysis, nil
}

// AnalyzeActivity 在头像话语里检测活动线索
func (uc *SessionUsecase) AnalyzeActivity(ctx context.Context, id, text string) (*domain.ReasoningNode, error) {
	session, err := uc.session(id)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	if err := session.mutable(); err != nil {
		session.mu.Unlock()
		return nil, err
	}
	node := session.reasoning.AnalyzeActivityText(text)
	session.mu.Unlock()

	if node != nil {
		uc.saveSnapshot(ctx, session)
	}
	return node, nil
}

// Reanalyze 批量分析暂存消息并生成复盘洞察
func (uc *SessionUsecase) Reanalyze(ctx context.Context, id string) ([]*domain.MessageAnalysis, error) {
	session, err := uc.session(id)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	if err := session.mutable(); err != nil {
		session.mu.Unlock()
		return nil, err
	}
	analyses := session.tracker.ReanalyzeStored()
	session.mu.Unlock()

	uc.saveSnapshot(ctx, session)
	return analyses, nil
}

// Score 按评分器名称产出统一的 SatisfactionResult。
// pattern 从本会话状态同步取分；remote 调远端 LLM 并把结果写回历史。
func (uc *SessionUsecase) Score(ctx context.Context, id, scorer string) (domain.SatisfactionResult, error) {
	session, err := uc.session(id)
	if err != nil {
		return domain.SatisfactionResult{}, err
	}

	switch scorer {
	case ScorerPattern, "":
		session.mu.Lock()
		conversation := session.tracker.LastMessages(scoreContextMessages)
		result := session.pattern.Analyze(ctx, conversation)
		session.mu.Unlock()
		return result, nil

	case ScorerRemote:
		if session.remote == nil {
			return domain.SatisfactionResult{}, domain.ErrUnknownScorer
		}
		session.mu.Lock()
		if err := session.mutable(); err != nil {
			session.mu.Unlock()
			return domain.SatisfactionResult{}, err
		}
		conversation := session.tracker.LastMessages(scoreContextMessages)
		session.mu.Unlock()

		// 远端调用在锁外挂起，结果拿到后再写回
		result := session.remote.Analyze(ctx, conversation)

		session.mu.Lock()
		session.tracker.ApplyRemoteResult(result, conversation, domain.SenderUser)
		summary := session.tracker.SessionSummaryLine(result)
		session.mu.Unlock()

		uc.log.WithContext(ctx).Info(summary)
		uc.saveSnapshot(ctx, session)
		return result, nil

	default:
		return domain.SatisfactionResult{}, domain.ErrUnknownScorer
	}
}

// Timeline 推理时间线快照（快照之间只追加）
func (uc *SessionUsecase) Timeline(_ context.Context, id string) ([]domain.ReasoningStep, error) {
	session, err := uc.session(id)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.reasoning.Steps(), nil
}

// Metrics 满意度指标快照
func (uc *SessionUsecase) Metrics(_ context.Context, id string) (domain.SatisfactionMetrics, error) {
	session, err := uc.session(id)
	if err != nil {
		return domain.SatisfactionMetrics{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.tracker.Metrics(), nil
}

// Insights 最近洞察
func (uc *SessionUsecase) Insights(_ context.Context, id string) ([]*domain.Insight, error) {
	session, err := uc.session(id)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.tracker.RecentInsights(), nil
}

// Messages 会话消息日志
func (uc *SessionUsecase) Messages(_ context.Context, id string) ([]*domain.MessageAnalysis, error) {
	session, err := uc.session(id)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.tracker.Messages(), nil
}

// Summary 会话汇总
func (uc *SessionUsecase) Summary(_ context.Context, id string) (domain.ConversationSummary, error) {
	session, err := uc.session(id)
	if err != nil {
		return domain.ConversationSummary{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.tracker.Summary(), nil
}

// EndSession 结束会话：active 节点置为 completed，状态保留可查询。幂等。
func (uc *SessionUsecase) EndSession(ctx context.Context, id string) error {
	session, err := uc.session(id)
	if err != nil {
		return err
	}

	session.mu.Lock()
	session.reasoning.EndSession()
	if !session.ended {
		session.ended = true
		now := time.Now()
		session.endedAt = &now
		ActiveSessions.Dec()
	}
	session.mu.Unlock()

	uc.saveSnapshot(ctx, session)
	uc.log.WithContext(ctx).Infof("session ended: %s", id)
	return nil
}

// ResetSession 清空会话的全部引擎状态
func (uc *SessionUsecase) ResetSession(ctx context.Context, id string) error {
	session, err := uc.session(id)
	if err != nil {
		return err
	}

	session.mu.Lock()
	session.reasoning.Reset()
	session.tracker.Reset()
	if session.ended {
		session.ended = false
		session.endedAt = nil
		ActiveSessions.Inc()
	}
	session.mu.Unlock()

	if uc.cache != nil {
		if err := uc.cache.DeleteSnapshot(ctx, id); err != nil {
			uc.log.WithContext(ctx).Warnf("failed to delete snapshot for %s: %v", id, err)
		}
	}
	uc.log.WithContext(ctx).Infof("session reset: %s", id)
	return nil
}

// DeleteSession 移除会话并清理缓存快照
func (uc *SessionUsecase) DeleteSession(ctx context.Context, id string) error {
	uc.mu.Lock()
	session, ok := uc.sessions[id]
	if ok {
		delete(uc.sessions, id)
	}
	uc.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	session.mu.Lock()
	if !session.ended {
		ActiveSessions.Dec()
	}
	session.mu.Unlock()

	if uc.cache != nil {
		if err := uc.cache.DeleteSnapshot(ctx, id); err != nil {
			uc.log.WithContext(ctx).Warnf("failed to delete snapshot for %s: %v", id, err)
		}
	}
	uc.log.WithContext(ctx).Infof("session deleted: %s", id)
	return nil
}

// saveSnapshot 尽力而为地写缓存，失败不影响调用方
func (uc *SessionUsecase) saveSnapshot(ctx context.Context, session *Session) {
	if uc.cache == nil {
		return
	}

	session.mu.Lock()
	snapshot := &domain.SessionSnapshot{
		SessionID: session.ID,
		Metrics:   session.tracker.Metrics(),
		Timeline:  session.reasoning.Nodes(),
		Insights:  session.tracker.RecentInsights(),
		UpdatedAt: time.Now(),
	}
	session.mu.Unlock()

	if err := uc.cache.SaveSnapshot(ctx, snapshot); err != nil {
		uc.log.WithContext(ctx).Warnf("failed to save snapshot for %s: %v", session.ID, err)
	}
}
