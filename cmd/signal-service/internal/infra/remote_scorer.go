package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"avatarsignal/cmd/signal-service/internal/biz"
	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"
)

// analysisPrompt 远端评分的固定提示词
const analysisPrompt = `A partir del siguiente texto de conversación, realiza un análisis de sentimiento en una escala de 0 a 1 (0 = muy negativo, 1 = muy positivo). Devuelve la respuesta SOLO en JSON con las claves:

"sentiment_score": número entre 0 y 1
"label": negativo / neutral / positivo
"insight": frase breve (máx. 1 línea) que resuma el estado del cliente

Texto de conversación:`

const systemPrompt = "Eres un experto en análisis de sentimientos. Siempre respondes SOLO en formato JSON válido con las claves exactas solicitadas."

// RemoteConfig 远端评分客户端配置
type RemoteConfig struct {
	URL         string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64

	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	FailureThreshold   float64
	MinRequests        uint32
}

func (c *RemoteConfig) withDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4.1-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 150
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.3
	}
	if c.BreakerMaxRequests == 0 {
		c.BreakerMaxRequests = 3
	}
	if c.BreakerInterval <= 0 {
		c.BreakerInterval = 60 * time.Second
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 0.5
	}
	if c.MinRequests == 0 {
		c.MinRequests = 3
	}
}

// RemoteClient 远端 LLM 评分客户端（带熔断）。
// 在所有会话之间共享，每次调用失败都计入同一个熔断器。
type RemoteClient struct {
	config  RemoteConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  log.Logger
	log     *log.Helper
}

// NewRemoteClient 创建远端评分客户端
func NewRemoteClient(config RemoteConfig, logger log.Logger) *RemoteClient {
	config.withDefaults()
	logHelper := log.NewHelper(log.With(logger, "module", "remote-client"))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-scorer",
		MaxRequests: config.BreakerMaxRequests,
		Interval:    config.BreakerInterval,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logHelper.Infof("circuit breaker state change: %s -> %s", from, to)
		},
	})

	return &RemoteClient{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: cb,
		logger:  logger,
		log:     logHelper,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// score 发起一次评分调用。任何失败（熔断打开、网络、非 2xx、
// 解析失败、结果不合法）都返回 error，由上层决定兜底。
func (c *RemoteClient) score(ctx context.Context, conversation string) (domain.SatisfactionResult, error) {
	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, conversation)
	})
	biz.RemoteScoreDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			biz.RemoteScoreTotal.WithLabelValues("breaker_open").Inc()
		} else {
			biz.RemoteScoreTotal.WithLabelValues("error").Inc()
		}
		return domain.SatisfactionResult{}, err
	}

	biz.RemoteScoreTotal.WithLabelValues("success").Inc()
	return result.(domain.SatisfactionResult), nil
}

func (c *RemoteClient) doRequest(ctx context.Context, conversation string) (domain.SatisfactionResult, error) {
	reqBody := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: analysisPrompt + "\n\n" + conversation},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}
	reqBody.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return domain.SatisfactionResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.SatisfactionResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.SatisfactionResult{}, fmt.Errorf("call remote scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.SatisfactionResult{}, fmt.Errorf("remote scorer status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SatisfactionResult{}, fmt.Errorf("read response: %w", err)
	}

	// 兼容两种形态：chat completions 包裹体和直接返回的 JSON 对象
	var result domain.SatisfactionResult
	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err == nil && len(decoded.Choices) > 0 {
		content := decoded.Choices[0].Message.Content
		if strings.TrimSpace(content) == "" {
			return domain.SatisfactionResult{}, fmt.Errorf("empty completion content")
		}
		if err := json.Unmarshal([]byte(content), &result); err != nil {
			return domain.SatisfactionResult{}, fmt.Errorf("parse result: %w", err)
		}
	} else if err := json.Unmarshal(body, &result); err != nil {
		return domain.SatisfactionResult{}, fmt.Errorf("decode response: %w", err)
	}
	if err := result.Validate(); err != nil {
		return domain.SatisfactionResult{}, fmt.Errorf("invalid result: %w", err)
	}

	result.Insight = truncateInsight(result.Insight)
	return result, nil
}

func truncateInsight(insight string) string {
	runes := []rune(insight)
	if len(runes) > domain.MaxInsightLength {
		return string(runes[:domain.MaxInsightLength])
	}
	return insight
}

// RemoteScorer 一个会话专属的远端评分器。
// 同一会话内新调用会取消仍在途的上一次调用。
type RemoteScorer struct {
	client *RemoteClient
	log    *log.Helper

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// NewRemoteScorer 创建会话级远端评分器
func NewRemoteScorer(client *RemoteClient) *RemoteScorer {
	return &RemoteScorer{
		client: client,
		log:    log.NewHelper(log.With(client.logger, "module", "remote-scorer")),
	}
}

// Analyze 调用远端评分，任何失败都返回兜底结果
func (s *RemoteScorer) Analyze(ctx context.Context, conversation string) domain.SatisfactionResult {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	callCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.gen == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	result, err := s.client.score(callCtx, conversation)
	if err != nil {
		s.log.WithContext(ctx).Warnf("remote scoring failed, using fallback: %v", err)
		return domain.FallbackResult()
	}
	return result
}

// Name 评分器名称
func (s *RemoteScorer) Name() string {
	return biz.ScorerRemote
}
