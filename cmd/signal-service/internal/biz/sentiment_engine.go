package biz

import (
	"hash/fnv"
	"math"
	"math/rand"
	"regexp"
	"strings"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// LivelinessMode 无模式命中时的兜底打分策略
type LivelinessMode string

const (
	// LivelinessDeterministic 由文本哈希派生变化量，同一话语评分稳定
	LivelinessDeterministic LivelinessMode = "deterministic"
	// LivelinessRandom 伪随机变化量（原始行为）
	LivelinessRandom LivelinessMode = "random"
)

const (
	maxKeywords    = 5
	minKeywordLen  = 4
	excerptBaseLen = 100
)

var keywordSplitter = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// SentimentEngine 基于模式库的文本打分器，无内部状态，可跨会话复用
type SentimentEngine struct {
	mode LivelinessMode
	rng  *rand.Rand
	log  *log.Helper
}

// NewSentimentEngine 创建打分器
func NewSentimentEngine(mode LivelinessMode, logger log.Logger) *SentimentEngine {
	if mode != LivelinessRandom {
		mode = LivelinessDeterministic
	}
	return &SentimentEngine{
		mode: mode,
		rng:  rand.New(rand.NewSource(rand.Int63())),
		log:  log.NewHelper(log.With(logger, "module", "sentiment-engine")),
	}
}

// Score 对一条话语打分。空文本返回纯中性结果，无副作用。
func (e *SentimentEngine) Score(text string) domain.SentimentScore {
	if strings.TrimSpace(text) == "" {
		return domain.SentimentScore{Neutral: 1}
	}

	positive := tierScore(positiveTiers, text)
	negative := tierScore(negativeTiers, text)
	neutral := flatScore(neutralPatterns, weightNeutral, text)
	engagement := flatScore(engagementPatterns, weightEngagement, text)

	// 无任何命中时注入与文本长度成比例的小幅变化，保证每条话语都有信号
	if positive == 0 && negative == 0 && neutral == 0 && engagement == 0 {
		base := math.Min(float64(len(text))/100, 1)
		factor := e.livelinessFactor(text)
		if factor > 0 {
			positive = base + factor
		} else {
			negative = math.Abs(base + factor)
		}
		neutral = 1
	}

	if engagement > 0 {
		positive += engagement * engagementPositiveFactor
	}

	if positive == 0 && negative == 0 && neutral == 0 {
		neutral = 1
	}

	total := positive + negative + neutral
	score := domain.SentimentScore{
		Positive: positive / total,
		Negative: negative / total,
		Neutral:  neutral / total,
	}

	compound := score.Positive - score.Negative
	switch {
	case math.Abs(compound) > 0.1:
		compound *= 1.5
	case math.Abs(compound) > 0.05:
		compound *= 1.2
	}
	score.Compound = math.Max(-1, math.Min(1, compound))

	e.log.Debugf("scored text len=%d pos=%.3f neg=%.3f neu=%.3f compound=%.3f",
		len(text), score.Positive, score.Negative, score.Neutral, score.Compound)

	return score
}

// livelinessFactor 返回 [-0.2,0.2) 的变化量
func (e *SentimentEngine) livelinessFactor(text string) float64 {
	if e.mode == LivelinessRandom {
		return (e.rng.Float64() - 0.5) * 0.4
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	return (float64(h.Sum32()%400)/1000 - 0.2)
}

// ExtractKeywords 提取至多 5 个关键词（去停用词，长度 > 3）
func (e *SentimentEngine) ExtractKeywords(text string) []string {
	cleaned := keywordSplitter.ReplaceAllString(strings.ToLower(text), "")
	keywords := make([]string, 0, maxKeywords)
	for _, word := range strings.Fields(cleaned) {
		if len([]rune(word)) < minKeywordLen {
			continue
		}
		if _, stop := keywordStopwords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
