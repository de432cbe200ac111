package biz

import (
	"math"
	"sort"
	"strings"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	emotionMatchWeight = 0.4
	// 短文本（≤10 词）按词数比例降低置信度
	emotionShortTextWords = 10
	maxEmotions           = 3
)

// EmotionDetector 具名情绪检测器，无内部状态
type EmotionDetector struct {
	log *log.Helper
}

// NewEmotionDetector 创建情绪检测器
func NewEmotionDetector(logger log.Logger) *EmotionDetector {
	return &EmotionDetector{
		log: log.NewHelper(log.With(logger, "module", "emotion-detector")),
	}
}

// Detect 返回按置信度降序的至多 3 个情绪信号，零置信度的情绪不保留
func (d *EmotionDetector) Detect(text string) []domain.EmotionAnalysis {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	wordCount := len(strings.Fields(text))
	lengthScale := 1.0
	if wordCount <= emotionShortTextWords {
		lengthScale = float64(wordCount) / float64(emotionShortTextWords)
	}

	emotions := make([]domain.EmotionAnalysis, 0, len(emotionFamilies))
	for _, family := range emotionFamilies {
		raw := 0.0
		for _, re := range family.patterns {
			raw += float64(countMatches(re, text)) * emotionMatchWeight
		}
		if raw == 0 {
			continue
		}

		confidence := math.Min(raw*lengthScale, 1)
		emotions = append(emotions, domain.EmotionAnalysis{
			Emotion:    family.name,
			Confidence: confidence,
			Intensity:  math.Min(confidence*100, 100),
		})
	}

	sort.SliceStable(emotions, func(i, j int) bool {
		return emotions[i].Confidence > emotions[j].Confidence
	})
	if len(emotions) > maxEmotions {
		emotions = emotions[:maxEmotions]
	}
	return emotions
}
