package infra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer(url string) *RemoteScorer {
	client := NewRemoteClient(RemoteConfig{
		URL:     url,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, log.DefaultLogger)
	return NewRemoteScorer(client)
}

func decodeJSONBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":` + content + `}}]}`
}

func TestRemoteScorer_ValidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody(`"{\"sentiment_score\":0.85,\"label\":\"positivo\",\"insight\":\"Cliente muy satisfecho con la atención\"}"`)))
	}))
	defer server.Close()

	scorer := newTestScorer(server.URL)
	result := scorer.Analyze(context.Background(), "Cliente: gracias por todo")

	assert.Equal(t, 0.85, result.SentimentScore)
	assert.Equal(t, domain.LabelPositive, result.Label)
	assert.Equal(t, "Cliente muy satisfecho con la atención", result.Insight)
}

func TestRemoteScorer_DirectObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 不带 chat completions 包裹体的直接 JSON 对象
		w.Write([]byte(`{"sentiment_score":0.3,"label":"negativo","insight":"Cliente molesto por la demora"}`))
	}))
	defer server.Close()

	scorer := newTestScorer(server.URL)
	result := scorer.Analyze(context.Background(), "Cliente: llevo una hora esperando")

	assert.Equal(t, 0.3, result.SentimentScore)
	assert.Equal(t, domain.LabelNegative, result.Label)
}

func TestRemoteScorer_ServerErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	scorer := newTestScorer(server.URL)
	result := scorer.Analyze(context.Background(), "Cliente: hola")

	// 失败永远落到固定兜底结果
	assert.Equal(t, domain.FallbackResult(), result)
}

func TestRemoteScorer_MalformedContentFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody(`"this is not json"`)))
	}))
	defer server.Close()

	scorer := newTestScorer(server.URL)
	result := scorer.Analyze(context.Background(), "Cliente: hola")

	assert.Equal(t, domain.FallbackResult(), result)
}

func TestRemoteScorer_SchemaViolationFallsBack(t *testing.T) {
	cases := []string{
		`"{\"sentiment_score\":1.5,\"label\":\"positivo\",\"insight\":\"fuera de rango\"}"`,
		`"{\"sentiment_score\":0.5,\"label\":\"happy\",\"insight\":\"etiqueta inválida\"}"`,
		`"{\"sentiment_score\":0.5,\"label\":\"neutral\",\"insight\":\"\"}"`,
	}

	for _, body := range cases {
		payload := body
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(completionBody(payload)))
		}))

		scorer := newTestScorer(server.URL)
		result := scorer.Analyze(context.Background(), "Cliente: hola")
		assert.Equal(t, domain.FallbackResult(), result)

		server.Close()
	}
}

func TestRemoteScorer_TimeoutFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(completionBody(`"{\"sentiment_score\":0.7,\"label\":\"positivo\",\"insight\":\"tarde\"}"`)))
	}))
	defer server.Close()

	client := NewRemoteClient(RemoteConfig{
		URL:     server.URL,
		Timeout: 50 * time.Millisecond,
	}, log.DefaultLogger)
	scorer := NewRemoteScorer(client)

	result := scorer.Analyze(context.Background(), "Cliente: hola")
	assert.Equal(t, domain.FallbackResult(), result)
}

func TestRemoteScorer_RequestBodyShape(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, decodeJSONBody(r, &captured))
		w.Write([]byte(completionBody(`"{\"sentiment_score\":0.5,\"label\":\"neutral\",\"insight\":\"sin cambios\"}"`)))
	}))
	defer server.Close()

	scorer := newTestScorer(server.URL)
	scorer.Analyze(context.Background(), "Cliente: hola\nAvatar: buenas")

	assert.Equal(t, "gpt-4.1-mini", captured.Model)
	assert.Equal(t, 150, captured.MaxTokens)
	assert.Equal(t, 0.3, captured.Temperature)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "Texto de conversación:")
	assert.Contains(t, captured.Messages[1].Content, "Cliente: hola")
}
