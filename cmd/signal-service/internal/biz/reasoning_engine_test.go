package biz

import (
	"testing"
	"time"

	"avatarsignal/cmd/signal-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

func newTestReasoningEngine(clock *fakeClock) *ReasoningEngine {
	engine := NewReasoningEngine(log.DefaultLogger)
	engine.now = clock.Now
	return engine
}

func TestReasoningEngine_CreatesNodeFromEvent(t *testing.T) {
	engine := newTestReasoningEngine(newFakeClock())

	node := engine.ProcessEvent(domain.EventSessionStart, nil)

	assert.NotNil(t, node)
	assert.Equal(t, "node_0", node.ID)
	assert.Equal(t, "Iniciando Sesión", node.Label)
	assert.Equal(t, domain.NodeStatusActive, node.Status)
	assert.Equal(t, 1, engine.TotalCount())
}

func TestReasoningEngine_UnknownEventIgnored(t *testing.T) {
	engine := newTestReasoningEngine(newFakeClock())

	node := engine.ProcessEvent(domain.ConversationEvent("made_up_event"), nil)

	assert.Nil(t, node)
	assert.Equal(t, 0, engine.TotalCount())
}

func TestReasoningEngine_RateLimitWindow(t *testing.T) {
	clock := newFakeClock()
	engine := newTestReasoningEngine(clock)

	// 1 秒内的第二个事件被抑制
	first := engine.ProcessEvent(domain.EventSessionStart, nil)
	clock.Advance(400 * time.Millisecond)
	second := engine.ProcessEvent(domain.EventUserGreeting, nil)

	assert.NotNil(t, first)
	assert.Nil(t, second)
	assert.Equal(t, 1, engine.TotalCount())

	clock.Advance(700 * time.Millisecond)
	third := engine.ProcessEvent(domain.EventUserGreeting, nil)
	assert.NotNil(t, third)
	assert.Equal(t, 2, engine.TotalCount())
}

func TestReasoningEngine_DuplicateResponseSuppressed(t *testing.T) {
	clock := newFakeClock()
	engine := newTestReasoningEngine(clock)

	first := engine.ProcessEvent(domain.EventAgentResponse, nil)
	assert.NotNil(t, first)

	// 3 秒去重窗口内的第二个 agent_response 被抑制
	clock.Advance(1500 * time.Millisecond)
	second := engine.ProcessEvent(domain.EventAgentResponse, nil)
	assert.Nil(t, second)

	clock.Advance(2 * time.Second)
	third := engine.ProcessEvent(domain.EventAgentResponse, nil)
	assert.NotNil(t, third)
}

func TestReasoningEngine_ListeningAfterResponse(t *testing.T) {
	clock := newFakeClock()
	engine := newTestReasoningEngine(clock)

	engine.ProcessEvent(domain.EventAgentResponse, nil)

	// agent_response 之后 2 秒内的 agent_listening 属于回声，抑制
	clock.Advance(1200 * time.Millisecond)
	echo := engine.ProcessEvent(domain.EventAgentListening, nil)
	assert.Nil(t, echo)

	// 窗口过后恢复并清除 pending 标记
	clock.Advance(time.Second)
	listening := engine.ProcessEvent(domain.EventAgentListening, nil)
	assert.NotNil(t, listening)
	assert.Equal(t, 2, engine.TotalCount())
}

func TestReasoningEngine_ActivityDetection(t *testing.T) {
	clock := newFakeClock()
	engine := newTestReasoningEngine(clock)

	node := engine.AnalyzeActivityText("Estoy verificando tus datos del 15/03/2024, importe: 250 euros")

	assert.NotNil(t, node)
	assert.Equal(t, "Verificación de Datos", node.Label)
	assert.Contains(t, node.Description, "*Fecha:* 15/03/2024")
	assert.Contains(t, node.Description, "*Importe:* 250 euros")
	assert.Equal(t, "15/03/2024", node.Data["extracted_date"])
	assert.Equal(t, "250", node.Data["extracted_amount"])
}

func TestReasoningEngine_ActivityCooldown(t *testing.T) {
	clock := newFakeClock()
	engine := newTestReasoningEngine(clock)

	first := engine.AnalyzeActivityText("Estoy analizando tu solicitud en detalle")
	assert.NotNil(t, first)

	// 3 秒冷却内不再生成活动节点
	clock.Advance(2 * time.Second)
	second := engine.AnalyzeActivityText("Sigo analizando la información disponible")
	assert.Nil(t, second)

	clock.Advance(2 * time.Second)
	third := engine.AnalyzeActivityText("Continúo evaluando las opciones posibles")
	assert.NotNil(t, third)
}

func TestReasoningEngine_ActivityExcerptTruncated(t *testing.T) {
	engine := newTestReasoningEngine(newFakeClock())

	long := "Estoy analizando "
	for i := 0; i < 20; i++ {
		long += "todos los movimientos de la cuenta "
	}
	node := engine.AnalyzeActivityText(long)

	assert.NotNil(t, node)
	assert.LessOrEqual(t, len([]rune(node.Description)), 100)
	assert.Contains(t, node.Description, "...")
}

func TestReasoningEngine_NoActivityMatch(t *testing.T) {
	engine := newTestReasoningEngine(newFakeClock())

	assert.Nil(t, engine.AnalyzeActivityText("El tiempo hoy está soleado"))
	assert.Nil(t, engine.AnalyzeActivityText(""))
	assert.Equal(t, 0, engine.TotalCount())
}

func TestReasoningEngine_EndSessionCompletesNodes(t *testing.T) {
	clock := newFakeClock()
	engine := newTestReasoningEngine(clock)

	engine.ProcessEvent(domain.EventSessionStart, nil)
	clock.Advance(2 * time.Second)
	engine.ProcessEvent(domain.EventUserGreeting, nil)

	assert.Equal(t, 2, engine.ActiveCount())

	engine.EndSession()
	assert.Equal(t, 0, engine.ActiveCount())
	for _, node := range engine.Nodes() {
		assert.Equal(t, domain.NodeStatusCompleted, node.Status)
	}

	// 幂等
	engine.EndSession()
	assert.Equal(t, 0, engine.ActiveCount())
}

func TestReasoningEngine_StepsSinglePhase(t *testing.T) {
	clock := newFakeClock()
	engine := newTestReasoningEngine(clock)

	assert.Empty(t, engine.Steps())

	engine.ProcessEvent(domain.EventSessionStart, nil)
	steps := engine.Steps()

	assert.Len(t, steps, 1)
	assert.Equal(t, "Motor de Pensamiento Cognitivo", steps[0].Phase)
	assert.Len(t, steps[0].Nodes, 1)
}

func TestReasoningEngine_Reset(t *testing.T) {
	clock := newFakeClock()
	engine := newTestReasoningEngine(clock)

	engine.ProcessEvent(domain.EventSessionStart, nil)
	engine.Reset()

	assert.Equal(t, 0, engine.TotalCount())
	assert.Empty(t, engine.Steps())

	// 计数器从零重新开始
	node := engine.ProcessEvent(domain.EventSessionStart, nil)
	assert.NotNil(t, node)
	assert.Equal(t, "node_0", node.ID)
}
