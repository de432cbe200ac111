package biz

import (
	"regexp"

	"avatarsignal/cmd/signal-service/internal/domain"
)

// 模式库：情感分层、具名情绪、活动检测使用的正则表。
// 只读数据，可在所有会话间共享。

// 情感分层权重
const (
	weightHigh       = 4.0
	weightMedium     = 2.5
	weightLow        = 1.5
	weightNeutral    = 1.2
	weightEngagement = 1.5
	// engagement 按 0.8 计入正向得分
	engagementPositiveFactor = 0.8
)

func compileAll(sources ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(sources))
	for _, s := range sources {
		res = append(res, regexp.MustCompile("(?i)"+s))
	}
	return res
}

// sentimentTier 一个强度层级及其权重
type sentimentTier struct {
	weight   float64
	patterns []*regexp.Regexp
}

var positiveTiers = []sentimentTier{
	{weightHigh, compileAll(
		`excelente`, `perfecto`, `fantástico`, `increíble`, `maravilloso`,
		`genial`, `estupendo`, `amazing`, `awesome`, `love`,
	)},
	{weightMedium, compileAll(
		`gracias`, `bueno`, `bien`, `contento`, `satisfecho`, `feliz`,
		`me gusta`, `correcto`, `good`, `great`, `nice`, `thank`,
		`appreciate`, `happy`, `pleased`,
	)},
	{weightLow, compileAll(
		`ok`, `vale`, `entiendo`, `claro`, `comprendo`, `sí`, `si`,
		`yes`, `sure`, `fine`, `alright`,
	)},
}

var negativeTiers = []sentimentTier{
	{weightHigh, compileAll(
		`terrible`, `horrible`, `furioso`, `indignado`, `inaceptable`,
		`desastre`, `awful`, `hate`, `disgusting`,
	)},
	{weightMedium, compileAll(
		`mal`, `disgusto`, `molesto`, `enojado`, `frustrado`, `problema`,
		`error`, `bad`, `wrong`, `upset`, `annoyed`, `disappointed`,
	)},
	{weightLow, compileAll(
		`preocupado`, `confundido`, `dudas`, `no entiendo`, `no está bien`,
		`worried`, `confused`, `not sure`, `doubt`,
	)},
}

var neutralPatterns = compileAll(
	`información`, `consulta`, `pregunta`, `necesito`, `quiero`, `puede`,
	`podría`, `cuando`, `como`, `dónde`, `want`, `need`, `can`, `could`,
	`would`, `question`, `info`,
)

var engagementPatterns = compileAll(
	`hello`, `hi`, `hola`, `buenas`, `saludo`, `hey`, `help`, `ayuda`,
	`assistance`, `support`,
)

// emotionFamily 一类具名情绪。顺序固定以保证检测结果可复现。
type emotionFamily struct {
	name     string
	patterns []*regexp.Regexp
}

var emotionFamilies = []emotionFamily{
	{"satisfacción", compileAll(`satisfech`, `content`, `feliz`, `alegr`, `gust`, `perfect`, `excelent`)},
	{"frustración", compileAll(`frustrad`, `desesper`, `harto`, `cansad`, `irritad`, `molest`)},
	{"confianza", compileAll(`segur`, `confí`, `tranquil`, `ciert`, `convencid`, `clar`)},
	{"preocupación", compileAll(`preocup`, `inquiet`, `nervios`, `ansiedad`, `temor`, `dud`)},
	{"calma", compileAll(`tranquil`, `calm`, `relajad`, `sereno`, `pacienci`, `sosegad`)},
	{"urgencia", compileAll(`urgente`, `rápid`, `prisa`, `inmediatament`, `ya`, `ahora`)},
	{"gratitud", compileAll(`gracias`, `agradec`, `amable`, `gentil`, `atento`)},
	{"confusión", compileAll(`confund`, `no entiendo`, `no comprendo`, `explicar`, `aclarar`)},
}

// nodeTemplate 事件到推理节点的静态模板
type nodeTemplate struct {
	Label       string
	Description string
	Icon        string
}

var reasoningTemplates = map[domain.ConversationEvent]nodeTemplate{
	domain.EventSessionStart:       {"Iniciando Sesión", "Estableciendo conexión...", "greeting"},
	domain.EventUserGreeting:       {"Procesando Saludo", "Analizando mensaje inicial...", "greeting"},
	domain.EventAgentGreeting:      {"Generando Respuesta", "Preparando saludo cordial...", "greeting"},
	domain.EventAgentListening:     {"Análizando la solicitud", "Procesando entrada de audio...", "listening"},
	domain.EventAgentAnalyzing:     {"Consultando información en CRM", "Analizando contexto y necesidades...", "analyzing"},
	domain.EventSystemVerification: {"Verificando Datos", "Confirmando información del sistema...", "verification"},
	domain.EventCRMLookup:          {"Consultando CRM", "Accediendo historial del cliente...", "verification"},
	domain.EventFraudAnalysis:      {"Análisis de Seguridad", "Evaluando patrones de riesgo...", "fraud"},
	domain.EventDecisionMaking:     {"Evaluando Opciones", "Determinando mejor curso de acción...", "decision"},
	domain.EventActionExecution:    {"Ejecutando Acción", "Procesando solicitud del cliente...", "action"},
	domain.EventAgentResponse:      {"Consultando información en CRM", "Formulando comunicación clara...", "greeting"},
	domain.EventSessionEnd:         {"Finalizando Sesión", "Cerrando conversación...", "decision"},
	domain.EventDatabaseQuery:      {"Consultando Base de Datos", "Buscando información específica...", "verification"},
}

// activityFamily 头像话语中的活动线索
type activityFamily struct {
	label    string
	icon     string
	patterns []*regexp.Regexp
}

var activityFamilies = []activityFamily{
	{"Consulta Base de Datos", "verification", compileAll(
		`buscando en mi base de datos`, `consultando la base de datos`, `revisando en el sistema`,
	)},
	{"Verificación de Datos", "verification", compileAll(
		`verificando`, `confirmando`, `revisando datos`,
	)},
	{"Razonamiento", "analyzing", compileAll(
		`analizando`, `evaluando`, `procesando información`,
	)},
	{"Detección de Transacción", "fraud", compileAll(
		`detecté una transacción`, `encontré un movimiento`, `veo una operación`,
	)},
}

// 活动描述中提取的字段
var (
	activityDatePattern = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)

	activityAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*euros?`),
		regexp.MustCompile(`€\s*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*€`),
		regexp.MustCompile(`(?i)importe:?\s*(\d+(?:\.\d+)?)`),
	}
)

// 关键词提取时忽略的高频词
var keywordStopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"el", "la", "de", "que", "y", "a", "en", "un", "es", "se", "no",
		"te", "lo", "le", "da", "su", "por", "son", "con", "para", "al",
		"del", "los", "las", "uno", "una", "pero", "todo", "más", "muy",
		"mi", "me", "he", "ha", "si", "yo", "fue", "sido", "tiene",
		"hacer", "puede", "estar", "como", "este", "esta",
	} {
		keywordStopwords[w] = struct{}{}
	}
}

func countMatches(re *regexp.Regexp, text string) int {
	return len(re.FindAllStringIndex(text, -1))
}

func tierScore(tiers []sentimentTier, text string) float64 {
	score := 0.0
	for _, tier := range tiers {
		for _, re := range tier.patterns {
			if n := countMatches(re, text); n > 0 {
				score += float64(n) * tier.weight
			}
		}
	}
	return score
}

func flatScore(patterns []*regexp.Regexp, weight float64, text string) float64 {
	score := 0.0
	for _, re := range patterns {
		if n := countMatches(re, text); n > 0 {
			score += float64(n) * weight
		}
	}
	return score
}
