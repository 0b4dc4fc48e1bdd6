package domain

import "time"

// Versão resolvida para a requisição. O conjunto registrado vem da
// configuração; "unversioned" é usado quando o gateway não exige versão.
const VersionNone = "unversioned"

// Tier classifica o consumidor para fins de rate limit.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierStandard  Tier = "standard"
	TierPremium   Tier = "premium"
)

// Consumer é a identidade já resolvida de quem chama (dono da API key).
// O valor zero representa um cliente anônimo (identificado só pelo IP).
type Consumer struct {
	ID   string
	Tier Tier
}

// Known informa se há uma identidade de consumidor (API key) resolvida.
func (c Consumer) Known() bool { return c.ID != "" }

// EffectiveTier nunca retorna vazio: anônimo é o padrão.
func (c Consumer) EffectiveTier() Tier {
	if c.Tier == "" {
		return TierAnonymous
	}
	return c.Tier
}

// RouteRule é a regra declarativa resolvida para a rota da requisição.
// Preenchida pelo roteador de versão e lida pelos estágios seguintes.
type RouteRule struct {
	Prefix   string
	Upstream string
	// Versions vazio = a rota aceita qualquer versão registrada.
	Versions []string

	Timeout      time.Duration
	MaxBodyBytes int64
	ContentTypes []string

	// Override de rate limit da rota. Zero = sem override (usa os padrões).
	RateLimit  int
	RateWindow time.Duration
}

// Supports informa se a rota atende a versão dada (lista vazia = todas).
func (r *RouteRule) Supports(version string) bool {
	if len(r.Versions) == 0 {
		return true
	}
	for _, v := range r.Versions {
		if v == version {
			return true
		}
	}
	return false
}

// Chaves de anotação com significado combinado entre estágios.
const (
	// AnnRateLimitLimit / AnnRateLimitRemaining viram os headers
	// X-RateLimit-* quando o estágio de rate limit os anota.
	AnnRateLimitLimit     = "ratelimit_limit"
	AnnRateLimitRemaining = "ratelimit_remaining"
	// AnnUpstreamPath é o path reescrito (prefixo de versão removido) que o
	// invocador usa ao chamar o upstream.
	AnnUpstreamPath = "upstream_path"
)

// RequestContext é o envelope que acompanha uma requisição pelo pipeline.
//
// Os campos de identificação (RequestID, Version, Consumer, ClientIP, Route)
// são resolvidos uma vez pelos primeiros estágios e imutáveis depois disso.
// Annotations é um espaço de rascunho: cada estágio pode escrever e o
// observador lê tudo no final. O contexto pertence exclusivamente à goroutine
// da requisição; não há compartilhamento, logo não há lock.
type RequestContext struct {
	RequestID string
	Version   string
	Consumer  Consumer
	ClientIP  string

	Method string
	// Route é o template normalizado (ex: /api/v1/users/{id}), não o path
	// cru, para que as chaves de limiter/breaker não explodam por recurso.
	Route    string
	Upstream string
	Rule     *RouteRule

	StartedAt   time.Time
	Annotations map[string]any

	deferred []func()
}

// NewRequestContext cria o contexto com o que se sabe antes de qualquer
// estágio rodar. Route começa como o path cru e é substituída pelo template
// normalizado quando o roteador resolve a rota.
func NewRequestContext(method, path, clientIP string) *RequestContext {
	return &RequestContext{
		Method:      method,
		Route:       path,
		ClientIP:    clientIP,
		Version:     VersionNone,
		StartedAt:   time.Now(),
		Annotations: make(map[string]any),
	}
}

// Annotate grava um valor no espaço de rascunho do pipeline.
func (rc *RequestContext) Annotate(key string, value any) {
	rc.Annotations[key] = value
}

// Defer registra uma liberação de recurso (ex: vaga de concorrência) a ser
// executada pelo driver quando a requisição terminar, em qualquer caminho.
func (rc *RequestContext) Defer(fn func()) {
	rc.deferred = append(rc.deferred, fn)
}

// Finish executa as liberações registradas, em ordem LIFO.
func (rc *RequestContext) Finish() {
	for i := len(rc.deferred) - 1; i >= 0; i-- {
		rc.deferred[i]()
	}
	rc.deferred = nil
}
