package gateway

import (
	"net"
	"net/http"
	"strings"
	"time"

	"edu-gateway/gateway/domain"
	"edu-gateway/middleware/transform"
)

// Stage é o contrato comum dos estágios: decide e sinaliza, nunca escreve
// corpo de resposta. nil = a requisição segue para o próximo estágio.
type Stage interface {
	Name() string
	Handle(r *http.Request, rc *domain.RequestContext) *domain.Reject
}

// Invoker é o estágio terminal (proxy). Retorna nil quando a resposta do
// upstream já foi repassada; senão a rejeição que o driver converte.
type Invoker interface {
	Invoke(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) *domain.Reject
}

// Observer recebe o desfecho de toda requisição, sem exceção.
type Observer interface {
	Observe(rc *domain.RequestContext, status int, code string, elapsed time.Duration)
}

// IdentityFunc resolve a identidade já validada do chamador (a autenticação
// em si é colaborador externo; aqui só consumimos o resultado).
type IdentityFunc func(r *http.Request) domain.Consumer

type Options struct {
	// Identify roda primeiro e não pode falhar (request ID).
	Identify Stage
	// Stages na ordem de execução: rota, rate limit, validação, concorrência.
	Stages   []Stage
	Invoker  Invoker
	Headers  transform.Policy
	Observer Observer
	Identity IdentityFunc
	// TrustXFF habilita o primeiro IP do X-Forwarded-For como IP do cliente.
	TrustXFF bool
}

type Gateway struct {
	opts Options
}

func New(opts Options) *Gateway {
	if opts.Identity == nil {
		opts.Identity = func(*http.Request) domain.Consumer { return domain.Consumer{} }
	}
	return &Gateway{opts: opts}
}

// ServeHTTP executa o pipeline para uma requisição.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := domain.NewRequestContext(r.Method, r.URL.Path, ClientIP(r, g.opts.TrustXFF))
	rc.Consumer = g.opts.Identity(r)

	tw := transform.Wrap(w, rc, g.opts.Headers, r.Header.Get("Origin"))

	var code string
	status := func() int {
		if s := tw.Status(); s != 0 {
			return s
		}
		// Nada escrito (cliente desistiu): convenção 499 só para registro.
		return 499
	}
	defer func() {
		rc.Finish()
		if g.opts.Observer != nil {
			g.opts.Observer.Observe(rc, status(), code, time.Since(rc.StartedAt))
		}
	}()

	if rej := g.opts.Identify.Handle(r, rc); rej != nil {
		code = rej.Code
		tw.WriteReject(rej)
		return
	}

	if transform.IsPreflight(r) {
		code = "preflight"
		tw.Preflight()
		return
	}

	for _, st := range g.opts.Stages {
		if rej := st.Handle(r, rc); rej != nil {
			code = rej.Code
			tw.WriteReject(rej)
			return
		}
	}

	if rej := g.opts.Invoker.Invoke(tw, r, rc); rej != nil {
		code = rej.Code
		// Cliente desistiu: a conexão está morta, não se escreve nada; o 499
		// fica só para o observador.
		if rej.Code != domain.CodeClientClosedRequest {
			tw.WriteReject(rej)
		}
		return
	}
}

// ClientIP extrai o IP do cliente: primeiro IP do X-Forwarded-For quando o
// gateway está atrás de um proxy confiável, senão o host do RemoteAddr.
func ClientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					return ip
				}
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
