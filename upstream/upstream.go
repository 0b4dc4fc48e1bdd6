// Package upstream executa a chamada proxiada ao backend resolvido, embrulhada
// pelo circuit breaker do upstream.
//
// O proxy em si é o httputil.ReverseProxy da biblioteca padrão com um
// http.Transport compartilhado (pool de conexões). O que este pacote soma é a
// disciplina em volta: breaker antes de tocar a rede, timeout por chamada,
// classificação do desfecho (transporte/timeout/5xx/cancelamento) e a
// contabilidade correta de cada um.
package upstream

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	gw "edu-gateway/gateway/domain"
	"edu-gateway/middleware/circuit"
)

// Target é um backend que o gateway proxia.
type Target struct {
	ID      string
	BaseURL *url.URL
	// Healthy é informativo; o breaker é o sinal autoritativo de falha.
	Healthy bool
}

type Options struct {
	// DefaultTimeout vale quando a rota não define o próprio timeout.
	DefaultTimeout time.Duration
	// StripHeaders são headers só-do-gateway removidos antes do proxy
	// (ex: o header da API key).
	StripHeaders []string
	// Transport compartilhado; nil usa um pool padrão.
	Transport http.RoundTripper
}

type Invoker struct {
	targets  map[string]Target
	breakers *circuit.Registry
	opts     Options
	errLog   *log.Logger
}

func NewInvoker(targets []Target, breakers *circuit.Registry, opts Options) *Invoker {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = &http.Transport{
			MaxIdleConns:        128,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	m := make(map[string]Target, len(targets))
	for _, t := range targets {
		m[t.ID] = t
	}
	return &Invoker{
		targets:  m,
		breakers: breakers,
		opts:     opts,
		// O ReverseProxy loga erro de cópia no stderr por padrão; o desfecho
		// já sai estruturado pelo observador, então silenciamos o duplicado.
		errLog: log.New(io.Discard, "", 0),
	}
}

type callResult struct {
	status int
	err    error
}

// Invoke proxia a requisição para o upstream resolvido.
//
// Retorna nil quando a resposta do upstream foi repassada (qualquer status:
// 5xx passa para o cliente e ainda conta como falha do breaker). Retorna a
// rejeição quando o gateway mesmo precisa responder (breaker aberto, timeout,
// transporte) ou quando o cliente desistiu (nada é escrito).
func (iv *Invoker) Invoke(w http.ResponseWriter, r *http.Request, rc *gw.RequestContext) *gw.Reject {
	target, ok := iv.targets[rc.Upstream]
	if !ok {
		return gw.UpstreamUnreachable()
	}

	br := iv.breakers.Get(target.ID)
	probe, retryAfter, ok := br.Allow()
	rc.Annotate("breaker_state", br.State().String())
	if !ok {
		return gw.CircuitOpen(retryAfter)
	}
	if probe {
		rc.Annotate("breaker_probe", true)
	}

	timeout := iv.opts.DefaultTimeout
	if rc.Rule != nil && rc.Rule.Timeout > 0 {
		timeout = rc.Rule.Timeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	out := r.Clone(ctx)
	if p, ok := rc.Annotations[gw.AnnUpstreamPath].(string); ok && p != "" {
		out.URL.Path = p
		out.URL.RawPath = ""
	}
	for _, h := range iv.opts.StripHeaders {
		out.Header.Del(h)
	}
	// Correlação ponta a ponta: o backend loga o mesmo ID.
	out.Header.Set("X-Request-ID", rc.RequestID)

	var res callResult
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target.BaseURL)
			pr.SetXForwarded()
		},
		Transport: iv.opts.Transport,
		ErrorLog:  iv.errLog,
		ModifyResponse: func(resp *http.Response) error {
			res.status = resp.StatusCode
			return nil
		},
		// Só captura; quem escreve a resposta é o driver do pipeline.
		ErrorHandler: func(_ http.ResponseWriter, _ *http.Request, err error) {
			res.err = err
		},
	}

	// O ReverseProxy aborta com panic(http.ErrAbortHandler) quando o cliente
	// desconecta no meio da cópia do corpo. Sem este guarda o desfecho nunca
	// seria reportado e a vaga de sonda ficaria presa para sempre; devolvemos
	// a vaga (desistência não diz nada sobre o upstream) e repropagamos o
	// abort para o servidor da frente.
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				br.OnCancel(probe)
				panic(http.ErrAbortHandler)
			}
		}()
		proxy.ServeHTTP(w, out)
	}()

	switch {
	case res.err != nil:
		if errors.Is(r.Context().Err(), context.Canceled) {
			// Cliente desconectou: não é falha do backend, e a vaga de
			// sonda precisa voltar.
			br.OnCancel(probe)
			return gw.ClientClosed()
		}
		if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			br.OnFailure(probe)
			return gw.UpstreamTimeout()
		}
		br.OnFailure(probe)
		return gw.UpstreamUnreachable()

	case res.status >= http.StatusInternalServerError:
		// Resposta já repassada ao cliente; para o breaker é falha.
		br.OnFailure(probe)
		return nil

	default:
		br.OnSuccess(probe)
		return nil
	}
}
