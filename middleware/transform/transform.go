// Package transform cuida da borda de saída do gateway: injeta os headers
// (X-Request-ID, CORS, segurança) em toda resposta e converte as rejeições
// originadas no gateway em um envelope JSON único, para o cliente tratar
// qualquer falha de gateway do mesmo jeito.
//
// Corpo vindo do upstream passa intocado; só os headers são injetados.
package transform

import (
	"encoding/json"
	"net/http"
	"strings"

	gw "edu-gateway/gateway/domain"
)

// Policy é a configuração de CORS e headers de segurança.
type Policy struct {
	// AllowedOrigins é a allow-list de CORS; "*" libera qualquer origem.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAgeSeconds  int
	HSTS           bool
}

// OriginAllowed compara a origem com a allow-list.
func (p Policy) OriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, o := range p.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// IsPreflight detecta o preflight de CORS (OPTIONS + método solicitado).
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

// Writer envelopa o http.ResponseWriter e injeta os headers na primeira
// escrita; vale tanto para o passthrough do proxy quanto para os envelopes
// de erro do próprio gateway.
type Writer struct {
	http.ResponseWriter
	rc     *gw.RequestContext
	policy Policy
	origin string

	status      int
	wroteHeader bool
}

func Wrap(w http.ResponseWriter, rc *gw.RequestContext, policy Policy, origin string) *Writer {
	return &Writer{ResponseWriter: w, rc: rc, policy: policy, origin: origin}
}

func (w *Writer) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.inject()
	w.ResponseWriter.WriteHeader(code)
}

func (w *Writer) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush repassa para o writer de baixo (streaming do proxy).
func (w *Writer) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Status devolve o código escrito (0 se nada foi escrito).
func (w *Writer) Status() int { return w.status }

// Written informa se a resposta já começou a ser escrita.
func (w *Writer) Written() bool { return w.wroteHeader }

func (w *Writer) inject() {
	h := w.Header()
	h.Set("X-Request-ID", w.rc.RequestID)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "SAMEORIGIN")
	if w.policy.HSTS {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
	if w.policy.OriginAllowed(w.origin) {
		h.Set("Access-Control-Allow-Origin", w.origin)
		h.Add("Vary", "Origin")
	}
	if v, ok := w.rc.Annotations[gw.AnnRateLimitLimit]; ok {
		if n, ok := v.(int); ok {
			h.Set("X-RateLimit-Limit", formatInt(n))
		}
	}
	if v, ok := w.rc.Annotations[gw.AnnRateLimitRemaining]; ok {
		if n, ok := v.(int); ok {
			h.Set("X-RateLimit-Remaining", formatInt(n))
		}
	}
}

// Preflight responde o OPTIONS de CORS no próprio gateway.
func (w *Writer) Preflight() {
	h := w.Header()
	if len(w.policy.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(w.policy.AllowedMethods, ", "))
	}
	if len(w.policy.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(w.policy.AllowedHeaders, ", "))
	}
	if w.policy.MaxAgeSeconds > 0 {
		h.Set("Access-Control-Max-Age", formatInt(w.policy.MaxAgeSeconds))
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestID"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// WriteReject escreve o envelope {"error":{code,message,requestID}} com o
// status e o Retry-After da rejeição. Se a resposta já começou (proxy no
// meio do corpo), não há o que fazer: não dá para trocar o status.
func (w *Writer) WriteReject(rej *gw.Reject) {
	if w.Written() {
		return
	}
	h := w.Header()
	if rej.RetryAfter > 0 {
		h.Set("Retry-After", formatInt(retryAfterSeconds(rej.RetryAfter)))
	}
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(rej.Status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Code:      rej.Code,
		Message:   rej.Message,
		RequestID: w.rc.RequestID,
	}})
}
