// Package validate faz as checagens estruturais antes do proxy: tamanho do
// corpo, Content-Type e headers obrigatórios. Nada de schema de negócio.
//
// Roda depois do rate limit de propósito: cliente estourando o limite é
// rejeitado barato, sem pagar o custo de inspecionar a requisição.
package validate

import (
	"mime"
	"net/http"

	gw "edu-gateway/gateway/domain"
)

type Stage struct{}

func NewStage() *Stage { return &Stage{} }

func (s *Stage) Name() string { return "validate" }

// Handle aplica as regras da rota resolvida:
//
//   - método com corpo sem Content-Type → 400 (header obrigatório ausente)
//   - Content-Type fora do conjunto aceito da rota → 415
//   - Content-Length acima do máximo da rota → 413
//
// Corpo de tamanho desconhecido (chunked) passa: só o tamanho declarado é
// comparado com o máximo.
func (s *Stage) Handle(r *http.Request, rc *gw.RequestContext) *gw.Reject {
	if !methodHasBody(r.Method) {
		return nil
	}

	rule := rc.Rule
	if rule == nil {
		return nil
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return gw.MissingHeader("Content-Type")
	}

	if len(rule.ContentTypes) > 0 {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return gw.UnsupportedMediaType(ct)
		}
		if !accepted(rule.ContentTypes, mt) {
			return gw.UnsupportedMediaType(mt)
		}
	}

	if rule.MaxBodyBytes > 0 && r.ContentLength > rule.MaxBodyBytes {
		return gw.PayloadTooLarge(rule.MaxBodyBytes)
	}
	return nil
}

func methodHasBody(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func accepted(set []string, mt string) bool {
	for _, s := range set {
		if s == mt {
			return true
		}
	}
	return false
}
