// Package requestid atribui e propaga o ID de correlação da requisição.
//
// Se o cliente mandou um X-Request-ID válido, ele é reaproveitado tal qual
// (habilita rastreio iniciado no cliente); senão geramos um UUID. O ID
// escolhido sempre volta no header da resposta e segue para o upstream.
package requestid

import (
	"net/http"

	gw "edu-gateway/gateway/domain"

	"github.com/google/uuid"
)

// Header padrão de correlação.
const Header = "X-Request-ID"

const maxLen = 128

type Stage struct{}

func NewStage() *Stage { return &Stage{} }

func (s *Stage) Name() string { return "requestid" }

// Handle nunca rejeita: sempre há um ID ao final.
func (s *Stage) Handle(r *http.Request, rc *gw.RequestContext) *gw.Reject {
	if v := r.Header.Get(Header); Valid(v) {
		rc.RequestID = v
		return nil
	}
	rc.RequestID = uuid.NewString()
	return nil
}

// Valid aceita IDs não vazios, de tamanho limitado e charset seguro para
// headers e logs: letras, dígitos, ponto, hífen e underscore.
func Valid(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
