package domain

import (
	"fmt"
	"net/http"
	"time"
)

// Códigos estáveis das falhas originadas no gateway. Fazem parte do contrato
// com os clientes (campo error.code do envelope JSON).
const (
	CodeUnsupportedVersion   = "unsupported_version"
	CodeRouteNotFound        = "route_not_found"
	CodeRateLimitExceeded    = "rate_limit_exceeded"
	CodeValidationFailed     = "validation_failed"
	CodePayloadTooLarge      = "payload_too_large"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeCircuitOpen          = "circuit_open"
	CodeUpstreamTimeout      = "upstream_timeout"
	CodeUpstreamUnreachable  = "upstream_unreachable"
	CodeConcurrencyExhausted = "concurrency_exhausted"
	CodeClientClosedRequest  = "client_closed_request"
)

// Reject é o desfecho terminal de um estágio: nenhum estágio escreve corpo de
// resposta; todos sinalizam a rejeição e o driver converte de forma uniforme.
type Reject struct {
	Status  int
	Code    string
	Message string
	// RetryAfter > 0 vira o header Retry-After (falhas transitórias).
	RetryAfter time.Duration
}

func UnsupportedVersion(v string) *Reject {
	return &Reject{
		Status:  http.StatusBadRequest,
		Code:    CodeUnsupportedVersion,
		Message: fmt.Sprintf("api version %q is not supported", v),
	}
}

func RouteNotFound(path string) *Reject {
	return &Reject{
		Status:  http.StatusNotFound,
		Code:    CodeRouteNotFound,
		Message: fmt.Sprintf("no route configured for %s", path),
	}
}

func RateLimited(retryAfter time.Duration) *Reject {
	return &Reject{
		Status:     http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

func MissingHeader(name string) *Reject {
	return &Reject{
		Status:  http.StatusBadRequest,
		Code:    CodeValidationFailed,
		Message: fmt.Sprintf("required header %s is missing", name),
	}
}

func PayloadTooLarge(max int64) *Reject {
	return &Reject{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    CodePayloadTooLarge,
		Message: fmt.Sprintf("request body exceeds the limit of %d bytes", max),
	}
}

func UnsupportedMediaType(ct string) *Reject {
	return &Reject{
		Status:  http.StatusUnsupportedMediaType,
		Code:    CodeUnsupportedMediaType,
		Message: fmt.Sprintf("content type %q is not accepted by this route", ct),
	}
}

func CircuitOpen(retryAfter time.Duration) *Reject {
	return &Reject{
		Status:     http.StatusServiceUnavailable,
		Code:       CodeCircuitOpen,
		Message:    "upstream is temporarily unavailable",
		RetryAfter: retryAfter,
	}
}

func UpstreamTimeout() *Reject {
	return &Reject{
		Status:  http.StatusGatewayTimeout,
		Code:    CodeUpstreamTimeout,
		Message: "upstream did not respond in time",
	}
}

func UpstreamUnreachable() *Reject {
	return &Reject{
		Status:  http.StatusBadGateway,
		Code:    CodeUpstreamUnreachable,
		Message: "upstream is unreachable",
	}
}

func ConcurrencyExhausted(retryAfter time.Duration) *Reject {
	return &Reject{
		Status:     http.StatusServiceUnavailable,
		Code:       CodeConcurrencyExhausted,
		Message:    "gateway is at capacity",
		RetryAfter: retryAfter,
	}
}

// ClientClosed marca desistência do cliente antes da resposta. Nada é escrito
// na conexão; o status serve apenas para o observador (convenção 499).
func ClientClosed() *Reject {
	return &Reject{
		Status:  499,
		Code:    CodeClientClosedRequest,
		Message: "client closed the request",
	}
}
