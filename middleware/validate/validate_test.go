package validate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gw "edu-gateway/gateway/domain"
)

func jsonRule() *gw.RouteRule {
	return &gw.RouteRule{
		Prefix:       "/users",
		ContentTypes: []string{"application/json"},
		MaxBodyBytes: 1024,
	}
}

func rcWith(rule *gw.RouteRule) *gw.RequestContext {
	rc := gw.NewRequestContext(http.MethodPost, "/users", "10.0.0.1")
	rc.Rule = rule
	return rc
}

func TestStage_GetSkipsBodyChecks(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://gw/users", nil)
	// GET sem Content-Type é normal; nada a validar
	if rej := NewStage().Handle(r, rcWith(jsonRule())); rej != nil {
		t.Fatalf("expected GET to pass, got %s", rej.Code)
	}
}

func TestStage_PostWithoutContentTypeIs400(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://gw/users", strings.NewReader("{}"))
	rej := NewStage().Handle(r, rcWith(jsonRule()))
	if rej == nil {
		t.Fatalf("expected rejection for missing Content-Type")
	}
	if rej.Status != http.StatusBadRequest || rej.Code != gw.CodeValidationFailed {
		t.Fatalf("expected 400 %s, got %d %s", gw.CodeValidationFailed, rej.Status, rej.Code)
	}
}

func TestStage_ContentTypeOutsideSetIs415(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://gw/users", strings.NewReader("<xml/>"))
	r.Header.Set("Content-Type", "text/xml")
	rej := NewStage().Handle(r, rcWith(jsonRule()))
	if rej == nil {
		t.Fatalf("expected rejection for unsupported media type")
	}
	if rej.Status != http.StatusUnsupportedMediaType || rej.Code != gw.CodeUnsupportedMediaType {
		t.Fatalf("expected 415 %s, got %d %s", gw.CodeUnsupportedMediaType, rej.Status, rej.Code)
	}
}

func TestStage_ContentTypeParametersAreIgnored(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://gw/users", strings.NewReader("{}"))
	// charset não pode reprovar o tipo base
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	if rej := NewStage().Handle(r, rcWith(jsonRule())); rej != nil {
		t.Fatalf("expected media type with parameters to pass, got %s", rej.Code)
	}
}

func TestStage_DeclaredBodyOverLimitIs413(t *testing.T) {
	body := strings.NewReader(strings.Repeat("x", 2048))
	r := httptest.NewRequest(http.MethodPost, "http://gw/users", body)
	r.Header.Set("Content-Type", "application/json")
	rej := NewStage().Handle(r, rcWith(jsonRule()))
	if rej == nil {
		t.Fatalf("expected rejection for oversized body")
	}
	if rej.Status != http.StatusRequestEntityTooLarge || rej.Code != gw.CodePayloadTooLarge {
		t.Fatalf("expected 413 %s, got %d %s", gw.CodePayloadTooLarge, rej.Status, rej.Code)
	}
}

func TestStage_ChunkedBodyPasses(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://gw/users", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	// tamanho desconhecido (chunked): só o declarado é comparado
	r.ContentLength = -1
	if rej := NewStage().Handle(r, rcWith(jsonRule())); rej != nil {
		t.Fatalf("expected chunked body to pass, got %s", rej.Code)
	}
}

func TestStage_NoRuleMeansNoChecks(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://gw/users", strings.NewReader("{}"))
	if rej := NewStage().Handle(r, rcWith(nil)); rej != nil {
		t.Fatalf("expected pass without a resolved rule, got %s", rej.Code)
	}
}
