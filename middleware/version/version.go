// Package version resolve a versão da API e a rota da requisição.
//
// A versão vem do prefixo do path (/api/v1/...), senão do header
// Accept-Version, senão é a última estável registrada. O path é normalizado
// para um template (segmentos numéricos e UUIDs viram {id}) para que as
// chaves de rate limit e circuit breaker sejam por formato de endpoint e não
// por recurso individual.
package version

import (
	"net/http"
	"regexp"
	"sort"
	"strings"

	gw "edu-gateway/gateway/domain"
)

// AcceptHeader é o hint de versão quando o path não tem prefixo.
const AcceptHeader = "Accept-Version"

var (
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	versionForm    = regexp.MustCompile(`^v[0-9]+$`)
)

type Options struct {
	// Versions é o conjunto registrado (ex: ["v1","v2"]).
	Versions []string
	// Latest é o padrão quando nem path nem header indicam versão.
	// Vazio = gateway sem versão obrigatória (resolve para "unversioned").
	Latest string
	// Routes são as regras declarativas; o prefixo mais longo vence.
	Routes []gw.RouteRule
}

type Stage struct {
	registered map[string]bool
	latest     string
	routes     []gw.RouteRule
}

func NewStage(opts Options) *Stage {
	s := &Stage{
		registered: make(map[string]bool, len(opts.Versions)),
		latest:     opts.Latest,
		routes:     append([]gw.RouteRule(nil), opts.Routes...),
	}
	for _, v := range opts.Versions {
		s.registered[v] = true
	}
	sort.SliceStable(s.routes, func(i, j int) bool {
		return len(s.routes[i].Prefix) > len(s.routes[j].Prefix)
	})
	return s
}

func (s *Stage) Name() string { return "version" }

// Handle resolve (versão, template de rota, upstream). Rejeita com 400 se a
// versão pedida não está registrada e 404 se nenhuma rota casa com o path.
func (s *Stage) Handle(r *http.Request, rc *gw.RequestContext) *gw.Reject {
	ver, rest := splitVersion(r.URL.Path)
	if ver == "" {
		ver = normalizeVersion(r.Header.Get(AcceptHeader))
	}
	if ver == "" {
		ver = s.latest
	}

	switch {
	case ver == "":
		rc.Version = gw.VersionNone
	case s.registered[ver]:
		rc.Version = ver
	default:
		return gw.UnsupportedVersion(ver)
	}

	rule := s.match(rest)
	if rule == nil {
		return gw.RouteNotFound(r.URL.Path)
	}
	if rc.Version != gw.VersionNone && !rule.Supports(rc.Version) {
		return gw.UnsupportedVersion(rc.Version)
	}

	normalized := Normalize(rest)
	if rc.Version != gw.VersionNone {
		rc.Route = "/api/" + rc.Version + normalized
	} else {
		rc.Route = normalized
	}
	rc.Upstream = rule.Upstream
	rc.Rule = rule
	// O upstream recebe o path sem o prefixo de versão.
	rc.Annotate(gw.AnnUpstreamPath, rest)
	return nil
}

func (s *Stage) match(path string) *gw.RouteRule {
	for i := range s.routes {
		p := s.routes[i].Prefix
		if path == p || strings.HasPrefix(path, p+"/") || p == "/" {
			return &s.routes[i]
		}
	}
	return nil
}

// splitVersion separa o prefixo /api/vN do restante do path.
// "/api/v1/users/9" → ("v1", "/users/9"); sem prefixo → ("", path).
func splitVersion(path string) (string, string) {
	if !strings.HasPrefix(path, "/api/") {
		return "", path
	}
	rest := strings.TrimPrefix(path, "/api")
	parts := strings.SplitN(strings.TrimPrefix(rest, "/"), "/", 2)
	if len(parts) == 0 || !versionForm.MatchString(parts[0]) {
		return "", path
	}
	if len(parts) == 1 || parts[1] == "" {
		return parts[0], "/"
	}
	return parts[0], "/" + parts[1]
}

// normalizeVersion aceita "v2" e também o atalho "2" no header.
func normalizeVersion(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if versionForm.MatchString(h) {
		return h
	}
	if numericSegment.MatchString(h) {
		return "v" + h
	}
	// Formato desconhecido segue adiante e falha no check de registro.
	return h
}

// Normalize troca segmentos que parecem identificadores (números, UUIDs)
// pelo placeholder {id}.
func Normalize(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, seg := range segs {
		if numericSegment.MatchString(seg) || uuidSegment.MatchString(seg) {
			segs[i] = "{id}"
		}
	}
	return "/" + strings.Join(segs, "/")
}
