// Package config carrega a superfície declarativa do gateway (YAML):
// versões, rotas, upstreams, regras de rate limit, circuit breaker e CORS.
//
// O binário continua lendo ajustes de servidor por variáveis de ambiente
// (ver cmd/gateway); aqui fica só o que é por-rota/por-upstream e não cabe
// em env var.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Duration aceita valores no formato do time.ParseDuration ("5s", "1m30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Rule é uma regra de rate limit: Limit requisições por janela.
type Rule struct {
	Limit  int      `yaml:"limit"`
	Window Duration `yaml:"window"`
}

func (r Rule) Zero() bool { return r.Limit == 0 && r.Window == 0 }

type Upstream struct {
	ID      string `yaml:"id"`
	BaseURL string `yaml:"base_url"`
	// Healthy é informativo (inventário); o circuit breaker é o sinal
	// autoritativo de falha, não este flag.
	Healthy bool `yaml:"healthy"`
}

type Route struct {
	Prefix       string   `yaml:"prefix"`
	Upstream     string   `yaml:"upstream"`
	Versions     []string `yaml:"versions"`
	Timeout      Duration `yaml:"timeout"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	ContentTypes []string `yaml:"content_types"`
	RateLimit    *Rule    `yaml:"rate_limit"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type RateLimit struct {
	// Algorithm: "fixed_window" (padrão), "token_bucket" ou "redis".
	Algorithm   string          `yaml:"algorithm"`
	Default     Rule            `yaml:"default"`
	PerTier     map[string]Rule `yaml:"per_tier"`
	PerConsumer map[string]Rule `yaml:"per_consumer"`
	// IP é a partição por endereço, independente da partição por consumidor.
	IP    Rule         `yaml:"ip"`
	Redis *RedisConfig `yaml:"redis"`
}

type Breaker struct {
	FailureThreshold  int      `yaml:"failure_threshold"`
	FailureWindow     Duration `yaml:"failure_window"`
	RecoveryTimeout   Duration `yaml:"recovery_timeout"`
	HalfOpenProbes    int      `yaml:"half_open_probes"`
	HalfOpenSuccesses int      `yaml:"half_open_successes"`
}

type Circuit struct {
	Default     Breaker            `yaml:"default"`
	PerUpstream map[string]Breaker `yaml:"per_upstream"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         Duration `yaml:"max_age"`
	HSTS           bool     `yaml:"hsts"`
}

type APIKey struct {
	ID   string `yaml:"id"`
	Tier string `yaml:"tier"`
}

type Config struct {
	Versions  []string          `yaml:"versions"`
	Latest    string            `yaml:"latest"`
	Upstreams []Upstream        `yaml:"upstreams"`
	Routes    []Route           `yaml:"routes"`
	RateLimit RateLimit         `yaml:"rate_limit"`
	Circuit   Circuit           `yaml:"circuit"`
	CORS      CORS              `yaml:"cors"`
	APIKeys   map[string]APIKey `yaml:"api_keys"`
}

// Load lê e valida o arquivo de configuração.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse desserializa e valida a configuração já em memória.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RateLimit.Algorithm == "" {
		c.RateLimit.Algorithm = "fixed_window"
	}
	if c.RateLimit.Default.Zero() {
		c.RateLimit.Default = Rule{Limit: 60, Window: Duration(time.Minute)}
	}
	if c.RateLimit.IP.Zero() {
		c.RateLimit.IP = c.RateLimit.Default
	}
	if c.Circuit.Default.FailureThreshold == 0 {
		c.Circuit.Default.FailureThreshold = 5
	}
	if c.Circuit.Default.FailureWindow == 0 {
		c.Circuit.Default.FailureWindow = Duration(30 * time.Second)
	}
	if c.Circuit.Default.RecoveryTimeout == 0 {
		c.Circuit.Default.RecoveryTimeout = Duration(10 * time.Second)
	}
	if c.Circuit.Default.HalfOpenProbes == 0 {
		c.Circuit.Default.HalfOpenProbes = 1
	}
	if c.Circuit.Default.HalfOpenSuccesses == 0 {
		c.Circuit.Default.HalfOpenSuccesses = 1
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID", "Accept-Version"}
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = Duration(10 * time.Minute)
	}
}

func (c *Config) validate() error {
	if len(c.Versions) == 0 {
		return errors.New("config: at least one api version must be registered")
	}
	registered := make(map[string]bool, len(c.Versions))
	for _, v := range c.Versions {
		registered[v] = true
	}
	if c.Latest == "" {
		c.Latest = c.Versions[len(c.Versions)-1]
	}
	if !registered[c.Latest] {
		return fmt.Errorf("config: latest version %q is not in the registered set", c.Latest)
	}

	upstreams := make(map[string]bool, len(c.Upstreams))
	for _, u := range c.Upstreams {
		if u.ID == "" {
			return errors.New("config: upstream without id")
		}
		if upstreams[u.ID] {
			return fmt.Errorf("config: duplicate upstream %q", u.ID)
		}
		// url.Parse aceita quase qualquer string; exigir esquema e host pega
		// o erro na carga da config em vez de na primeira chamada proxiada.
		parsed, err := url.Parse(u.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config: upstream %q has invalid base_url %q", u.ID, u.BaseURL)
		}
		upstreams[u.ID] = true
	}

	if len(c.Routes) == 0 {
		return errors.New("config: at least one route is required")
	}
	for i, rt := range c.Routes {
		if !strings.HasPrefix(rt.Prefix, "/") {
			return fmt.Errorf("config: route %d prefix %q must start with /", i, rt.Prefix)
		}
		if !upstreams[rt.Upstream] {
			return fmt.Errorf("config: route %q references unknown upstream %q", rt.Prefix, rt.Upstream)
		}
		for _, v := range rt.Versions {
			if !registered[v] {
				return fmt.Errorf("config: route %q references unknown version %q", rt.Prefix, v)
			}
		}
		if rt.RateLimit != nil && (rt.RateLimit.Limit <= 0 || rt.RateLimit.Window <= 0) {
			return fmt.Errorf("config: route %q has invalid rate_limit", rt.Prefix)
		}
	}

	switch c.RateLimit.Algorithm {
	case "fixed_window", "token_bucket":
	case "redis":
		if c.RateLimit.Redis == nil || c.RateLimit.Redis.Addr == "" {
			return errors.New("config: rate_limit.redis.addr is required for the redis algorithm")
		}
	default:
		return fmt.Errorf("config: unknown rate limit algorithm %q", c.RateLimit.Algorithm)
	}

	for key, rule := range c.RateLimit.PerConsumer {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return fmt.Errorf("config: per_consumer rule %q is invalid", key)
		}
	}
	return nil
}
