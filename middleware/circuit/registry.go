package circuit

import "sync"

// Registry guarda um breaker por upstream, criado na primeira referência e
// vivo pelo processo inteiro. A lógica é por upstream de propósito: um
// backend doente não pode travar tráfego para os saudáveis.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	defaults  Options
	overrides map[string]Options
	onChange  func(upstream string, s State)
}

type RegistryOption func(*Registry)

// WithOverrides aplica parâmetros específicos por upstream.
func WithOverrides(o map[string]Options) RegistryOption {
	return func(r *Registry) { r.overrides = o }
}

// WithStateHook observa transições (ex: gauge de métricas). O hook roda em
// goroutine própria; não deve bloquear indefinidamente.
func WithStateHook(fn func(upstream string, s State)) RegistryOption {
	return func(r *Registry) { r.onChange = fn }
}

func NewRegistry(defaults Options, opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults.withDefaults(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get retorna o breaker do upstream, criando sob demanda.
func (r *Registry) Get(upstreamID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[upstreamID]; ok {
		return b
	}

	opts := r.defaults
	if o, ok := r.overrides[upstreamID]; ok {
		opts = o.withDefaults()
	}
	b := New(opts)
	if r.onChange != nil {
		id := upstreamID
		b.onChange = func(s State) { r.onChange(id, s) }
	}
	r.breakers[upstreamID] = b
	return b
}

// States tira um snapshot do estado de todos os breakers conhecidos.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.State()
	}
	return out
}
