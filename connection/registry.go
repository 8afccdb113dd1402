package connection

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry resolves connection names against runtime overrides first and
// static configuration second. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	static   map[string]Config
	runtime  map[string]Config
	resolved map[string]Config
	active   string
	logger   *slog.Logger
}

// NewRegistry creates a registry over the given static connections. Static
// entries are validated lazily, on first resolution.
func NewRegistry(static map[string]Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		static:   make(map[string]Config, len(static)),
		runtime:  make(map[string]Config),
		resolved: make(map[string]Config),
		active:   DefaultName,
		logger:   logger,
	}
	for name, cfg := range static {
		r.static[name] = cfg
	}
	return r
}

// WithLegacy registers serverURL and apiKey as the default connection unless
// one is already configured. Empty values are ignored.
func (r *Registry) WithLegacy(serverURL, apiKey string) *Registry {
	if serverURL == "" && apiKey == "" {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.static[DefaultName]; !ok {
		r.static[DefaultName] = Config{ServerURL: serverURL, APIKey: apiKey}
	}
	return r
}

// Resolve returns the connection registered under name. An empty name
// resolves the active connection.
func (r *Registry) Resolve(name string) (Config, error) {
	r.mu.RLock()
	if name == "" {
		name = r.active
	}
	if cfg, ok := r.runtime[name]; ok {
		r.mu.RUnlock()
		return cfg, nil
	}
	if cfg, ok := r.resolved[name]; ok {
		r.mu.RUnlock()
		return cfg, nil
	}
	raw, ok := r.static[name]
	r.mu.RUnlock()

	if !ok {
		return Config{}, &NotFoundError{Name: name}
	}

	cfg, err := normalize(name, raw)
	if err != nil {
		return Config{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A runtime override may have been added while unlocked.
	if rt, ok := r.runtime[name]; ok {
		return rt, nil
	}
	if cached, ok := r.resolved[name]; ok {
		return cached, nil
	}
	r.resolved[name] = cfg
	return cfg, nil
}

// SetActive makes name the connection used by empty-name resolutions.
func (r *Registry) SetActive(name string) error {
	if _, err := r.Resolve(name); err != nil {
		return err
	}
	r.mu.Lock()
	r.active = name
	r.mu.Unlock()
	r.logger.Debug("active connection changed", "connection", name)
	return nil
}

// Active returns the name of the active connection.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// ActiveConfig resolves the active connection.
func (r *Registry) ActiveConfig() (Config, error) {
	return r.Resolve("")
}

// AddRuntime validates cfg and registers it under name, overriding any static
// connection of the same name.
func (r *Registry) AddRuntime(name string, cfg Config) error {
	cfg, err := normalize(name, cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.runtime[name] = cfg
	r.mu.Unlock()
	r.logger.Debug("runtime connection added", "connection", name, "server_url", cfg.ServerURL)
	return nil
}

// Remove drops the runtime override for name. When name was active the
// default connection becomes active again.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runtime, name)
	delete(r.resolved, name)
	if r.active == name {
		r.active = DefaultName
	}
}

// Names returns the sorted names of all runtime and static connections.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.static)+len(r.runtime))
	for name := range r.static {
		seen[name] = struct{}{}
	}
	for name := range r.runtime {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
