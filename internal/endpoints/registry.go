// Package endpoints names the upstream dashboard endpoints so callers refer
// to them by name rather than literal URLs.
package endpoints

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/littleredflower/dashcache/internal/output"
)

//go:embed endpoints.yaml
var defaultYAML []byte

// MaxWatchlistSymbols is the upstream limit for one quotes request.
const MaxWatchlistSymbols = 50

var (
	symbolPattern      = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)
	placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)
)

// Endpoint is one named GET endpoint.
type Endpoint struct {
	Name        string            `yaml:"name" json:"name"`
	Path        string            `yaml:"path" json:"path"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Params      []string          `yaml:"params,omitempty" json:"params,omitempty"`
	Defaults    map[string]string `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Prefetch    bool              `yaml:"prefetch" json:"prefetch"`
}

// PathParams lists the {placeholders} in the endpoint path.
func (e Endpoint) PathParams() []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(e.Path, -1) {
		names = append(names, m[1])
	}
	return names
}

type file struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Registry holds endpoints indexed by name. It is safe for concurrent use;
// Replace swaps the contents atomically when an override file changes.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Endpoint
	order  []string
}

var (
	defaultOnce sync.Once
	defaultEps  []Endpoint
)

// Default returns a fresh registry holding the built-in endpoints.
func Default() *Registry {
	defaultOnce.Do(func() {
		var f file
		if err := yaml.Unmarshal(defaultYAML, &f); err != nil {
			panic(fmt.Sprintf("endpoints: parsing embedded registry: %v", err))
		}
		defaultEps = f.Endpoints
	})
	return New(defaultEps...)
}

// New builds a registry from eps. Later entries with the same name win.
func New(eps ...Endpoint) *Registry {
	r := &Registry{byName: make(map[string]Endpoint)}
	r.merge(eps)
	return r
}

func (r *Registry) merge(eps []Endpoint) {
	for _, ep := range eps {
		if _, exists := r.byName[ep.Name]; !exists {
			r.order = append(r.order, ep.Name)
		}
		r.byName[ep.Name] = ep
	}
}

// Lookup returns the endpoint called name.
func (r *Registry) Lookup(name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.byName[name]
	return ep, ok
}

// All returns every endpoint in registration order.
func (r *Registry) All() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eps := make([]Endpoint, 0, len(r.order))
	for _, name := range r.order {
		eps = append(eps, r.byName[name])
	}
	return eps
}

// Names returns the endpoint names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Replace swaps in the contents of other.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	byName := make(map[string]Endpoint, len(other.byName))
	for k, v := range other.byName {
		byName[k] = v
	}
	order := append([]string(nil), other.order...)
	other.mu.RUnlock()

	r.mu.Lock()
	r.byName = byName
	r.order = order
	r.mu.Unlock()
}

// URL builds the full URL for the named endpoint. Path placeholders are
// filled from params; the rest become the query string, sorted by key so
// equal requests produce equal cache keys.
func (r *Registry) URL(base, name string, params url.Values) (string, error) {
	ep, ok := r.Lookup(name)
	if !ok {
		return "", output.ErrUsageHint(
			fmt.Sprintf("Unknown endpoint: %s", name),
			"Run: dashcache endpoints",
		)
	}
	return ep.URL(base, params)
}

// URL builds the full URL for e against base.
func (e Endpoint) URL(base string, params url.Values) (string, error) {
	query := url.Values{}
	for k, v := range e.Defaults {
		query.Set(k, v)
	}
	for k, vs := range params {
		query.Del(k)
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	path := e.Path
	for _, p := range e.PathParams() {
		v := query.Get(p)
		if v == "" {
			return "", output.ErrUsageHint(
				fmt.Sprintf("Endpoint %s requires %s", e.Name, p),
				fmt.Sprintf("Pass --param %s=<value>", p),
			)
		}
		path = strings.ReplaceAll(path, "{"+p+"}", url.PathEscape(v))
		query.Del(p)
	}

	u := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u, nil
}

// Resolve accepts an endpoint name, an absolute URL, or a path starting
// with "/", and returns the URL to fetch.
func (r *Registry) Resolve(base, target string, params url.Values) (string, error) {
	switch {
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return withQuery(target, params)
	case strings.HasPrefix(target, "/"):
		return withQuery(strings.TrimRight(base, "/")+target, params)
	default:
		return r.URL(base, target, params)
	}
}

func withQuery(raw string, params url.Values) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", output.ErrUsageHint(fmt.Sprintf("Invalid URL: %s", raw), err.Error())
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PrefetchURLs returns the URLs of every endpoint marked for prefetch that
// needs no path parameters.
func (r *Registry) PrefetchURLs(base string) []string {
	var urls []string
	for _, ep := range r.All() {
		if !ep.Prefetch || len(ep.PathParams()) > 0 {
			continue
		}
		u, err := ep.URL(base, nil)
		if err != nil {
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

// NormalizeSymbols trims, upper-cases and dedupes symbols, keeping order.
// It returns the valid symbols and the rejected ones separately.
func NormalizeSymbols(raw []string) (valid, invalid []string) {
	seen := make(map[string]bool)
	for _, entry := range raw {
		for _, s := range strings.Split(entry, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			if symbolPattern.MatchString(s) {
				valid = append(valid, s)
			} else {
				invalid = append(invalid, s)
			}
		}
	}
	return valid, invalid
}

// WatchlistQuotesURL builds the quotes URL for symbols.
func (r *Registry) WatchlistQuotesURL(base string, symbols []string) (string, error) {
	valid, invalid := NormalizeSymbols(symbols)
	if len(invalid) > 0 {
		return "", output.ErrUsageHint(
			fmt.Sprintf("Invalid symbols: %s", strings.Join(invalid, ", ")),
			"Symbols are 1-10 letters or digits, e.g. 600519,MSFT",
		)
	}
	if len(valid) == 0 {
		return "", output.ErrUsage("No symbols given")
	}
	if len(valid) > MaxWatchlistSymbols {
		return "", output.ErrUsage(fmt.Sprintf("Too many symbols (max %d). Got %d.", MaxWatchlistSymbols, len(valid)))
	}
	return r.URL(base, "watchlist_quotes", url.Values{"symbols": {strings.Join(valid, ",")}})
}

// LoadFile returns the built-in registry merged with the overrides in path.
// Overrides may add endpoints or replace existing ones by name.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i, ep := range f.Endpoints {
		if ep.Name == "" || !strings.HasPrefix(ep.Path, "/") {
			return nil, fmt.Errorf("%s: endpoint %d needs a name and a path starting with /", path, i+1)
		}
	}

	r := Default()
	r.merge(f.Endpoints)
	return r, nil
}
