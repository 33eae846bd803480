// Package registry resolves configured provider ids to implementations.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider/mock"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider/oaihttp"
)

type Registry struct {
	providers map[string]provider.Provider
}

// New builds one provider per configured entry.
func New(log *logger.Logger, cfgs []config.ProviderConfig) (*Registry, error) {
	r := &Registry{providers: map[string]provider.Provider{}}
	for _, pc := range cfgs {
		id := strings.TrimSpace(pc.ID)
		if id == "" {
			return nil, fmt.Errorf("provider id required")
		}
		if _, exists := r.providers[id]; exists {
			return nil, fmt.Errorf("duplicate provider id: %s", id)
		}

		var p provider.Provider
		switch strings.ToLower(strings.TrimSpace(pc.Type)) {
		case "mock":
			p = mock.New(pc)
		case "openai_http", "oai_http":
			c, err := oaihttp.New(pc)
			if err != nil {
				return nil, err
			}
			p = c
		default:
			return nil, fmt.Errorf("unsupported provider type %q for %q", pc.Type, id)
		}
		r.providers[id] = p
		log.Debug("provider registered", "provider", id, "type", pc.Type)
	}
	return r, nil
}

// NewRegistry wraps already constructed providers, keyed by Name().
func NewRegistry(ps ...provider.Provider) *Registry {
	r := &Registry{providers: map[string]provider.Provider{}}
	for _, p := range ps {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(id string) (provider.Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[strings.TrimSpace(id)]
	return p, ok
}

func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.providers))
	for id := range r.providers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
