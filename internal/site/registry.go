package site

import (
	"fmt"
	"strings"
	"sync"

	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

// Registry holds the active sites. Registration validates the site's
// metadata defensively: a site whose accessors panic or return garbage
// is rejected instead of taking the process down later.
type Registry struct {
	log logx.Logger

	mu    sync.RWMutex
	order []string
	sites map[string]Site
}

func NewRegistry(log logx.Logger) *Registry {
	return &Registry{
		log:   log,
		sites: make(map[string]Site),
	}
}

// Register validates s and adds it. Registering an id that already
// exists replaces the earlier site. The wildcard name is reserved.
func (r *Registry) Register(s Site) error {
	id, err := validate(s)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sites[id]; exists {
		r.log.Warn("site replaced", logx.String("site", id))
	} else {
		r.order = append(r.order, id)
	}
	r.sites[id] = s
	return nil
}

// Unregister removes the site with the given id. It reports whether a
// site was removed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sites[id]; !ok {
		return false
	}
	delete(r.sites, id)
	for i, name := range r.order {
		if name == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the site with the given id.
func (r *Registry) Get(id string) (Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[id]
	return s, ok
}

// List returns the registered sites in registration order.
func (r *Registry) List() []Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Site, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sites[id])
	}
	return out
}

// Resolve maps a user-typed name to a site id. It accepts ids, display
// names (case-insensitive), and the subscription wildcard.
func (r *Registry) Resolve(name string) (string, bool) {
	if strings.EqualFold(name, storage.AllSites) {
		return storage.AllSites, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.sites[name]; ok {
		return name, true
	}
	for _, id := range r.order {
		if strings.EqualFold(r.sites[id].DisplayName(), name) {
			return id, true
		}
	}
	return "", false
}

// validate calls the site's metadata accessors under a recover so a
// panicking implementation surfaces as a registration error.
func validate(s Site) (id string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &RegistrationError{SiteID: id, Reason: fmt.Sprintf("metadata panicked: %v", p)}
		}
	}()
	if s == nil {
		return "", &RegistrationError{Reason: "nil site"}
	}
	id = s.ID()
	switch {
	case strings.TrimSpace(id) == "":
		return id, &RegistrationError{SiteID: id, Reason: "empty id"}
	case strings.EqualFold(id, storage.AllSites):
		return id, &RegistrationError{SiteID: id, Reason: "reserved name"}
	case strings.ContainsAny(id, " \t\n"):
		return id, &RegistrationError{SiteID: id, Reason: "id contains whitespace"}
	}
	if strings.TrimSpace(s.DisplayName()) == "" {
		return id, &RegistrationError{SiteID: id, Reason: "empty display name"}
	}
	s.Description()
	s.Schedule()
	return id, nil
}
