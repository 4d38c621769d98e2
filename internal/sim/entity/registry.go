package entity

// Registry owns every live actor of one simulation. Remote proxies are also indexed by network id.
type Registry struct {
	order   []*Entity
	byID    map[string]*Entity
	proxies map[string]*Entity
}

func NewRegistry() *Registry {
	return &Registry{
		byID:    map[string]*Entity{},
		proxies: map[string]*Entity{},
	}
}

// Add registers e. An existing actor with the same id is replaced.
func (r *Registry) Add(e *Entity) {
	if _, ok := r.byID[e.ID]; ok {
		r.Remove(e.ID)
	}
	r.order = append(r.order, e)
	r.byID[e.ID] = e
	if e.Kind == KindRemote {
		r.proxies[e.ID] = e
	}
}

// Remove forgets the actor with the given id. It reports whether one existed.
func (r *Registry) Remove(id string) bool {
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	delete(r.proxies, id)
	for i, x := range r.order {
		if x == e {
			copy(r.order[i:], r.order[i+1:])
			r.order[len(r.order)-1] = nil
			r.order = r.order[:len(r.order)-1]
			break
		}
	}
	return true
}

func (r *Registry) Get(id string) *Entity { return r.byID[id] }

// Proxy returns the remote proxy for a network id.
func (r *Registry) Proxy(netID string) *Entity { return r.proxies[netID] }

func (r *Registry) Len() int { return len(r.order) }

// Each calls fn for every actor in insertion order. fn must not add or remove actors.
func (r *Registry) Each(fn func(*Entity)) {
	for _, e := range r.order {
		fn(e)
	}
}

func (r *Registry) OfKind(k Kind) []*Entity {
	var out []*Entity
	for _, e := range r.order {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// ProxyIDs returns the network ids of all remote proxies in insertion order.
func (r *Registry) ProxyIDs() []string {
	var out []string
	for _, e := range r.order {
		if e.Kind == KindRemote {
			out = append(out, e.ID)
		}
	}
	return out
}
