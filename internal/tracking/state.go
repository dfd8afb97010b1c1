package tracking

// FiredSet is the per-cycle record of fire-once events already issued.
// It is owned by one ad cycle and only touched from that cycle's event loop.
type FiredSet struct {
	seen  map[string]struct{}
	order []string
}

// NewFiredSet returns an empty set for a fresh ad cycle.
func NewFiredSet() *FiredSet {
	return &FiredSet{seen: make(map[string]struct{})}
}

// Add marks name as fired. It returns false if name was already present.
func (s *FiredSet) Add(name string) bool {
	if _, ok := s.seen[name]; ok {
		return false
	}
	s.seen[name] = struct{}{}
	s.order = append(s.order, name)
	return true
}

// Has reports whether name has fired in this cycle.
func (s *FiredSet) Has(name string) bool {
	_, ok := s.seen[name]
	return ok
}

// Events returns fired event names in the order they fired.
func (s *FiredSet) Events() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *FiredSet) Len() int { return len(s.order) }
