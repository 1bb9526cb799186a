package tutor

// Store exposes tutor retrieval for HTTP handlers and sessions.
type Store interface {
	List() []Tutor
	FindByID(id string) (Tutor, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Tutor
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied tutors.
func NewMemoryStore(items []Tutor) *MemoryStore {
	return &MemoryStore{items: append([]Tutor(nil), items...)}
}

// List returns the tutor list.
func (s *MemoryStore) List() []Tutor {
	return append([]Tutor(nil), s.items...)
}

// FindByID looks up a tutor by identifier.
func (s *MemoryStore) FindByID(id string) (Tutor, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Tutor{}, false
}

// Resolve 按 ID 查找助教，找不到时回退到默认助教或列表第一项。
func Resolve(store Store, id string) (Tutor, bool) {
	if store == nil {
		return Tutor{}, false
	}
	if id != "" {
		if t, ok := store.FindByID(id); ok {
			return t, true
		}
	}
	if t, ok := store.FindByID(DefaultID); ok {
		return t, true
	}
	items := store.List()
	if len(items) == 0 {
		return Tutor{}, false
	}
	return items[0], true
}
