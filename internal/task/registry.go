package task

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Factory produces a fresh Task instance
type Factory func() Task

type entry struct {
	desc    Descriptor
	factory Factory
}

// Registry maps task type identifiers to factories. Tasks are registered
// explicitly at startup; there is no dynamic discovery.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	byID    map[uuid.UUID]int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[uuid.UUID]int),
	}
}

// Register adds a task type. Duplicate IDs or names are rejected.
func (r *Registry) Register(f Factory) error {
	desc := f().Descriptor()
	if desc.ID == uuid.Nil {
		return fmt.Errorf("task '%s' has no ID", desc.Name)
	}
	if strings.TrimSpace(desc.Name) == "" {
		return fmt.Errorf("task %s has no name", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[desc.ID]; exists {
		return fmt.Errorf("task ID %s is already registered", desc.ID)
	}
	for _, e := range r.entries {
		if strings.EqualFold(e.desc.Name, desc.Name) {
			return fmt.Errorf("task name '%s' is already registered", desc.Name)
		}
	}

	r.byID[desc.ID] = len(r.entries)
	r.entries = append(r.entries, entry{desc: desc, factory: f})
	return nil
}

// MustRegister is Register for static setup code
func (r *Registry) MustRegister(f Factory) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// New creates an instance of the task type with the given ID
func (r *Registry) New(id uuid.UUID) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return r.entries[i].factory(), nil
}

// Lookup resolves a task by ID, name, or slug (case-insensitive) and
// returns a fresh instance.
func (r *Registry) Lookup(ref string) (Task, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return r.New(id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if strings.EqualFold(e.desc.Name, ref) || Slug(e.desc.Name) == Slug(ref) {
			return e.factory(), nil
		}
	}
	return nil, fmt.Errorf("task '%s' not found", ref)
}

// List returns the descriptors of all registered tasks in registration order
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.desc
	}
	return out
}

// Slug turns a display name such as "Extract Audio (ffmpeg)" into
// "extract-audio-ffmpeg".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, c := range strings.ToLower(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
