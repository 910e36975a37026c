// Package registry maps the closed set of payload types that may travel in an
// envelope's parameters to stable wire names and back.
//
// Names are chosen by the caller and never derived from Go package paths, so
// two processes built from different code agree on a payload as long as they
// register the same name for it.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// ErrInvalidEntry is returned by New for empty names, missing types and
// duplicate registrations.
var ErrInvalidEntry = errors.New("invalid registry entry")

// Entry binds a stable name to one concrete Go type.
type Entry struct {
	Name string
	Type reflect.Type
}

// Of returns an entry for the exact type T.
func Of[T any](name string) Entry {
	return Entry{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem()}
}

// Registry is immutable once built and safe for concurrent use.
type Registry struct {
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// New builds a registry from the given entries.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]reflect.Type, len(entries)),
		byType: make(map[reflect.Type]string, len(entries)),
	}

	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: empty name for type %v", ErrInvalidEntry, e.Type)
		}
		if e.Type == nil {
			return nil, fmt.Errorf("%w: nil type for name %q", ErrInvalidEntry, e.Name)
		}
		if e.Type.Kind() == reflect.Interface {
			return nil, fmt.Errorf("%w: %q must name a concrete type, got interface %v", ErrInvalidEntry, e.Name, e.Type)
		}
		if prev, ok := r.byName[e.Name]; ok {
			return nil, fmt.Errorf("%w: name %q already bound to %v", ErrInvalidEntry, e.Name, prev)
		}
		if prev, ok := r.byType[e.Type]; ok {
			return nil, fmt.Errorf("%w: type %v already registered as %q", ErrInvalidEntry, e.Type, prev)
		}
		r.byName[e.Name] = e.Type
		r.byType[e.Type] = e.Name
	}

	return r, nil
}

// MustNew is like New but panics on an invalid entry. Intended for
// package-level registries built from literals.
func MustNew(entries ...Entry) *Registry {
	r, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// NameOf returns the registered name of v's dynamic type. Only the exact type
// matches: a *T does not resolve to the name registered for T.
func (r *Registry) NameOf(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	name, ok := r.byType[reflect.TypeOf(v)]
	return name, ok
}

// TypeOf resolves a registered name. Unknown names report false.
func (r *Registry) TypeOf(name string) (reflect.Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return len(r.byName)
}
