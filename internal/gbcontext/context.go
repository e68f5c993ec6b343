// Package gbcontext implements a heterogeneous, type-and-name-keyed value
// map used to pass job- and resource-construction inputs around without a
// serialization format. It is the Go translation of gb::Context.
package gbcontext

import (
	"fmt"
	"reflect"
	"sync"
)

type key struct {
	t    reflect.Type
	name string
}

type entry struct {
	value any // always a *T for the Type this entry is keyed on
	owned bool
}

// Context holds values keyed by (Go type, optional name). Each (type, name)
// pair holds at most one value, so the anonymous value of a type, its named
// values, and values of other types stored under the same name are all
// independent of each other. A context is safe for
// concurrent use, though in practice a job's context is only ever touched
// by the job that owns it.
type Context struct {
	mu     sync.RWMutex
	values map[key]entry
}

// New returns an empty Context.
func New() *Context {
	return &Context{values: make(map[key]entry)}
}

// Empty reports whether the context has no stored values.
func (c *Context) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values) == 0
}

// Reset clears all stored values.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[key]entry)
}

func typeKeyOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(&zero).Elem()
}

// Set stores an owned copy of value under the anonymous key for T. The
// context holds the only reference; callers get it back via Get/GetPtr.
func Set[T any](c *Context, value T) {
	SetNamed(c, "", value)
}

// SetNamed stores an owned copy of value under name.
func SetNamed[T any](c *Context, name string, value T) {
	v := value
	c.setEntry(typeKeyOf[T](), name, entry{value: &v, owned: true})
}

// SetPtr stores a borrowed pointer under the anonymous key for T. The
// context never frees a borrowed value; the caller retains ownership.
func SetPtr[T any](c *Context, value *T) {
	SetNamedPtr(c, "", value)
}

// SetNamedPtr stores a borrowed pointer under name.
func SetNamedPtr[T any](c *Context, name string, value *T) {
	c.setEntry(typeKeyOf[T](), name, entry{value: value, owned: false})
}

func (c *Context) setEntry(t reflect.Type, name string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key{t, name}] = e
}

// GetPtr returns a mutable pointer to the anonymous value of type T, if
// present.
func GetPtr[T any](c *Context) (*T, bool) {
	return GetNamedPtr[T](c, "")
}

// GetNamedPtr returns a mutable pointer to the value of type T stored under
// name, if present.
func GetNamedPtr[T any](c *Context, name string) (*T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.values[key{typeKeyOf[T](), name}]
	if !ok {
		return nil, false
	}
	p, ok := e.value.(*T)
	if !ok {
		return nil, false
	}
	return p, true
}

// Get returns a copy of the anonymous value of type T, if present.
func Get[T any](c *Context) (T, bool) {
	return GetNamed[T](c, "")
}

// GetNamed returns a copy of the value of type T stored under name, if
// present.
func GetNamed[T any](c *Context, name string) (T, bool) {
	var zero T
	p, ok := GetNamedPtr[T](c, name)
	if !ok {
		return zero, false
	}
	return *p, true
}

// Clear removes the anonymous value of type T, if present.
func Clear[T any](c *Context) {
	ClearNamed[T](c, "")
}

// ClearNamed removes the value of type T stored under name, if present.
func ClearNamed[T any](c *Context, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key{typeKeyOf[T](), name})
}

// String renders a small debug summary (value count only) so it is always
// safe to log.
func (c *Context) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("Context{%d values}", len(c.values))
}
