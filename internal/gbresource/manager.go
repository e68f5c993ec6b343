package gbresource

import (
	"reflect"

	"github.com/ternarybob/fiberforge/internal/gbcontext"
)

type genericLoader func(ctx *gbcontext.Context, typ reflect.Type, name string) Resource
type genericReleaseHandler func(resource Resource)

type typedCallbacks struct {
	loader         genericLoader
	releaseHandler genericReleaseHandler
}

// Manager owns the lifecycle of one or more resource types: it supplies
// loaders and release handlers and mints the entries new resources are
// constructed with. Grounded on gb::ResourceManager
// (resource_manager.h/.cc).
type Manager struct {
	system *System
	types  map[reflect.Type]struct{}

	typedCallbacks map[reflect.Type]*typedCallbacks
	genericLoader  genericLoader
	genericRelease genericReleaseHandler
}

// NewManager returns an unregistered manager. Configure it with InitLoader /
// InitReleaseHandler, then register it with a System via RegisterManager.
func NewManager() *Manager {
	return &Manager{typedCallbacks: make(map[reflect.Type]*typedCallbacks)}
}

// GetSystem returns the System this manager is registered with, or nil.
func (m *Manager) GetSystem() *System { return m.system }

func (m *Manager) callbacksFor(typ reflect.Type) *typedCallbacks {
	cb, ok := m.typedCallbacks[typ]
	if !ok {
		cb = &typedCallbacks{}
		m.typedCallbacks[typ] = cb
	}
	return cb
}

// InitLoader registers a type-specific loader. Must be called before the
// manager is registered with a System, and at most once per type.
func InitLoader[T Resource](m *Manager, loader func(ctx *gbcontext.Context, name string) (T, bool)) {
	if m.system != nil {
		logger.Error().Msg("gbresource: type-specific loader cannot be set after manager is registered")
		return
	}
	typ := TypeOf[T]()
	cb := m.callbacksFor(typ)
	if cb.loader != nil {
		logger.Error().Str("type", typ.String()).Msg("gbresource: type-specific loader already set")
		return
	}
	cb.loader = func(ctx *gbcontext.Context, _ reflect.Type, name string) Resource {
		v, ok := loader(ctx, name)
		if !ok {
			return nil
		}
		return v
	}
}

// InitGenericLoader registers the fallback loader used for types without a
// type-specific loader. Must be called before registration, at most once.
func (m *Manager) InitGenericLoader(loader func(ctx *gbcontext.Context, typ reflect.Type, name string) Resource) {
	if m.system != nil {
		logger.Error().Msg("gbresource: generic loader cannot be set after manager is registered")
		return
	}
	if m.genericLoader != nil {
		logger.Error().Msg("gbresource: generic loader already set")
		return
	}
	m.genericLoader = loader
}

// InitReleaseHandler registers a type-specific release handler, invoked when
// a resource of type T loses its last external reference. Must be called
// before registration, at most once per type.
func InitReleaseHandler[T Resource](m *Manager, handler func(resource T)) {
	if m.system != nil {
		logger.Error().Msg("gbresource: type-specific release handler cannot be set after manager is registered")
		return
	}
	typ := TypeOf[T]()
	cb := m.callbacksFor(typ)
	if cb.releaseHandler != nil {
		logger.Error().Str("type", typ.String()).Msg("gbresource: type-specific release handler already set")
		return
	}
	cb.releaseHandler = func(resource Resource) {
		handler(resource.(T))
	}
}

// InitGenericReleaseHandler registers the fallback release handler used for
// types without a type-specific one. If never set, the default behavior is
// to call MaybeDeleteResource.
func (m *Manager) InitGenericReleaseHandler(handler func(resource Resource)) {
	if m.system != nil {
		logger.Error().Msg("gbresource: generic release handler cannot be set after manager is registered")
		return
	}
	if m.genericRelease != nil {
		logger.Error().Msg("gbresource: generic release handler already set")
		return
	}
	m.genericRelease = handler
}

func (m *Manager) loaderFor(typ reflect.Type) genericLoader {
	if cb, ok := m.typedCallbacks[typ]; ok && cb.loader != nil {
		return cb.loader
	}
	if m.genericLoader == nil {
		m.genericLoader = func(*gbcontext.Context, reflect.Type, string) Resource { return nil }
	}
	return m.genericLoader
}

func (m *Manager) releaseHandlerFor(typ reflect.Type) genericReleaseHandler {
	if cb, ok := m.typedCallbacks[typ]; ok && cb.releaseHandler != nil {
		return cb.releaseHandler
	}
	if m.genericRelease == nil {
		m.genericRelease = func(resource Resource) { m.MaybeDeleteResource(resource) }
	}
	return m.genericRelease
}

// MaybeDeleteResource attempts to delete resource immediately, provided it
// belongs to this manager's system and was registered under one of this
// manager's types. A nil resource is treated as already deleted.
func (m *Manager) MaybeDeleteResource(resource Resource) bool {
	if resource == nil {
		return true
	}
	if resource.ResourceSystem() != m.system {
		logger.Error().Str("type", resource.ResourceType().String()).Msg("gbresource: cannot delete resource not owned by this manager's system")
		return false
	}
	if _, ok := m.types[resource.ResourceType()]; !ok {
		logger.Error().Str("type", resource.ResourceType().String()).Msg("gbresource: cannot delete resource created by a different manager")
		return false
	}
	return asInternal(resource).maybeDelete()
}

// ReserveResourceName reserves name for a resource of type T and id, valid
// only if no other resource of that type currently holds the name.
func ReserveResourceName[T Resource](m *Manager, id ResourceID, name string) ResourceNameReservation {
	typ := TypeOf[T]()
	if _, ok := m.types[typ]; !ok {
		return ResourceNameReservation{}
	}
	if !m.system.reserveResourceName(typ, id, name) {
		return ResourceNameReservation{}
	}
	return ResourceNameReservation{system: m.system, typ: typ, id: id, name: name}
}

// NewResourceEntry mints a fresh unique entry for resource type T, bound to
// this manager. It is invalid if the manager is not registered for T.
func NewResourceEntry[T Resource](m *Manager) ResourceEntry {
	return m.newResourceEntry(TypeOf[T](), InvalidResourceID)
}

// NewResourceEntryWithID mints an entry for resource type T using an
// explicit, caller-chosen id. It is invalid if id is already in use, is
// zero, or the manager is not registered for T. Intended for managers that
// mint their own IDs or are reconstructing a previously minted resource.
func NewResourceEntryWithID[T Resource](m *Manager, id ResourceID) ResourceEntry {
	if id == InvalidResourceID {
		return ResourceEntry{}
	}
	return m.newResourceEntry(TypeOf[T](), id)
}

func (m *Manager) newResourceEntry(typ reflect.Type, id ResourceID) ResourceEntry {
	if _, ok := m.types[typ]; !ok {
		logger.Error().Str("type", typ.String()).Msg("gbresource: manager is not registered for this resource type")
		return ResourceEntry{}
	}
	return m.system.newResourceEntry(typ, id)
}
