package gbresource

import "reflect"

// ResourceEntry binds a freshly minted (type, ID) pair to the System that
// issued it. Every resource must be constructed with one. Grounded on
// gb::ResourceEntry (resource_entry.h/.cc); the original frees the slot
// from its destructor if it was never consumed. Go has no destructors, so
// a caller that mints an entry and then abandons it without constructing a
// Resource (e.g. a loader that fails after reserving its slot) must call
// Free explicitly to release it — otherwise the (type, id) pair is
// permanently unusable.
type ResourceEntry struct {
	system *System
	typ    reflect.Type
	id     ResourceID
}

// Valid reports whether the entry was successfully minted.
func (e ResourceEntry) Valid() bool { return e.system != nil }

// System returns the owning registry.
func (e ResourceEntry) System() *System { return e.system }

// Type returns the resource type key.
func (e ResourceEntry) Type() reflect.Type { return e.typ }

// ID returns the minted resource ID.
func (e ResourceEntry) ID() ResourceID { return e.id }

// Free releases the entry's slot without ever constructing a resource for
// it, allowing the (type, id) pair to be minted again. Calling it on an
// already-freed or zero-value entry, or on one already consumed by
// NewBase, is a no-op. Mirrors gb::ResourceEntry::Free.
func (e *ResourceEntry) Free() {
	if e.system == nil {
		return
	}
	e.system.mu.Lock()
	info, ok := e.system.resources[resourceKey{typ: e.typ, id: e.id}]
	consumed := ok && info.resource != nil
	e.system.mu.Unlock()
	if !consumed {
		e.system.removeResource(e.typ, e.id)
	}
	*e = ResourceEntry{}
}
