package gbresource

import (
	"io"
	"reflect"
	"sync"
	"sync/atomic"
)

type resourceState int32

const (
	stateNew resourceState = iota
	stateActive
	stateReleasing
	stateDeleting
)

// Base implements the reference-counting and publish/release state
// machine every resource type shares. Concrete resource types embed
// *Base and are constructed via NewBase. Grounded on gb::Resource
// (resource.h)'s AddRef/RemoveRef/Release/MaybeDelete sequence, as
// restated in spec.md section 4.F.
type Base struct {
	entry ResourceEntry
	flags ResourceFlags
	owner Resource

	mu       sync.Mutex
	state    resourceState
	refCount atomic.Int32
}

// NewBase constructs the shared resource state and registers owner with
// the System named in entry. owner must be the concrete resource type
// embedding this Base (so the registry can hold a single Resource handle
// to it); it is stored in the registry, handed to the type's release
// handler, and type-asserted against io.Closer on deletion, but never
// called back into during construction.
func NewBase(entry ResourceEntry, flags ResourceFlags, owner Resource) *Base {
	b := &Base{entry: entry, flags: flags, owner: owner, state: stateNew}
	b.refCount.Store(1)
	entry.system.addResource(entry.typ, entry.id, owner)
	return b
}

func (b *Base) ResourceSystem() *System       { return b.entry.system }
func (b *Base) ResourceType() reflect.Type    { return b.entry.typ }
func (b *Base) ResourceID() ResourceID        { return b.entry.id }
func (b *Base) IsResourceReferenced() bool    { return b.refCount.Load() > 1 }
func (b *Base) ResourceName() string          { return b.entry.system.resourceName(b.entry.typ, b.entry.id) }

// SetResourceVisible publishes or hides the resource in the registry. A
// resource still in its initial state is promoted to active the first
// time it is made visible.
func (b *Base) SetResourceVisible(visible bool) {
	if visible {
		b.mu.Lock()
		if b.state == stateNew {
			b.state = stateActive
		}
		b.mu.Unlock()
	}
	b.entry.system.setResourceVisible(b.entry.typ, b.entry.id, visible)
}

// addRef implements resourceInternal: the first reference (by a
// ResourcePtr or ResourceSet) publishes an auto-visible resource before
// counting it.
func (b *Base) addRef() {
	if b.flags.AutoVisible && b.refCount.Load() == 1 {
		b.doAutoVisible()
		return
	}
	b.refCount.Add(1)
}

func (b *Base) doAutoVisible() {
	b.mu.Lock()
	b.state = stateActive
	b.mu.Unlock()
	b.SetResourceVisible(true)
	b.refCount.Add(1)
}

// removeRef implements resourceInternal: dropping the last external
// reference on an auto-release resource triggers Release.
func (b *Base) removeRef() {
	if b.flags.AutoRelease && b.refCount.Load() == 2 {
		b.release()
		return
	}
	b.refCount.Add(-1)
}

// release runs the type's release handler (default: MaybeDelete) with the
// resource marked releasing, so a MaybeDelete called from within it knows
// to treat "manager plus this reference" as the deletable threshold.
func (b *Base) release() {
	b.mu.Lock()
	b.state = stateReleasing
	b.mu.Unlock()

	b.entry.system.releaseResource(b.owner)

	b.mu.Lock()
	if b.state != stateDeleting {
		b.refCount.Add(-1)
		b.state = stateActive
	}
	b.mu.Unlock()
}

// isDeleting implements resourceInternal.
func (b *Base) isDeleting() bool {
	return b.refCount.Load() == 0
}

// maybeDelete implements resourceInternal and is also exposed as
// MaybeDelete for manager-driven forced deletion. It is a transactional
// check-and-destroy: succeeds only if the only remaining reference is the
// registry's own (1 normally, 2 if called from within Release, since the
// reference being dropped has not yet been decremented).
func (b *Base) maybeDelete() bool {
	sys := b.entry.system
	sys.mu.Lock()
	b.mu.Lock()
	managerOnly := int32(1)
	if b.state == stateReleasing {
		managerOnly = 2
	}
	ok := b.refCount.Load() == managerOnly
	if ok {
		b.refCount.Store(0)
		b.state = stateDeleting
	}
	b.mu.Unlock()
	sys.mu.Unlock()
	if !ok {
		return false
	}

	sys.removeResource(b.entry.typ, b.entry.id)
	if closer, isCloser := b.owner.(io.Closer); isCloser {
		closer.Close()
	}
	logger.Debug().Str("type", b.entry.typ.String()).Uint64("id", uint64(b.entry.id)).Msg("gbresource: resource deleted")
	return true
}

// MaybeDelete attempts to delete the resource immediately, succeeding
// only if nothing but the registry itself still references it.
func (b *Base) MaybeDelete() bool { return b.maybeDelete() }

// GetResourceDependencies returns nil by default, so every resource that
// embeds *Base satisfies DependencyReporter; resource types with
// dependencies define their own GetResourceDependencies, which takes
// precedence over this one.
func (b *Base) GetResourceDependencies() []Resource { return nil }
