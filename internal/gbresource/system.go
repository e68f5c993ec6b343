package gbresource

import (
	"crypto/rand"
	"encoding/binary"
	"reflect"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fiberforge/internal/gbcontext"
)

var logger = arbor.NewLogger()

// IDSeedStore optionally persists the resource ID seed across process
// restarts, so freshly minted IDs never collide with ones issued by an
// earlier run against the same durable resources. Enriches the original's
// wall-clock-plus-randomness seed, which only makes collisions across runs
// unlikely.
type IDSeedStore interface {
	LoadSeed() (seed uint64, ok bool, err error)
	SaveSeed(seed uint64) error
}

type typeInfo struct {
	manager        *Manager
	loader         genericLoader
	releaseHandler genericReleaseHandler
	nameToID       map[string]ResourceID
	idToName       map[ResourceID]string
}

type resourceInfo struct {
	resource Resource
	visible  bool
}

// System is the central resource registry: it mints unique IDs, binds each
// resource type to exactly one Manager, tracks name<->ID reservations, and
// routes Get/Load/Release/Delete calls to the right type. Grounded on
// gb::ResourceSystem (resource_system.cc).
type System struct {
	mu sync.Mutex

	nextID    uint64
	types     map[reflect.Type]*typeInfo
	resources map[resourceKey]*resourceInfo

	seedStore IDSeedStore
}

// SystemOption configures a System at construction time.
type SystemOption func(*System)

// WithIDSeedStore supplies a durable seed store; the System starts from the
// stored seed when it is larger than the default time+random seed (and from
// the default otherwise, or when nothing is stored), and saves the next ID
// after every entry it mints.
func WithIDSeedStore(store IDSeedStore) SystemOption {
	return func(s *System) { s.seedStore = store }
}

// NewSystem creates an empty resource registry. To minimize collisions
// across process restarts, the initial resource ID combines wall-clock
// time with randomness (and, if an IDSeedStore is supplied, with the last
// seed it saved).
func NewSystem(opts ...SystemOption) *System {
	s := &System{
		types:     make(map[reflect.Type]*typeInfo),
		resources: make(map[resourceKey]*resourceInfo),
	}
	for _, opt := range opts {
		opt(s)
	}

	var randomPart uint64
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		randomPart = binary.LittleEndian.Uint64(buf[:])
	}
	timePart := uint64(time.Now().Unix())
	seed := ((timePart << 32) | ((randomPart & 0xFFFF) << 16)) + 1

	if s.seedStore != nil {
		if stored, ok, err := s.seedStore.LoadSeed(); err == nil && ok && stored > seed {
			seed = stored
		} else if err != nil {
			logger.Warn().Err(err).Msg("gbresource: failed to load persisted ID seed, using default")
		}
	}
	s.nextID = seed
	return s
}

// RegisterManager binds manager to every type in types. It fails (returning
// false) if manager is already registered, no types are given, or any type
// is already owned by another manager — in which case none are registered.
func (s *System) RegisterManager(manager *Manager, types ...reflect.Type) bool {
	if manager == nil || len(types) == 0 || manager.system != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, typ := range types {
		if _, exists := s.types[typ]; exists {
			logger.Error().Str("type", typ.String()).Msg("gbresource: system already has a manager for this type")
			return false
		}
	}

	manager.system = s
	manager.types = make(map[reflect.Type]struct{}, len(types))
	for _, typ := range types {
		manager.types[typ] = struct{}{}
		s.types[typ] = &typeInfo{
			manager:        manager,
			loader:         manager.loaderFor(typ),
			releaseHandler: manager.releaseHandlerFor(typ),
			nameToID:       make(map[string]ResourceID),
			idToName:       make(map[ResourceID]string),
		}
	}
	return true
}

// RemoveManager disconnects manager from its types and attempts to delete
// every resource it still owns. Resources that fail to delete (still
// referenced) are logged and left registered.
func (s *System) RemoveManager(manager *Manager) {
	s.mu.Lock()
	var owned []Resource
	for key, info := range s.resources {
		if ti, ok := s.types[key.typ]; ok && ti.manager == manager && info.resource != nil {
			owned = append(owned, info.resource)
		}
	}
	for typ := range manager.types {
		delete(s.types, typ)
	}
	s.mu.Unlock()

	for _, r := range owned {
		if !asInternal(r).maybeDelete() {
			logger.Error().Str("type", r.ResourceType().String()).Uint64("id", uint64(r.ResourceID())).Msg("gbresource: resource still referenced in manager removal")
		}
	}
}

func (s *System) newResourceEntry(typ reflect.Type, id ResourceID) ResourceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == InvalidResourceID {
		for {
			id = ResourceID(s.nextID)
			s.nextID++
			key := resourceKey{typ: typ, id: id}
			if _, exists := s.resources[key]; !exists {
				s.resources[key] = &resourceInfo{}
				break
			}
		}
	} else {
		key := resourceKey{typ: typ, id: id}
		if _, exists := s.resources[key]; exists {
			return ResourceEntry{}
		}
		s.resources[key] = &resourceInfo{}
	}
	if s.seedStore != nil {
		if err := s.seedStore.SaveSeed(s.nextID); err != nil {
			logger.Warn().Err(err).Msg("gbresource: failed to persist ID seed")
		}
	}
	return ResourceEntry{system: s, typ: typ, id: id}
}

func (s *System) addResource(typ reflect.Type, id ResourceID, resource Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resourceKey{typ: typ, id: id}
	info, ok := s.resources[key]
	if !ok {
		info = &resourceInfo{}
		s.resources[key] = info
	}
	info.resource = resource
}

func (s *System) removeResource(typ reflect.Type, id ResourceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resourceKey{typ: typ, id: id}
	if _, existed := s.resources[key]; !existed {
		return
	}
	delete(s.resources, key)
	ti, ok := s.types[typ]
	if !ok {
		return
	}
	if name, ok := ti.idToName[id]; ok {
		delete(ti.nameToID, name)
		delete(ti.idToName, id)
	}
}

// RemoveResource is the public entry point used outside the package (e.g.
// by tests reconstructing registry state); package-internal callers use
// removeResource directly.
func (s *System) RemoveResource(typ reflect.Type, id ResourceID) {
	s.removeResource(typ, id)
}

func (s *System) setResourceVisible(typ reflect.Type, id ResourceID, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resourceKey{typ: typ, id: id}
	info, ok := s.resources[key]
	if !ok {
		info = &resourceInfo{}
		s.resources[key] = info
	}
	info.visible = visible
}

func (s *System) releaseResource(resource Resource) {
	s.mu.Lock()
	ti, ok := s.types[resource.ResourceType()]
	if !ok {
		s.mu.Unlock()
		logger.Error().Str("type", resource.ResourceType().String()).Msg("gbresource: resource released after manager/system teardown")
		return
	}
	handler := ti.releaseHandler
	s.mu.Unlock()
	handler(resource)
}

// Stats reports the total number of registered resources and how many of
// them are currently visible (reachable via Get).
func (s *System) Stats() (live int, visible int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, info := range s.resources {
		if info.resource == nil {
			continue
		}
		live++
		if info.visible {
			visible++
		}
	}
	return live, visible
}

// Sweep attempts to delete every registered resource that nothing but the
// registry references (MaybeDelete is a no-op for anything still held),
// including resources that were never published. It is meant to be run
// periodically to reclaim resources whose last Go-level reference was
// dropped without an explicit Release. It runs the MaybeDelete transaction
// directly; the type's release handler is not invoked. It returns the
// number of resources it deleted.
func (s *System) Sweep() int {
	s.mu.Lock()
	candidates := make([]Resource, 0, len(s.resources))
	for _, info := range s.resources {
		if info.resource != nil {
			candidates = append(candidates, info.resource)
		}
	}
	s.mu.Unlock()

	deleted := 0
	for _, r := range candidates {
		if asInternal(r).maybeDelete() {
			deleted++
		}
	}
	return deleted
}

// Get returns the resource of type T registered under id, if it exists, is
// visible, and is not mid-deletion.
func Get[T Resource](s *System, id ResourceID) (T, bool) {
	var zero T
	typ := TypeOf[T]()
	s.mu.Lock()
	info, ok := s.resources[resourceKey{typ: typ, id: id}]
	if !ok || !info.visible || info.resource == nil {
		s.mu.Unlock()
		return zero, false
	}
	resource := info.resource
	deleting := asInternal(resource).isDeleting()
	s.mu.Unlock()
	if deleting {
		return zero, false
	}
	v, ok := resource.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// resourceName returns the name a resource of typ/id was loaded or applied
// under, or "" if it has none.
func (s *System) resourceName(typ reflect.Type, id ResourceID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ti, ok := s.types[typ]
	if !ok {
		return ""
	}
	return ti.idToName[id]
}

func (s *System) idFromName(typ reflect.Type, name string) ResourceID {
	ti, ok := s.types[typ]
	if !ok {
		return InvalidResourceID
	}
	return ti.nameToID[name]
}

// Load returns the resource of type T registered under name, loading it via
// the type's manager-supplied loader if it is not already loaded. Returns
// false if the type has no manager, the name is already reserved by a
// concurrent load, or the loader fails.
//
// Unlike Get, a successful Load does not need the resource to already be
// visible: the loader is responsible for publishing it (typically via
// SetResourceVisible, triggered automatically on first reference).
func Load[T Resource](s *System, ctx *gbcontext.Context, name string) (T, bool) {
	var zero T
	typ := TypeOf[T]()

	s.mu.Lock()
	if id := s.idFromName(typ, name); id != InvalidResourceID {
		info, ok := s.resources[resourceKey{typ: typ, id: id}]
		if !ok || info.resource == nil {
			s.mu.Unlock()
			return zero, false
		}
		resource := info.resource
		deleting := asInternal(resource).isDeleting()
		s.mu.Unlock()
		if deleting {
			return zero, false
		}
		v, ok := resource.(T)
		return v, ok
	}

	ti, ok := s.types[typ]
	if !ok {
		s.mu.Unlock()
		return zero, false
	}
	if _, reserved := ti.nameToID[name]; reserved {
		s.mu.Unlock()
		return zero, false
	}
	ti.nameToID[name] = InvalidResourceID
	loader := ti.loader
	s.mu.Unlock()

	resource := loader(ctx, typ, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	ti, ok = s.types[typ]
	if !ok {
		// Manager torn down mid-load.
		return zero, false
	}
	if resource == nil {
		delete(ti.nameToID, name)
		return zero, false
	}
	id := resource.ResourceID()
	ti.nameToID[name] = id
	ti.idToName[id] = name
	v, ok := resource.(T)
	return v, ok
}

func (s *System) reserveResourceName(typ reflect.Type, id ResourceID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ti, ok := s.types[typ]
	if !ok {
		return false
	}
	if existing, exists := ti.nameToID[name]; exists {
		return existing == id
	}
	ti.nameToID[name] = id
	return true
}

func (s *System) releaseResourceName(typ reflect.Type, id ResourceID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ti, ok := s.types[typ]
	if !ok {
		return
	}
	if _, exists := ti.nameToID[name]; !exists {
		return
	}
	if current, exists := ti.idToName[id]; exists && current == name {
		return
	}
	delete(ti.nameToID, name)
}

func (s *System) applyResourceName(typ reflect.Type, id ResourceID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ti, ok := s.types[typ]
	if !ok {
		return
	}
	if _, exists := ti.nameToID[name]; !exists {
		return
	}
	if current, exists := ti.idToName[id]; exists {
		if current == name {
			return
		}
		delete(ti.nameToID, current)
		ti.idToName[id] = name
		return
	}
	ti.idToName[id] = name
}
