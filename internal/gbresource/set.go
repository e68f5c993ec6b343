package gbresource

// ResourceSet holds a deduplicated collection of resource references,
// taking a reference on each resource added and releasing it on removal or
// when the set itself is cleared. Useful for holding onto a resource's
// full dependency closure for as long as it is in use. Designed from the
// ResourceSet::Add/Remove contract described alongside gb::ResourceSystem
// (resource_system.cc's DoAddDependencies), since the originating
// gb::ResourceSet header was not available to copy from directly.
type ResourceSet struct {
	resources map[resourceKey]Resource
}

// NewResourceSet returns an empty set.
func NewResourceSet() *ResourceSet {
	return &ResourceSet{resources: make(map[resourceKey]Resource)}
}

// Add inserts resource into the set, taking a reference if it was not
// already present. If withDependencies is true and resource implements
// DependencyReporter, its dependencies are added too (recursively, guarded
// against cycles by the presence check). Returns false if resource is nil.
func (s *ResourceSet) Add(resource Resource, withDependencies bool) bool {
	if isNilResource(resource) {
		return false
	}
	key := resourceKey{typ: resource.ResourceType(), id: resource.ResourceID()}
	if _, exists := s.resources[key]; exists {
		return true
	}
	asInternal(resource).addRef()
	s.resources[key] = resource

	if withDependencies {
		if reporter, ok := resource.(DependencyReporter); ok {
			for _, dep := range reporter.GetResourceDependencies() {
				s.Add(dep, true)
			}
		}
	}
	return true
}

// GetFromSet returns the resource of type T held under id, if present in
// the set.
func GetFromSet[T Resource](s *ResourceSet, id ResourceID) (T, bool) {
	var zero T
	r, ok := s.resources[resourceKey{typ: TypeOf[T](), id: id}]
	if !ok {
		return zero, false
	}
	v, ok := r.(T)
	return v, ok
}

// Remove releases resource's reference and drops it from the set. If
// release is false, the set forgets the resource without releasing its
// reference (ownership transfers to the caller).
func (s *ResourceSet) Remove(resource Resource, release bool) {
	if isNilResource(resource) {
		return
	}
	key := resourceKey{typ: resource.ResourceType(), id: resource.ResourceID()}
	if _, exists := s.resources[key]; !exists {
		return
	}
	delete(s.resources, key)
	if release {
		asInternal(resource).removeRef()
	}
}

// RemoveAll releases every resource currently in the set and empties it.
func (s *ResourceSet) RemoveAll() {
	for _, r := range s.resources {
		asInternal(r).removeRef()
	}
	s.resources = make(map[resourceKey]Resource)
}

// Len returns the number of resources currently held.
func (s *ResourceSet) Len() int { return len(s.resources) }
