// Package gbresource implements a reference-counted, type-indexed resource
// registry: a System mints unique IDs, binds each resource type to
// exactly one manager, reconciles name<->ID mappings, and transactionally
// destroys resources once their last reference drops. Grounded on
// gb::ResourceSystem / gb::Resource / gb::ResourceManager (resource.h,
// resource_system.cc, resource_manager.cc).
package gbresource

import "reflect"

// ResourceID uniquely identifies a resource within its type.
type ResourceID uint64

// InvalidResourceID marks "no resource"/"not yet assigned".
const InvalidResourceID ResourceID = 0

// ResourceFlags controls a resource's publish/release behavior.
type ResourceFlags struct {
	// AutoVisible: the resource becomes visible in the System's registry
	// the first time it is referenced by a ResourcePtr or ResourceSet.
	AutoVisible bool
	// AutoRelease: the type's release handler runs when the last external
	// reference goes away.
	AutoRelease bool
}

// DefaultResourceFlags matches the original's default: both auto-visible
// and auto-release.
var DefaultResourceFlags = ResourceFlags{AutoVisible: true, AutoRelease: true}

// Resource is the capability every resource type exposes. Concrete
// resource types obtain it by embedding *Base.
type Resource interface {
	ResourceSystem() *System
	ResourceType() reflect.Type
	ResourceID() ResourceID
	ResourceName() string
	IsResourceReferenced() bool
	SetResourceVisible(visible bool)
}

// DependencyReporter is an optional capability: resources that depend on
// other resources implement it so ResourceSet can auto-add the closure.
type DependencyReporter interface {
	GetResourceDependencies() []Resource
}

// resourceInternal gates the ref-counting and deletion machinery to this
// package, the way the original used a private ResourceInternal tag type.
type resourceInternal interface {
	addRef()
	removeRef()
	isDeleting() bool
	maybeDelete() bool
}

func asInternal(r Resource) resourceInternal {
	ri, ok := r.(resourceInternal)
	if !ok {
		panic("gbresource: resource does not embed *gbresource.Base")
	}
	return ri
}

type resourceKey struct {
	typ reflect.Type
	id  ResourceID
}

// TypeOf returns the reflect.Type key a resource of type T is registered
// under, matching TypeKey::Get<T>() in the original.
func TypeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(&zero).Elem()
}
