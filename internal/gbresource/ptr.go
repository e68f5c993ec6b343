package gbresource

import "reflect"

// ResourcePtr is an owning, copyable handle to a resource of type T. It
// holds one reference for as long as it is non-nil; Clone shares that
// ownership (incrementing the reference count) and Close drops it. The
// zero value is a null pointer, matching the original's default-constructed
// ResourcePtr<Resource>. Designed from the add_ref/remove_ref contract
// described alongside gb::Resource (resource.h), since the originating
// gb::ResourcePtr<T> header was not available to copy from directly.
type ResourcePtr[T Resource] struct {
	resource T
	valid    bool
}

// NewResourcePtr wraps resource, taking a reference on it. Passing a zero
// T produces a null ResourcePtr.
func NewResourcePtr[T Resource](resource T) ResourcePtr[T] {
	if isNilResource(resource) {
		return ResourcePtr[T]{}
	}
	asInternal(resource).addRef()
	return ResourcePtr[T]{resource: resource, valid: true}
}

// IsValid reports whether the pointer refers to a resource.
func (p ResourcePtr[T]) IsValid() bool { return p.valid }

// Get returns the underlying resource, or the zero value if null.
func (p ResourcePtr[T]) Get() T { return p.resource }

// Clone returns a new ResourcePtr sharing ownership of the same resource,
// taking an additional reference.
func (p ResourcePtr[T]) Clone() ResourcePtr[T] {
	if !p.valid {
		return ResourcePtr[T]{}
	}
	asInternal(p.resource).addRef()
	return ResourcePtr[T]{resource: p.resource, valid: true}
}

// Close releases this pointer's reference. The ResourcePtr must not be used
// afterward. A null ResourcePtr's Close is a no-op.
func (p *ResourcePtr[T]) Close() {
	if !p.valid {
		return
	}
	asInternal(p.resource).removeRef()
	p.valid = false
	var zero T
	p.resource = zero
}

func isNilResource(r Resource) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
