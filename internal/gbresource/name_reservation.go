package gbresource

import "reflect"

// ResourceNameReservation is a one-shot claim on a (type, name) pair,
// returned by Manager's ReserveResourceName. Call Apply to bind it to the
// reserved id permanently, or Release to give it up. There is no
// destructor in Go, so a reservation abandoned without Apply or Release
// keeps the name reserved — keep reservations short-lived. Grounded on
// gb::ResourceNameReservation
// (resource_name_reservation.h/.cc).
type ResourceNameReservation struct {
	system *System
	typ    reflect.Type
	id     ResourceID
	name   string
}

// Valid reports whether the reservation succeeded and has not been applied
// or released yet.
func (r ResourceNameReservation) Valid() bool { return r.system != nil }

func (r ResourceNameReservation) System() *System    { return r.system }
func (r ResourceNameReservation) Type() reflect.Type { return r.typ }
func (r ResourceNameReservation) ID() ResourceID     { return r.id }
func (r ResourceNameReservation) Name() string       { return r.name }

// Apply binds the reserved name to its id permanently, replacing any prior
// name that id held. Calling Apply on an invalid reservation is a no-op.
func (r *ResourceNameReservation) Apply() {
	if r.system == nil {
		return
	}
	r.system.applyResourceName(r.typ, r.id, r.name)
	*r = ResourceNameReservation{}
}

// Release gives up the reservation without applying it, freeing the name
// for another caller to reserve. A no-op if already applied or released.
func (r *ResourceNameReservation) Release() {
	if r.system == nil {
		return
	}
	r.system.releaseResourceName(r.typ, r.id, r.name)
	*r = ResourceNameReservation{}
}
