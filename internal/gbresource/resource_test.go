package gbresource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testResource struct {
	*Base
	closed bool
}

func newTestResource(t *testing.T, mgr *Manager, flags ResourceFlags) *testResource {
	t.Helper()
	entry := NewResourceEntry[*testResource](mgr)
	require.True(t, entry.Valid())
	r := &testResource{}
	r.Base = NewBase(entry, flags, r)
	return r
}

func (r *testResource) Close() error {
	r.closed = true
	return nil
}

func newTestSystem(t *testing.T) (*System, *Manager) {
	t.Helper()
	sys := NewSystem()
	mgr := NewManager()
	require.True(t, sys.RegisterManager(mgr, TypeOf[*testResource]()))
	return sys, mgr
}

func TestResourceIdentity(t *testing.T) {
	sys, mgr := newTestSystem(t)

	e1 := NewResourceEntry[*testResource](mgr)
	e2 := NewResourceEntry[*testResource](mgr)
	require.True(t, e1.Valid())
	require.True(t, e2.Valid())
	require.NotEqual(t, e1.ID(), e2.ID())
	require.NotEqual(t, InvalidResourceID, e1.ID())
	require.NotEqual(t, InvalidResourceID, e2.ID())

	// e2 is never consumed by NewBase; free its slot instead of leaking it.
	e2ID := e2.ID()
	e2.Free()
	require.False(t, e2.Valid())
	_, ok := Get[*testResource](sys, e2ID)
	require.False(t, ok)

	r1 := &testResource{}
	r1.Base = NewBase(e1, DefaultResourceFlags, r1)
	r1.SetResourceVisible(true)
	_, ok = Get[*testResource](sys, e1.ID())
	require.True(t, ok)

	require.True(t, r1.MaybeDelete())
	_, ok = Get[*testResource](sys, e1.ID())
	require.False(t, ok)

	reentered := NewResourceEntryWithID[*testResource](mgr, e1.ID())
	require.True(t, reentered.Valid())
}

func TestAutoVisible(t *testing.T) {
	sys, mgr := newTestSystem(t)
	r := newTestResource(t, mgr, ResourceFlags{AutoVisible: true, AutoRelease: true})

	_, ok := Get[*testResource](sys, r.ResourceID())
	require.False(t, ok, "resource should not be visible before any external reference")

	set := NewResourceSet()
	require.True(t, set.Add(r, false))

	got, ok := Get[*testResource](sys, r.ResourceID())
	require.True(t, ok)
	require.Same(t, r, got)

	set.RemoveAll()
	_, ok = Get[*testResource](sys, r.ResourceID())
	require.False(t, ok)
	require.True(t, r.closed)
}

func TestNameReservation(t *testing.T) {
	_, mgr := newTestSystem(t)
	r := newTestResource(t, mgr, DefaultResourceFlags)

	reservation := ReserveResourceName[*testResource](mgr, r.ResourceID(), "image.png")
	require.True(t, reservation.Valid())

	contested := ReserveResourceName[*testResource](mgr, r.ResourceID()+1, "image.png")
	require.False(t, contested.Valid())

	reservation.Apply()
	require.Equal(t, "image.png", r.ResourceName())
}

func TestRefCountIdempotenceOnSetAdd(t *testing.T) {
	_, mgr := newTestSystem(t)
	r := newTestResource(t, mgr, DefaultResourceFlags)
	set := NewResourceSet()

	require.True(t, set.Add(r, false))
	require.True(t, set.Add(r, false))
	require.Equal(t, 1, set.Len())

	set.RemoveAll()
	require.False(t, r.MaybeDelete(), "RemoveAll's removeRef already triggered deletion via auto-release")
}

func TestNewEntryWithDuplicateIDFails(t *testing.T) {
	_, mgr := newTestSystem(t)
	r := newTestResource(t, mgr, DefaultResourceFlags)

	dup := NewResourceEntryWithID[*testResource](mgr, r.ResourceID())
	require.False(t, dup.Valid())
}

func TestEntryFreeReleasesSlotForReuse(t *testing.T) {
	_, mgr := newTestSystem(t)

	entry := NewResourceEntry[*testResource](mgr)
	require.True(t, entry.Valid())
	id := entry.ID()

	entry.Free()
	require.False(t, entry.Valid())

	reentered := NewResourceEntryWithID[*testResource](mgr, id)
	require.True(t, reentered.Valid(), "freeing an unconsumed entry must let its id be minted again")
}

func TestEntryFreeIsNoOpOnZeroValue(t *testing.T) {
	var entry ResourceEntry
	require.NotPanics(t, entry.Free)
	require.False(t, entry.Valid())
}

func TestMaybeDeleteFailsWhileReferenced(t *testing.T) {
	_, mgr := newTestSystem(t)
	r := newTestResource(t, mgr, DefaultResourceFlags)
	set := NewResourceSet()
	set.Add(r, false)

	require.False(t, r.MaybeDelete())
	set.RemoveAll()
}

func TestResourcePtrCloneAndClose(t *testing.T) {
	sys, mgr := newTestSystem(t)
	r := newTestResource(t, mgr, DefaultResourceFlags)

	ptr := NewResourcePtr[*testResource](r)
	clone := ptr.Clone()
	require.True(t, ptr.IsValid())
	require.True(t, clone.IsValid())

	_, ok := Get[*testResource](sys, r.ResourceID())
	require.True(t, ok, "holding a ResourcePtr should publish an auto-visible resource")

	ptr.Close()
	require.False(t, r.closed)
	clone.Close()
	require.True(t, r.closed)
}

func TestRegisterManagerRejectsDuplicateType(t *testing.T) {
	sys, _ := newTestSystem(t)
	other := NewManager()
	require.False(t, sys.RegisterManager(other, TypeOf[*testResource]()))
}
