package gbcontext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string
}

func TestSetGetRoundTrip(t *testing.T) {
	c := New()
	require.True(t, c.Empty())

	Set(c, widget{Name: "a"})
	got, ok := Get[widget](c)
	require.True(t, ok)
	require.Equal(t, "a", got.Name)
	require.False(t, c.Empty())
}

func TestNamedValuesAreIndependentOfAnonymous(t *testing.T) {
	c := New()
	Set(c, widget{Name: "anon"})
	SetNamed(c, "special", widget{Name: "named"})

	anon, ok := Get[widget](c)
	require.True(t, ok)
	require.Equal(t, "anon", anon.Name)

	named, ok := GetNamed[widget](c, "special")
	require.True(t, ok)
	require.Equal(t, "named", named.Name)
}

func TestSetPtrIsBorrowedAndMutable(t *testing.T) {
	c := New()
	w := &widget{Name: "original"}
	SetPtr(c, w)

	p, ok := GetPtr[widget](c)
	require.True(t, ok)
	p.Name = "mutated"
	require.Equal(t, "mutated", w.Name)
}

func TestClearRemovesValue(t *testing.T) {
	c := New()
	Set(c, widget{Name: "a"})
	Clear[widget](c)
	_, ok := Get[widget](c)
	require.False(t, ok)
	require.True(t, c.Empty())
}

func TestDifferentTypesDoNotCollideOnSameName(t *testing.T) {
	c := New()
	SetNamed(c, "Clock", widget{Name: "fake"})
	SetNamed(c, "Clock", 42)

	w, ok := GetNamed[widget](c, "Clock")
	require.True(t, ok)
	require.Equal(t, "fake", w.Name)

	n, ok := GetNamed[int](c, "Clock")
	require.True(t, ok)
	require.Equal(t, 42, n)
}
