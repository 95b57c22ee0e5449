package ids

import (
	"testing"

	"github.com/cpgkit/jvmcpg/internal/cpg"
)

func TestAllocatorReserve(t *testing.T) {
	a := NewAllocator(-1)
	if got := a.Reserve(); got != 0 {
		t.Fatalf("first Reserve() = %d, want 0", got)
	}
	if got := a.Reserve(); got != 1 {
		t.Fatalf("second Reserve() = %d, want 1", got)
	}

	seeded := NewAllocator(41)
	if got := seeded.Reserve(); got != 42 {
		t.Fatalf("Reserve() after seeding at 41 = %d, want 42", got)
	}
}

func TestAssocMapOrderPreserved(t *testing.T) {
	m := NewAssocMap()
	n1 := cpg.NewNode(cpg.KindLocal)
	n2 := cpg.NewNode(cpg.KindIdentifier)
	m.Append("unit1", n1)
	m.Append("unit1", n2)

	got := m.Lookup("unit1")
	if len(got) != 2 || got[0] != n1 || got[1] != n2 {
		t.Fatalf("Lookup order not preserved: %+v", got)
	}
	first, ok := m.First("unit1")
	if !ok || first != n1 {
		t.Fatalf("First() = %v, %v; want %v, true", first, ok, n1)
	}
	last, ok := m.Last("unit1")
	if !ok || last != n2 {
		t.Fatalf("Last() = %v, %v; want %v, true", last, ok, n2)
	}
	if _, ok := m.First("missing"); ok {
		t.Fatalf("First(missing) ok = true, want false")
	}
}

func TestOrderCountersDenseAndPerParent(t *testing.T) {
	o := NewOrderCounters()
	for i := 1; i <= 3; i++ {
		if got := o.Next(10); got != i {
			t.Fatalf("Next(10) call %d = %d, want %d", i, got, i)
		}
	}
	// A different parent starts its own sequence from 1.
	if got := o.Next(20); got != 1 {
		t.Fatalf("Next(20) first call = %d, want 1", got)
	}
	o.Reset(10)
	if got := o.Next(10); got != 1 {
		t.Fatalf("Next(10) after Reset = %d, want 1", got)
	}
}
