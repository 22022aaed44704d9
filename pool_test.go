package chromelens

import "testing"

func TestNewPoolRejectsNonPositiveSize(t *testing.T) {
	if _, err := NewPool(0); err == nil {
		t.Fatal("expected an error for a zero-size pool")
	}
	if _, err := NewPool(-1); err == nil {
		t.Fatal("expected an error for a negative-size pool")
	}
}

func TestPoolNextAllocatorRoundRobins(t *testing.T) {
	p, err := NewPool(3)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3", got)
	}

	var seen []Allocator
	for i := 0; i < 7; i++ {
		seen = append(seen, p.nextAllocator())
	}
	for i, a := range seen {
		want := p.allocators[i%3]
		if a != want {
			t.Fatalf("allocation %d: got allocator %p, want %p (slot %d)", i, a, want, i%3)
		}
	}
}
