package history

import (
	"sync"
	"testing"
)

func TestThatRecentReturnsNewestFirst(t *testing.T) {
	r := NewRing[int](5)
	for i := 1; i <= 3; i++ {
		r.Add(i)
	}

	recent := r.Recent(10, nil)
	if len(recent) != 3 || recent[0] != 3 || recent[2] != 1 {
		t.Errorf("Unexpected order %v", recent)
	}
}

func TestThatFullRingEvictsOldestEntry(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Add(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Expected length 3, got %d", r.Len())
	}

	recent := r.Recent(0, nil)
	expected := []int{5, 4, 3}
	for i := range expected {
		if recent[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, recent)
		}
	}
}

func TestThatRecentAppliesFilterBeforeLimit(t *testing.T) {
	r := NewRing[int](10)
	for i := 1; i <= 10; i++ {
		r.Add(i)
	}

	even := r.Recent(2, func(i int) bool { return i%2 == 0 })
	if len(even) != 2 || even[0] != 10 || even[1] != 8 {
		t.Errorf("Unexpected filtered result %v", even)
	}
}

func TestThatRecentIsStableWithoutNewEntries(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 6; i++ {
		r.Add(i)
	}

	first := r.Recent(3, nil)
	second := r.Recent(3, nil)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Results differ: %v != %v", first, second)
		}
	}
}

func TestConcurrentAdds(t *testing.T) {
	r := NewRing[int](100)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.Add(i)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 100 {
		t.Errorf("Expected a full ring, got %d entries", r.Len())
	}
}
