package geom

import "testing"

func TestFromPointTiling(t *testing.T) {
	r := FromPoint(Vector{149, 10, 0}, 100)
	want := RegionBounds{Mins: [3]int64{100, 0, 0}, Maxs: [3]int64{200, 100, 100}}
	if !r.Equal(want) {
		t.Fatalf("FromPoint(149,10,0) = %v, want %v", r, want)
	}
}

func TestRegionOrderIgnoresMaxs(t *testing.T) {
	a := RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{100, 100, 100}}
	b := RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{999, 999, 999}}
	if a.Less(b) || b.Less(a) {
		t.Fatalf("regions differing only in Maxs must compare equal under Less")
	}
}

func TestPositiveNeighbors(t *testing.T) {
	r := RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{100, 100, 100}}
	nbrs := r.PositiveNeighbors()
	want := [3]RegionBounds{
		{Mins: [3]int64{100, 0, 0}, Maxs: [3]int64{200, 100, 100}},
		{Mins: [3]int64{0, 100, 0}, Maxs: [3]int64{100, 200, 100}},
		{Mins: [3]int64{0, 0, 100}, Maxs: [3]int64{100, 100, 200}},
	}
	if nbrs != want {
		t.Fatalf("PositiveNeighbors() = %v, want %v", nbrs, want)
	}
	for _, n := range nbrs {
		if !n.Greater(r) {
			t.Fatalf("positive neighbor %v must be greater than %v", n, r)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	r := RegionBounds{Mins: [3]int64{-100, 0, 200}, Maxs: [3]int64{0, 100, 300}}
	s := r.String()
	if s != "-100_0_200__0_100_300" {
		t.Fatalf("String() = %q", s)
	}
	parsed, err := ParseRegionBounds(s)
	if err != nil {
		t.Fatalf("ParseRegionBounds: %v", err)
	}
	if !parsed.Equal(r) {
		t.Fatalf("round trip mismatch: %v != %v", parsed, r)
	}
}

func TestSubdivideWidestAxisCount(t *testing.T) {
	bounds := AABB{Mins: Vector{0, 0, 0}, Maxs: Vector{1000, 50, 1000}}
	for _, n := range []int{1, 2, 3, 4, 7} {
		boxes := SubdivideWidestAxis(bounds, n)
		if len(boxes) != n {
			t.Fatalf("SubdivideWidestAxis(_, %d) produced %d boxes", n, len(boxes))
		}
	}
}
