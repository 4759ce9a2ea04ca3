package wfc

import (
	"errors"
	"testing"
)

// uniformCatalog returns n prototypes where prototype i has every edge set to i
func uniformCatalog(t *testing.T, n int) *Catalog {
	t.Helper()
	edges := make([][NumDirections]EdgeValue, n)
	for i := range edges {
		v := EdgeValue(i)
		edges[i] = [NumDirections]EdgeValue{v, v, v, v}
	}
	cat, err := NewCatalog(n, edges)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return cat
}

func TestDirectionString(t *testing.T) {
	tests := []struct {
		d    Direction
		want string
	}{
		{North, "north"},
		{East, "east"},
		{South, "south"},
		{West, "west"},
		{Direction(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.d.String(); got != tc.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestDirectionOpposite(t *testing.T) {
	tests := []struct {
		d, want Direction
	}{
		{North, South},
		{South, North},
		{East, West},
		{West, East},
	}
	for _, tc := range tests {
		if got := tc.d.Opposite(); got != tc.want {
			t.Errorf("%s.Opposite() = %s, want %s", tc.d, got, tc.want)
		}
		if got := tc.d.Opposite().Opposite(); got != tc.d {
			t.Errorf("%s.Opposite().Opposite() = %s", tc.d, got)
		}
	}
}

func TestBuildCatalogSizes(t *testing.T) {
	tests := []struct {
		edges int
		want  int
	}{
		{1, 1},
		{2, 16},
		{3, 81},
		{4, 256},
	}
	for _, tc := range tests {
		cat, err := BuildCatalog(tc.edges)
		if err != nil {
			t.Fatalf("BuildCatalog(%d) error = %v", tc.edges, err)
		}
		if cat.Len() != tc.want {
			t.Errorf("BuildCatalog(%d).Len() = %d, want %d", tc.edges, cat.Len(), tc.want)
		}
	}
}

func TestBuildCatalogInvalid(t *testing.T) {
	for _, n := range []int{0, -1, MaxUniqueEdgeCount + 1} {
		if _, err := BuildCatalog(n); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("BuildCatalog(%d) error = %v, want ErrInvalidArgument", n, err)
		}
	}
}

func TestBuildCatalogEnumerationOrder(t *testing.T) {
	cat, err := BuildCatalog(3)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	tests := []struct {
		id   PrototypeID
		want [NumDirections]EdgeValue
	}{
		{0, [4]EdgeValue{0, 0, 0, 0}},
		{1, [4]EdgeValue{1, 0, 0, 0}},
		{3, [4]EdgeValue{0, 1, 0, 0}},
		{9, [4]EdgeValue{0, 0, 1, 0}},
		{27, [4]EdgeValue{0, 0, 0, 1}},
		{80, [4]EdgeValue{2, 2, 2, 2}},
	}
	for _, tc := range tests {
		got, err := cat.Edges(tc.id)
		if err != nil {
			t.Fatalf("Edges(%d) error = %v", tc.id, err)
		}
		if got != tc.want {
			t.Errorf("Edges(%d) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestCatalogCompatibilityMatchesEdges(t *testing.T) {
	cat, err := BuildCatalog(3)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}

	for a := 0; a < cat.Len(); a++ {
		pa, _ := cat.Prototype(PrototypeID(a))
		for _, d := range AllDirections() {
			compat := pa.Compatible(d)
			for b := 0; b < cat.Len(); b++ {
				pb, _ := cat.Prototype(PrototypeID(b))
				want := pa.Edges[d] == pb.Edges[d.Opposite()]
				if got := compat.Has(PrototypeID(b)); got != want {
					t.Fatalf("prototype %d %s compatible with %d = %v, want %v", a, d, b, got, want)
				}
			}
		}
	}
}

func TestCatalogCompatibilitySymmetry(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		cat, err := BuildCatalog(k)
		if err != nil {
			t.Fatalf("BuildCatalog(%d) error = %v", k, err)
		}
		for a := 0; a < cat.Len(); a++ {
			for b := 0; b < cat.Len(); b++ {
				for _, d := range AllDirections() {
					ab, _ := cat.Compatible(PrototypeID(a), d)
					ba, _ := cat.Compatible(PrototypeID(b), d.Opposite())
					if ab.Has(PrototypeID(b)) != ba.Has(PrototypeID(a)) {
						t.Fatalf("k=%d: %d->%d %s not symmetric", k, a, b, d)
					}
				}
			}
		}
	}
}

func TestCatalogCompatibleReturnsCopy(t *testing.T) {
	cat, err := BuildCatalog(2)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}
	before, _ := cat.Compatible(0, North)
	n := before.Len()

	mutated, _ := cat.Compatible(0, North)
	mutated.Add(1)
	mutated.Add(3)
	mutated.Remove(0)

	after, _ := cat.Compatible(0, North)
	if after.Len() != n || !after.Equal(before) {
		t.Errorf("Compatible() result shares storage with the catalog")
	}
}

func TestCatalogLookupErrors(t *testing.T) {
	cat, err := BuildCatalog(2)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}
	if _, err := cat.Prototype(16); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Prototype(16) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := cat.Edges(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Edges(-1) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := cat.Compatible(0, Direction(7)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Compatible(0, 7) error = %v, want ErrInvalidArgument", err)
	}
}

func TestNewCatalogValidation(t *testing.T) {
	if _, err := NewCatalog(2, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewCatalog(empty) error = %v, want ErrInvalidArgument", err)
	}
	bad := [][NumDirections]EdgeValue{{0, 0, 2, 0}}
	if _, err := NewCatalog(2, bad); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewCatalog(out of range edge) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := NewCatalog(0, [][NumDirections]EdgeValue{{0, 0, 0, 0}}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewCatalog(0 edges) error = %v, want ErrInvalidArgument", err)
	}
}
