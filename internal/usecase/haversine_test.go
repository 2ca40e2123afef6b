package usecase

import (
	"math"
	"testing"
)

func TestDistanceMetersZero(t *testing.T) {
	if d := distanceMeters(26.25, 78.1698, 26.25, 78.1698); d != 0 {
		t.Fatalf("distance to self = %v, want 0", d)
	}
}

func TestDistanceMetersKnownPairs(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        float64
	}{
		{"hundredth of a degree of latitude", 26.25, 78.1698, 26.26, 78.1698, 1112, 2},
		{"one degree along the equator", 0, 0, 0, 1, 111195, 50},
		{"across the classroom", 26.25, 78.1698, 26.2501, 78.1698, 11.1, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := distanceMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(d-tc.want) > tc.tolerance {
				t.Fatalf("distance = %v, want %v +/- %v", d, tc.want, tc.tolerance)
			}
		})
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	a := distanceMeters(26.25, 78.1698, 28.61, 77.21)
	b := distanceMeters(28.61, 77.21, 26.25, 78.1698)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("asymmetric distance: %v vs %v", a, b)
	}
}
