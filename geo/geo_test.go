package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tokyo := LatLng{Lat: 35.6812, Lng: 139.7671}
	osaka := LatLng{Lat: 34.7025, Lng: 135.4959}

	d := Distance(tokyo, osaka)
	if d < 400000 || d > 410000 {
		t.Fatalf("expected about 403km, got %.0fm", d)
	}
	if Distance(tokyo, tokyo) != 0 {
		t.Fatal("expected zero distance to self")
	}
}

func TestDistanceSmall(t *testing.T) {
	a := LatLng{Lat: 35, Lng: 139}
	b := LatLng{Lat: 35 + 10.0/111195, Lng: 139}
	if d := Distance(a, b); math.Abs(d-10) > 0.05 {
		t.Fatalf("expected 10m, got %.3f", d)
	}
}

func TestBearing(t *testing.T) {
	origin := LatLng{Lat: 0, Lng: 0}
	tests := []struct {
		to   LatLng
		want float64
	}{
		{LatLng{Lat: 1, Lng: 0}, 0},
		{LatLng{Lat: 0, Lng: 1}, 90},
		{LatLng{Lat: -1, Lng: 0}, 180},
		{LatLng{Lat: 0, Lng: -1}, 270},
	}
	for _, tt := range tests {
		if got := Bearing(origin, tt.to); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("bearing to %+v: expected %v, got %v", tt.to, tt.want, got)
		}
	}
}

func TestCentroidAndOffset(t *testing.T) {
	c := Centroid([]LatLng{{Lat: 1, Lng: 1}, {Lat: 3, Lng: 5}})
	if c.Lat != 2 || c.Lng != 3 {
		t.Fatalf("unexpected centroid %+v", c)
	}

	east := Offset(c, 0.001, 0)
	west := Offset(c, 0.001, math.Pi)
	if math.Abs((east.Lat+west.Lat)/2-c.Lat) > 1e-12 || math.Abs((east.Lng+west.Lng)/2-c.Lng) > 1e-12 {
		t.Fatalf("expected opposite offsets to mirror around the center, got %+v %+v", east, west)
	}
}

func TestBounds(t *testing.T) {
	sw, ne := Bounds([]LatLng{{Lat: 1, Lng: 5}, {Lat: -2, Lng: 7}, {Lat: 3, Lng: -1}})
	if sw != (LatLng{Lat: -2, Lng: -1}) || ne != (LatLng{Lat: 3, Lng: 7}) {
		t.Fatalf("unexpected bounds %+v %+v", sw, ne)
	}
}
