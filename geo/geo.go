// Package geo holds the small amount of spherical geometry the client needs.
package geo

import "math"

const earthRadius = 6371000.0

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance is the haversine great-circle distance in meters.
func Distance(a, b LatLng) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing is the initial course from a to b in degrees, 0-360 clockwise from north.
func Bearing(a, b LatLng) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLng := radians(b.Lng - a.Lng)
	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return math.Mod(degrees(math.Atan2(y, x))+360, 360)
}

// Centroid is the arithmetic mean of the points.
func Centroid(points []LatLng) LatLng {
	if len(points) == 0 {
		return LatLng{}
	}
	var c LatLng
	for _, p := range points {
		c.Lat += p.Lat
		c.Lng += p.Lng
	}
	n := float64(len(points))
	return LatLng{Lat: c.Lat / n, Lng: c.Lng / n}
}

// Lerp interpolates linearly between a and b.
func Lerp(a, b LatLng, t float64) LatLng {
	return LatLng{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// Offset moves p by radius degrees at angle radians (0 = east, counter-clockwise).
func Offset(p LatLng, radius, angle float64) LatLng {
	return LatLng{
		Lat: p.Lat + radius*math.Sin(angle),
		Lng: p.Lng + radius*math.Cos(angle),
	}
}

// Bounds is the smallest box containing points.
func Bounds(points []LatLng) (sw, ne LatLng) {
	if len(points) == 0 {
		return
	}
	sw, ne = points[0], points[0]
	for _, p := range points[1:] {
		sw.Lat = math.Min(sw.Lat, p.Lat)
		sw.Lng = math.Min(sw.Lng, p.Lng)
		ne.Lat = math.Max(ne.Lat, p.Lat)
		ne.Lng = math.Max(ne.Lng, p.Lng)
	}
	return sw, ne
}
