package models

import "time"

// Position is one sample from the local location sensor.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

func (p Position) Valid() bool {
	lat, lng := p.Latitude, p.Longitude
	return ValidCoordinates(&lat, &lng)
}
