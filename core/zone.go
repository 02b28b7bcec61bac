package core

// Zone is the first Fresnel zone visualisation for one link, evaluated at
// the link midpoint.
type Zone struct {
	LinkID         string  `json:"linkId"`
	Midpoint       LatLng  `json:"midpoint"`
	RadiusMeters   float64 `json:"radiusMeters"`
	DistanceMeters float64 `json:"distanceMeters"`
	FrequencyGHz   float64 `json:"frequencyGHz"`

	// ElevationMeters is nil when the elevation lookup failed or returned
	// no data.
	ElevationMeters *float64 `json:"elevationMeters,omitempty"`
}

// HasElevation reports whether terrain elevation is known for the midpoint.
func (z Zone) HasElevation() bool {
	return z.ElevationMeters != nil
}

// ComputeZone derives the zone geometry for a link between two positions
// at frequencyGHz. Elevation is left unset.
func ComputeZone(linkID string, a, b LatLng, frequencyGHz float64) (Zone, error) {
	distance := HaversineMeters(a, b)
	radius, err := FresnelRadius(frequencyGHz, distance)
	if err != nil {
		return Zone{}, err
	}
	return Zone{
		LinkID:         linkID,
		Midpoint:       Midpoint(a, b),
		RadiusMeters:   radius,
		DistanceMeters: distance,
		FrequencyGHz:   frequencyGHz,
	}, nil
}
