package core

// Tower is a radio site. Only FrequencyGHz changes after creation.
type Tower struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Position     LatLng  `json:"position"`
	FrequencyGHz float64 `json:"frequencyGHz"`

	seq uint64
}
