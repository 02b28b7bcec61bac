package core

// Link pairs two towers operating on the same frequency. The endpoints
// are tower IDs; the KnowledgeBase owns the tower records.
type Link struct {
	ID          string `json:"id"`
	FromTowerID string `json:"fromTowerId"`
	ToTowerID   string `json:"toTowerId"`

	// FrequencyGHz is the shared endpoint frequency when the link was
	// created. Link validity is always judged against the live tower
	// frequencies, never against this snapshot.
	FrequencyGHz float64 `json:"frequencyGHz"`

	seq uint64
}

// Touches reports whether towerID is one of the link's endpoints.
func (l Link) Touches(towerID string) bool {
	return l.FromTowerID == towerID || l.ToTowerID == towerID
}

// Other returns the endpoint opposite towerID.
func (l Link) Other(towerID string) string {
	if l.FromTowerID == towerID {
		return l.ToTowerID
	}
	return l.FromTowerID
}

// pairKey is direction-agnostic: A-B and B-A share a key.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
