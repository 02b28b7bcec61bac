package planner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/signalsfoundry/linkplanner/core"
	"github.com/signalsfoundry/linkplanner/internal/logging"
	"gopkg.in/yaml.v3"
)

// ScenarioSummary reports what LoadScenario created.
type ScenarioSummary struct {
	TowerIDs map[string]string // scenario key -> tower ID
	LinkIDs  []string
}

// scenarioFile is the on-disk shape. JSON is accepted too since it is
// valid YAML.
type scenarioFile struct {
	Towers []scenarioTower `yaml:"towers"`
	Links  []scenarioLink  `yaml:"links"`
}

type scenarioTower struct {
	Key       string  `yaml:"key"`
	Name      string  `yaml:"name"`
	Lat       float64 `yaml:"lat"`
	Lng       float64 `yaml:"lng"`
	Frequency float64 `yaml:"frequency"`
}

type scenarioLink struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// LoadScenario seeds s with the towers and links described in r. Towers
// are referenced by key (falling back to name) within the file. Links go
// through the same selection path as user clicks, so a frequency mismatch
// fails the load. The session is left with whatever was added before the
// first error.
func LoadScenario(ctx context.Context, s *State, r io.Reader) (*ScenarioSummary, error) {
	if s == nil {
		return nil, errors.New("load scenario: nil state")
	}

	var payload scenarioFile
	if err := yaml.NewDecoder(r).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("load scenario: decode: %w", err)
	}

	summary := &ScenarioSummary{
		TowerIDs: make(map[string]string, len(payload.Towers)),
		LinkIDs:  make([]string, 0, len(payload.Links)),
	}

	for i, st := range payload.Towers {
		key := st.Key
		if key == "" {
			key = st.Name
		}
		if key == "" {
			return summary, fmt.Errorf("load scenario: tower %d has neither key nor name", i)
		}
		if _, dup := summary.TowerIDs[key]; dup {
			return summary, fmt.Errorf("load scenario: duplicate tower key %q", key)
		}
		t, err := s.AddTower(ctx, core.LatLng{Lat: st.Lat, Lng: st.Lng}, st.Frequency, st.Name)
		if err != nil {
			return summary, fmt.Errorf("load scenario: tower %q: %w", key, err)
		}
		summary.TowerIDs[key] = t.ID
	}

	for _, sl := range payload.Links {
		fromID, ok := summary.TowerIDs[sl.From]
		if !ok {
			return summary, fmt.Errorf("load scenario: link %s-%s: %w: %q", sl.From, sl.To, core.ErrTowerNotFound, sl.From)
		}
		toID, ok := summary.TowerIDs[sl.To]
		if !ok {
			return summary, fmt.Errorf("load scenario: link %s-%s: %w: %q", sl.From, sl.To, core.ErrTowerNotFound, sl.To)
		}
		if fromID == toID {
			return summary, fmt.Errorf("load scenario: link %s-%s: %w", sl.From, sl.To, core.ErrSameTower)
		}

		if _, err := s.SelectOrLinkTower(ctx, fromID); err != nil {
			return summary, fmt.Errorf("load scenario: link %s-%s: %w", sl.From, sl.To, err)
		}
		res, err := s.SelectOrLinkTower(ctx, toID)
		if err != nil {
			return summary, fmt.Errorf("load scenario: link %s-%s: %w", sl.From, sl.To, err)
		}
		summary.LinkIDs = append(summary.LinkIDs, res.Link.ID)
	}

	s.log.Info(ctx, "scenario loaded",
		logging.Int("towers", len(summary.TowerIDs)),
		logging.Int("links", len(summary.LinkIDs)),
	)
	return summary, nil
}
