package planner

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/signalsfoundry/linkplanner/core"
	"github.com/signalsfoundry/linkplanner/internal/logging"
)

// Re-export the core sentinels so callers can match on planner.* without
// importing core.
var (
	ErrInvalidFrequency  = core.ErrInvalidFrequency
	ErrInvalidPosition   = core.ErrInvalidPosition
	ErrFrequencyMismatch = core.ErrFrequencyMismatch
	ErrTowerNotFound     = core.ErrTowerNotFound
	ErrLinkNotFound      = core.ErrLinkNotFound
	ErrZoneReset         = core.ErrZoneReset
)

// MetricsRecorder receives count updates for planner entities.
type MetricsRecorder interface {
	SetPlannerCounts(towers, links, zones int)
}

// State is one planning session: the towers and links held in a
// KnowledgeBase, the pending tower selection and the displayed Fresnel
// zones. All mutations go through its methods and run to completion under
// a single lock, so cascades (tower -> links -> zones) are atomic with
// respect to each other.
type State struct {
	// mu is the session-level lock. Take it before touching the KB so the
	// ordering State -> KB is global.
	mu sync.RWMutex

	kb *core.KnowledgeBase

	// pending is the tower awaiting a partner click; empty when idle.
	pending string

	// zones holds at most one zone per link ID.
	zones map[string]core.Zone

	// zoneGen counts global zone resets. A zone resolved across a reset is
	// dropped.
	zoneGen uint64

	newID   func() string
	log     logging.Logger
	metrics MetricsRecorder
}

// Option customises State construction.
type Option func(*State)

// WithMetricsRecorder attaches an optional metrics recorder for entity counts.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *State) {
		s.metrics = m
	}
}

// WithIDGenerator replaces the UUID generator used for tower and link IDs.
// Generated IDs must never repeat within a session.
func WithIDGenerator(fn func() string) Option {
	return func(s *State) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewState constructs an empty planning session.
func NewState(log logging.Logger, opts ...Option) *State {
	if log == nil {
		log = logging.Noop()
	}
	s := &State{
		kb:    core.NewKnowledgeBase(),
		zones: make(map[string]core.Zone),
		newID: uuid.NewString,
		log:   log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.updateMetricsLocked()
	return s
}

// KnowledgeBase exposes the underlying tower/link store for read access.
func (s *State) KnowledgeBase() *core.KnowledgeBase {
	return s.kb
}

//
// ---------- Towers ----------
//

// AddTower creates a tower at position operating on frequencyGHz. A new
// tower clears the pending selection and every displayed zone.
func (s *State) AddTower(ctx context.Context, position core.LatLng, frequencyGHz float64, name string) (core.Tower, error) {
	if err := core.ValidateFrequency(frequencyGHz); err != nil {
		return core.Tower{}, err
	}
	if err := position.Validate(); err != nil {
		return core.Tower{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := core.Tower{
		ID:           s.newID(),
		Name:         name,
		Position:     position,
		FrequencyGHz: frequencyGHz,
	}
	if err := s.kb.AddTower(t); err != nil {
		return core.Tower{}, err
	}

	s.pending = ""
	cleared := s.resetZonesLocked()
	s.updateMetricsLocked()

	s.log.Debug(ctx, "tower added",
		logging.String("tower_id", t.ID),
		logging.String("position", position.String()),
		logging.Float("frequency_ghz", frequencyGHz),
		logging.Int("zones_cleared", cleared),
	)
	stored, _ := s.kb.GetTower(t.ID)
	return stored, nil
}

// RemoveTower deletes a tower together with every link that references
// it. Any tower removal resets all displayed zones.
func (s *State) RemoveTower(ctx context.Context, id string) ([]core.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.kb.DeleteTower(id)
	if err != nil {
		return nil, err
	}
	if s.pending == id {
		s.pending = ""
	}
	cleared := s.resetZonesLocked()
	s.updateMetricsLocked()

	s.log.Info(ctx, "tower removed",
		logging.String("tower_id", id),
		logging.Int("links_removed", len(removed)),
		logging.Int("zones_cleared", cleared),
	)
	return removed, nil
}

// EditFrequency retunes a tower and drops every link touching it whose
// endpoints no longer share a live frequency, along with those links'
// zones. Links elsewhere in the network are untouched.
func (s *State) EditFrequency(ctx context.Context, id string, frequencyGHz float64) ([]core.Link, error) {
	if err := core.ValidateFrequency(frequencyGHz); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.kb.SetTowerFrequency(id, frequencyGHz)
	if err != nil {
		return nil, err
	}
	for _, l := range removed {
		delete(s.zones, l.ID)
	}
	s.updateMetricsLocked()

	s.log.Info(ctx, "tower frequency edited",
		logging.String("tower_id", id),
		logging.Float("frequency_ghz", frequencyGHz),
		logging.Int("links_removed", len(removed)),
	)
	return removed, nil
}

// Towers returns the live towers in creation order.
func (s *State) Towers() []core.Tower {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kb.ListTowers()
}

// Tower returns one tower by ID.
func (s *State) Tower(id string) (core.Tower, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.kb.GetTower(id)
	if !ok {
		return core.Tower{}, fmt.Errorf("%w: %q", ErrTowerNotFound, id)
	}
	return t, nil
}

//
// ---------- Links ----------
//

// RemoveLink deletes a link and its zone.
func (s *State) RemoveLink(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kb.DeleteLink(id); err != nil {
		return err
	}
	delete(s.zones, id)
	s.updateMetricsLocked()

	s.log.Info(ctx, "link removed", logging.String("link_id", id))
	return nil
}

// Links returns the live links in creation order with derived geometry.
func (s *State) Links() []LinkView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := s.kb.ListLinks()
	out := make([]LinkView, 0, len(links))
	for _, l := range links {
		out = append(out, s.linkViewLocked(l))
	}
	return out
}

// Link returns one link with derived geometry.
func (s *State) Link(id string) (LinkView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.kb.GetLink(id)
	if !ok {
		return LinkView{}, fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	return s.linkViewLocked(l), nil
}

// LinkView is a link plus values derived from its live endpoints.
type LinkView struct {
	core.Link
	DistanceMeters float64 `json:"distanceMeters"`
	PathLossDB     float64 `json:"pathLossDB"`
}

func (s *State) linkViewLocked(l core.Link) LinkView {
	v := LinkView{Link: l}
	from, okFrom := s.kb.GetTower(l.FromTowerID)
	to, okTo := s.kb.GetTower(l.ToTowerID)
	if !okFrom || !okTo {
		return v
	}
	v.DistanceMeters = core.HaversineMeters(from.Position, to.Position)
	if loss, err := core.FreeSpacePathLossDB(from.FrequencyGHz, v.DistanceMeters); err == nil {
		v.PathLossDB = loss
	}
	return v
}

//
// ---------- Zones ----------
//

// Zones returns the displayed zones ordered by their link's creation order.
func (s *State) Zones() []core.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zonesLocked()
}

func (s *State) zonesLocked() []core.Zone {
	out := make([]core.Zone, 0, len(s.zones))
	for _, l := range s.kb.ListLinks() {
		if z, ok := s.zones[l.ID]; ok {
			out = append(out, z)
		}
	}
	return out
}

// resetZonesLocked discards every zone and starts a new zone generation.
// It returns how many zones were discarded.
func (s *State) resetZonesLocked() int {
	n := len(s.zones)
	s.zones = make(map[string]core.Zone)
	s.zoneGen++
	return n
}

// zoneTicket pins the inputs of a zone computation.
type zoneTicket struct {
	link     core.Link
	from, to core.Tower
	gen      uint64
}

// linkGeometry resolves a link and its endpoints for zone computation,
// together with the current zone generation.
func (s *State) linkGeometry(id string) (zoneTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, from, to, err := s.kb.LinkEndpoints(id)
	if err != nil {
		return zoneTicket{}, err
	}
	return zoneTicket{link: l, from: from, to: to, gen: s.zoneGen}, nil
}

// commitZone stores z unless its link has been removed, or zones have been
// reset, since the ticket was taken.
func (s *State) commitZone(t zoneTicket, z core.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.kb.GetLink(z.LinkID); !ok {
		return fmt.Errorf("%w: %q removed before zone resolved", ErrLinkNotFound, z.LinkID)
	}
	if s.zoneGen != t.gen {
		return fmt.Errorf("%w: link %q", ErrZoneReset, z.LinkID)
	}
	s.zones[z.LinkID] = z
	s.updateMetricsLocked()
	return nil
}

//
// ---------- Session ----------
//

// Snapshot is a consistent view of the whole session for rendering.
type Snapshot struct {
	Towers  []core.Tower `json:"towers"`
	Links   []LinkView   `json:"links"`
	Zones   []core.Zone  `json:"zones"`
	Pending string       `json:"pendingTowerId,omitempty"`
}

// Snapshot captures towers, links, zones and the pending selection under
// one read lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := s.kb.ListLinks()
	views := make([]LinkView, 0, len(links))
	for _, l := range links {
		views = append(views, s.linkViewLocked(l))
	}
	return Snapshot{
		Towers:  s.kb.ListTowers(),
		Links:   views,
		Zones:   s.zonesLocked(),
		Pending: s.pending,
	}
}

// Reset discards every tower, link, zone and the pending selection.
func (s *State) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kb.Clear()
	s.pending = ""
	s.resetZonesLocked()
	s.updateMetricsLocked()
	s.log.Info(ctx, "planning session reset")
}

// CheckInvariants verifies the link invariant and that every zone belongs
// to a live link.
func (s *State) CheckInvariants() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.kb.CheckInvariants(); err != nil {
		return err
	}
	for linkID := range s.zones {
		if _, ok := s.kb.GetLink(linkID); !ok {
			return fmt.Errorf("zone for removed link %q", linkID)
		}
	}
	if s.pending != "" {
		if _, ok := s.kb.GetTower(s.pending); !ok {
			return fmt.Errorf("pending selection references removed tower %q", s.pending)
		}
	}
	return nil
}

func (s *State) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	towers, links := s.kb.Counts()
	s.metrics.SetPlannerCounts(towers, links, len(s.zones))
}
