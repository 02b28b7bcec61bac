package planner

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/signalsfoundry/linkplanner/core"
	"github.com/signalsfoundry/linkplanner/internal/logging"
	"github.com/signalsfoundry/linkplanner/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultElevationTimeout bounds a single elevation lookup during link
// activation. A lookup that outlives it counts as unavailable.
const DefaultElevationTimeout = 5 * time.Second

// ElevationProvider returns terrain elevation in metres at a coordinate.
// Any error means the elevation is unavailable.
type ElevationProvider interface {
	Lookup(ctx context.Context, lat, lng float64) (float64, error)
}

// ZoneResolver turns a link activation into a Fresnel zone record.
type ZoneResolver struct {
	state     *State
	elevation ElevationProvider
	timeout   time.Duration
	log       logging.Logger
}

// ZoneResolverOption customises ZoneResolver construction.
type ZoneResolverOption func(*ZoneResolver)

// WithElevationTimeout overrides DefaultElevationTimeout. Non-positive
// values are ignored.
func WithElevationTimeout(d time.Duration) ZoneResolverOption {
	return func(r *ZoneResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewZoneResolver wires a resolver to a session. elevation may be nil, in
// which case every zone is produced without elevation.
func NewZoneResolver(state *State, elevation ElevationProvider, log logging.Logger, opts ...ZoneResolverOption) *ZoneResolver {
	if log == nil {
		log = logging.Noop()
	}
	r := &ZoneResolver{
		state:     state,
		elevation: elevation,
		timeout:   DefaultElevationTimeout,
		log:       log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ActivateLink computes the zone for linkID, looks up the midpoint
// elevation and stores the zone, replacing any previous one for the link.
//
// The elevation lookup runs without holding the session lock. If the link
// is removed while the lookup is in flight the result is discarded and
// ErrLinkNotFound is returned. If a tower is added or removed meanwhile the
// zones were reset, so the result is discarded with ErrZoneReset. Elevation failures never fail the call;
// they produce a zone without elevation.
func (r *ZoneResolver) ActivateLink(ctx context.Context, linkID string) (core.Zone, error) {
	ctx, span := observability.StartSpan(ctx, "planner.ActivateLink", "link", linkID)
	defer span.End()

	log := logging.LoggerFromContext(ctx, r.log)

	ticket, err := r.state.linkGeometry(linkID)
	if err != nil {
		observability.FailSpan(span, err)
		return core.Zone{}, err
	}

	zone, err := core.ComputeZone(ticket.link.ID, ticket.from.Position, ticket.to.Position, ticket.link.FrequencyGHz)
	if err != nil {
		observability.FailSpan(span, err)
		return core.Zone{}, err
	}
	span.SetAttributes(
		attribute.Float64("zone.distance_m", zone.DistanceMeters),
		attribute.Float64("zone.radius_m", zone.RadiusMeters),
	)

	if elev, ok := r.lookupElevation(ctx, log, zone.Midpoint); ok {
		zone.ElevationMeters = &elev
		span.SetAttributes(attribute.Float64("zone.elevation_m", elev))
	}

	if err := r.state.commitZone(ticket, zone); err != nil {
		log.Debug(ctx, "discarding stale zone", logging.String("link_id", linkID), logging.Err(err))
		observability.FailSpan(span, err)
		return core.Zone{}, err
	}

	log.Info(ctx, "fresnel zone resolved",
		logging.String("link_id", linkID),
		logging.Float("distance_m", zone.DistanceMeters),
		logging.Float("radius_m", zone.RadiusMeters),
		logging.Any("elevation_available", zone.HasElevation()),
	)
	return zone, nil
}

func (r *ZoneResolver) lookupElevation(ctx context.Context, log logging.Logger, at core.LatLng) (float64, bool) {
	if r.elevation == nil {
		return 0, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	elev, err := r.elevation.Lookup(ctx, at.Lat, at.Lng)
	switch {
	case err == nil && !math.IsNaN(elev) && !math.IsInf(elev, 0):
		return elev, true
	case err == nil:
		log.Warn(ctx, "elevation lookup returned a non-finite value", logging.String("position", at.String()))
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(ctx, "elevation lookup timed out", logging.String("position", at.String()), logging.Any("timeout", r.timeout.String()))
	default:
		log.Warn(ctx, "elevation unavailable", logging.String("position", at.String()), logging.Err(err))
	}
	return 0, false
}
