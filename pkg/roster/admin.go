package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/brokerdesk/pkg/cache"
	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/metrics"
	"github.com/jordanlanch/brokerdesk/pkg/models"
)

// ListingCacheKey prefixes the JSON encoded roster listing. The full key
// carries the listing version, see ListingVersionKey.
const ListingCacheKey = "broker_order:listing"

// ListingVersionKey is bumped on every invalidation. A listing read from the
// database is stored under the version seen before the read, so a write that
// races an invalidation lands on a key nobody reads again.
const ListingVersionKey = "broker_order:listing:version"

const listingTTL = 5 * time.Minute

// ListingKey returns the cache key of the listing at version
func ListingKey(version int64) string {
	return fmt.Sprintf("%s:v%d", ListingCacheKey, version)
}

// RoleSetter changes a profile's role
type RoleSetter interface {
	SetRole(ctx context.Context, id string, role models.Role) (models.Role, *models.Profile, error)
}

// Admin is the administrative surface over the roster. Every mutation drops
// the cached listing; the cache is optional.
type Admin struct {
	roster  *Service
	roles   RoleSetter
	cache   *cache.Client
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewAdmin creates the roster administration service. cache and m may be nil.
func NewAdmin(roster *Service, roles RoleSetter, c *cache.Client, m *metrics.Metrics, log logger.Logger) *Admin {
	if log == nil {
		log = logger.Nop()
	}
	return &Admin{roster: roster, roles: roles, cache: c, metrics: m, log: log}
}

// List returns the ordered roster with broker identity, served from cache when warm
func (a *Admin) List(ctx context.Context) ([]models.RosterListing, error) {
	key := ""
	if a.cache != nil {
		version, err := a.cache.GetInt(ctx, ListingVersionKey)
		if err != nil {
			a.log.Warn("roster cache version read failed", "error", err)
		} else {
			key = ListingKey(version)
			var cached []models.RosterListing
			err := a.cache.GetJSON(ctx, key, &cached)
			if err == nil {
				a.metrics.RecordCacheHit("roster")
				return cached, nil
			}
			if !errors.Is(err, cache.ErrMiss) {
				a.log.Warn("roster cache read failed", "error", err)
			}
			a.metrics.RecordCacheMiss("roster")
		}
	}

	listing, err := a.roster.ListWithBrokers(ctx)
	if err != nil {
		return nil, err
	}

	if key != "" {
		if err := a.cache.SetJSON(ctx, key, listing, listingTTL); err != nil {
			a.log.Warn("roster cache write failed", "error", err)
		}
	}
	return listing, nil
}

// Enroll adds a broker to the rotation, failing with ALREADY_ENROLLED when active
func (a *Admin) Enroll(ctx context.Context, brokerID string) (*models.RosterEntry, error) {
	entry, err := a.roster.Enroll(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	a.changed(ctx, "enroll")
	a.log.Info("broker enrolled", "broker_id", brokerID, "order_position", entry.OrderPosition)
	return entry, nil
}

// EnsureEnrolled makes sure the broker is active in the rotation. An entry
// that is already active is returned untouched.
func (a *Admin) EnsureEnrolled(ctx context.Context, brokerID string) (*models.RosterEntry, error) {
	entry, err := a.Enroll(ctx, brokerID)
	if domain.IsAlreadyEnrolled(err) {
		return a.roster.Get(ctx, brokerID)
	}
	return entry, err
}

// Disable takes a broker out of future selections
func (a *Admin) Disable(ctx context.Context, brokerID string) (*models.RosterEntry, error) {
	entry, err := a.roster.Disable(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	a.changed(ctx, "disable")
	a.log.Info("broker disabled", "broker_id", brokerID)
	return entry, nil
}

// SetActive toggles participation. Activation goes through enrollment so a
// returning broker is placed at the end of the rotation.
func (a *Admin) SetActive(ctx context.Context, brokerID string, active bool) (*models.RosterEntry, error) {
	if !active {
		return a.Disable(ctx, brokerID)
	}
	if _, err := a.roster.Get(ctx, brokerID); err != nil {
		return nil, err
	}
	return a.EnsureEnrolled(ctx, brokerID)
}

// Reorder applies a batch of position changes atomically
func (a *Admin) Reorder(ctx context.Context, updates []models.PositionUpdate) ([]models.RosterEntry, error) {
	entries, err := a.roster.Reorder(ctx, updates)
	if err != nil {
		return nil, err
	}
	a.changed(ctx, "reorder")
	a.log.Info("roster reordered", "updates", len(updates))
	return entries, nil
}

// ApplyRoleChange sets a profile's role and keeps the roster in step:
// a broker without a roster entry is enrolled, demotion from broker disables.
// The role is written first, so a failed enrollment is completed by
// repeating the same change.
func (a *Admin) ApplyRoleChange(ctx context.Context, profileID string, role models.Role) (*models.Profile, error) {
	previous, profile, err := a.roles.SetRole(ctx, profileID, role)
	if err != nil {
		return nil, err
	}

	switch {
	case role == models.RoleBroker:
		enroll := previous != models.RoleBroker
		if !enroll {
			// an admin may have disabled the entry on purpose; only a
			// missing one is repaired
			_, err := a.roster.Get(ctx, profileID)
			if err != nil && !domain.IsNotFound(err) {
				return nil, err
			}
			enroll = domain.IsNotFound(err)
		}
		if enroll {
			if _, err := a.EnsureEnrolled(ctx, profileID); err != nil {
				return nil, err
			}
		}
	case previous == models.RoleBroker:
		if _, err := a.Disable(ctx, profileID); err != nil && !domain.IsNotFound(err) {
			return nil, err
		}
	}
	return profile, nil
}

// Invalidate drops the cached listing by moving to a new listing version.
// The assignment engine calls it after each commit because counters shown in
// the listing changed.
func (a *Admin) Invalidate(ctx context.Context) {
	if a.cache == nil {
		return
	}
	version, err := a.cache.Incr(ctx, ListingVersionKey)
	if err != nil {
		a.log.Warn("roster cache invalidation failed", "error", err)
		return
	}
	if err := a.cache.Delete(ctx, ListingKey(version-1)); err != nil {
		a.log.Warn("roster cache cleanup failed", "error", err)
	}
}

func (a *Admin) changed(ctx context.Context, kind string) {
	a.metrics.RecordRosterMutation(kind)
	a.Invalidate(ctx)
}
