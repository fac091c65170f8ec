package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/printmint/cardpress/internal/config"
	"github.com/printmint/cardpress/internal/models"
)

type membershipFetcher interface {
	FetchTier(ctx context.Context, accessToken string) (models.MembershipTier, error)
}

type membershipStore interface {
	CacheMembership(ctx context.Context, id string, tier models.MembershipTier, expiryMillis int64) error
	ApplyGrant(ctx context.Context, id string, amount int, tier models.MembershipTier, expiryMillis int64, grantedAt, cutoff time.Time) (bool, error)
}

// MembershipService resolves a user's subscription tier through a TTL cache
// kept on the user row, and applies the tier's credit grant when the cache is
// refreshed. Grants add to the balance; they never overwrite it.
type MembershipService struct {
	cfg      config.Config
	log      *slog.Logger
	provider membershipFetcher
	users    membershipStore
	now      func() time.Time
}

func NewMembershipService(cfg config.Config, log *slog.Logger, provider membershipFetcher, users membershipStore) *MembershipService {
	return &MembershipService{
		cfg:      cfg,
		log:      log,
		provider: provider,
		users:    users,
		now:      time.Now,
	}
}

// Resolve returns the user's membership tier. Within the TTL window the cached
// tier is returned with zero outbound calls; on miss or expiry the provider is
// consulted once, the cache refreshed, and the tier's grant credited.
// The passed user is updated in place with the refreshed state.
func (s *MembershipService) Resolve(ctx context.Context, user *models.User, accessToken string) (models.MembershipTier, error) {
	now := s.now()

	if user.MembershipTier != nil && user.MembershipExpiry != nil && *user.MembershipExpiry > now.UnixMilli() {
		return *user.MembershipTier, nil
	}

	tier, err := s.provider.FetchTier(ctx, accessToken)
	if err != nil {
		return models.MembershipNone, err
	}

	expiry := now.Add(s.cfg.MembershipCacheTTL).UnixMilli()
	grant := s.grantFor(tier)
	if grant > 0 {
		// The cutoff guard makes the grant conditional in the datastore:
		// when two requests race past the same expired cache row, only one
		// write passes and the other sees zero rows affected.
		cutoff := now.Add(-s.cfg.MembershipCacheTTL)
		applied, err := s.users.ApplyGrant(ctx, user.ID, grant, tier, expiry, now, cutoff)
		if err != nil {
			return models.MembershipNone, err
		}
		if applied {
			user.Credits += grant
			granted := now
			user.LastGrantedAt = &granted
			s.log.Info("membership grant applied", "user", user.ID, "tier", tier, "credits", grant)
		} else {
			s.log.Info("membership grant already applied this period", "user", user.ID, "tier", tier)
		}
	} else {
		if err := s.users.CacheMembership(ctx, user.ID, tier, expiry); err != nil {
			return models.MembershipNone, err
		}
	}

	user.MembershipTier = &tier
	user.MembershipExpiry = &expiry
	return tier, nil
}

func (s *MembershipService) grantFor(tier models.MembershipTier) int {
	switch tier {
	case models.MembershipActive:
		return s.cfg.ActiveMemberCredits
	case models.MembershipFormer:
		return s.cfg.FormerMemberCredits
	default:
		return 0
	}
}
