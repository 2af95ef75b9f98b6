package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/logging"
)

// CachedDirectory fronts another Directory with a bounded TTL cache so
// connection setup does not hit the backend for every socket a user opens.
type CachedDirectory struct {
	inner Directory
	cache *expirable.LRU[string, *Membership]
}

func NewCachedDirectory(inner Directory, size int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		inner: inner,
		cache: expirable.NewLRU[string, *Membership](size, nil, ttl),
	}
}

func (d *CachedDirectory) Membership(ctx context.Context, userID string) (*Membership, error) {
	if m, ok := d.cache.Get(userID); ok {
		return m, nil
	}
	m, err := d.inner.Membership(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.cache.Add(userID, m)
	return m, nil
}

// Invalidate drops a user's cached record, typically on a team_updated or
// user deactivation event.
func (d *CachedDirectory) Invalidate(userID string) {
	d.cache.Remove(userID)
}

func (d *CachedDirectory) Ping(ctx context.Context) error {
	if p, ok := d.inner.(Prober); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Enricher adapts a Directory into the gateway's principal enrichment
// step. Lookup failures leave the token-derived principal untouched, so
// a directory outage degrades authorization to token claims instead of
// refusing connections.
func Enricher(d Directory, timeout time.Duration) func(*auth.Principal) *auth.Principal {
	return func(p *auth.Principal) *auth.Principal {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		m, err := d.Membership(ctx, p.ID)
		if err != nil {
			if err != ErrUserUnknown {
				logging.Debug("membership lookup failed",
					zap.String("user_id", p.ID),
					zap.Error(err),
				)
			}
			return p
		}
		return p.WithTeams(m.TeamIDs, m.Active)
	}
}
