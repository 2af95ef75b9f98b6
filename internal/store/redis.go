package store

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix = "devpulse:user:"
	lookupTimeout = 500 * time.Millisecond
)

// RedisDirectory reads membership records maintained by the identity
// service. Each user is a hash at devpulse:user:<id> with a comma
// separated teams field and an active flag.
type RedisDirectory struct {
	client *redis.Client
}

func NewRedisDirectory(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

func (d *RedisDirectory) Membership(ctx context.Context, userID string) (*Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	fields, err := d.client.HGetAll(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrUserUnknown
	}

	m := &Membership{Active: fields["active"] == "1" || fields["active"] == "true"}
	if teams := fields["teams"]; teams != "" {
		for _, t := range strings.Split(teams, ",") {
			if t = strings.TrimSpace(t); t != "" {
				m.TeamIDs = append(m.TeamIDs, t)
			}
		}
	}
	return m, nil
}

func (d *RedisDirectory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
