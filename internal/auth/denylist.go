package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistKeyPrefix = "denylist:access_token:"

// Denylist records revoked access-token IDs in Redis until they would have
// expired anyway. Logout is the only writer; the auth middleware is the only
// reader. Without Redis configured the service falls back to pure
// expiry-based revocation.
type Denylist struct {
	rdb *redis.Client
}

func NewDenylist(rdb *redis.Client) *Denylist {
	return &Denylist{rdb: rdb}
}

// Revoke marks a jti revoked for ttl. A non-positive ttl means the token is
// already past expiry and there is nothing to record.
func (d *Denylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, denylistKeyPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether a jti has been revoked. Redis errors fail open:
// a flaky denylist must not lock every user out.
func (d *Denylist) IsRevoked(ctx context.Context, jti string) bool {
	n, err := d.rdb.Exists(ctx, denylistKeyPrefix+jti).Result()
	if err != nil {
		return false
	}
	return n > 0
}
