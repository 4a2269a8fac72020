package presence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kawan/utils"

	"github.com/redis/go-redis/v9"
)

// Cache mirrors the latest presence value into Redis with a TTL so the
// directory read path can answer "who's online" without hitting the
// document store. Every method is nil-safe: without Redis the service
// simply falls back to stored presence.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, ttl: 3 * IdleTimeout}
}

func presenceKey(uid string) string {
	return "presence:" + uid
}

func (me *Cache) SetOnline(ctx context.Context, uid string, online bool, lastSeen time.Time) {
	if me == nil || me.rdb == nil {
		return
	}

	flag := "0"
	if online {
		flag = "1"
	}
	val := fmt.Sprintf("%s:%d", flag, lastSeen.UnixMilli())

	if err := me.rdb.Set(ctx, presenceKey(uid), val, me.ttl).Err(); err != nil {
		utils.Log().V(2).Info("presence cache write skipped: " + err.Error())
	}
}

// GetOnline returns the mirrored value and whether the mirror had one.
func (me *Cache) GetOnline(ctx context.Context, uid string) (online bool, lastSeen time.Time, ok bool) {
	if me == nil || me.rdb == nil {
		return false, time.Time{}, false
	}

	val, err := me.rdb.Get(ctx, presenceKey(uid)).Result()
	if err != nil {
		return false, time.Time{}, false
	}

	parts := strings.SplitN(val, ":", 2)
	if len(parts) != 2 {
		return false, time.Time{}, false
	}

	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false, time.Time{}, false
	}

	return parts[0] == "1", time.UnixMilli(ms), true
}
