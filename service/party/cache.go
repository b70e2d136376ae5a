package party

import (
	"context"
	"encoding/json"
	"time"

	errs "WPProject/tools/errs"

	"github.com/redis/go-redis/v9"
)

// PlaybackCache 最近一次已知播放进度。纯参考值：短 TTL、最后写入者赢，
// 新成员接入时用来追进度，不做权威播放控制。
type PlaybackCache interface {
	Get(ctx context.Context, partyID string) (float64, bool, error)
	Set(ctx context.Context, partyID string, seconds float64) error
}

const playbackKeyPrefix = "wp:playback:"

type playbackDoc struct {
	Time float64 `json:"time"`
}

type RedisPlaybackCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPlaybackCache(rdb *redis.Client, ttl time.Duration) *RedisPlaybackCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisPlaybackCache{rdb: rdb, ttl: ttl}
}

func (c *RedisPlaybackCache) Get(ctx context.Context, partyID string) (float64, bool, error) {
	raw, err := c.rdb.Get(ctx, playbackKeyPrefix+partyID).Bytes()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errs.WrapMsg(err, "playback get", "party_id", partyID)
	}
	var doc playbackDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, false, nil // 缓存损坏当缺失处理
	}
	return doc.Time, true, nil
}

func (c *RedisPlaybackCache) Set(ctx context.Context, partyID string, seconds float64) error {
	raw, _ := json.Marshal(playbackDoc{Time: seconds})
	if err := c.rdb.Set(ctx, playbackKeyPrefix+partyID, raw, c.ttl).Err(); err != nil {
		return errs.WrapMsg(err, "playback set", "party_id", partyID)
	}
	return nil
}
