package queue

import (
	"context"
	"encoding/json"
	"time"

	errs "WPProject/tools/errs"

	"github.com/redis/go-redis/v9"
)

const queueKeyPrefix = "wp:queue:"

// redis 里的文档：版本和成员放在同一个 JSON 值里，
// 脚本内比对版本，单值读改写在 redis 侧天然原子。
type queueDoc struct {
	Version uint64  `json:"version"`
	Members []Entry `json:"members"`
}

// KEYS[1] 队列 key
// ARGV[1] 期望版本（0 = 期望不存在）
// ARGV[2] 新文档 JSON（版本已 +1）
// ARGV[3] TTL 毫秒
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local expected = tonumber(ARGV[1])
if not cur then
  if expected ~= 0 then return 0 end
else
  local doc = cjson.decode(cur)
  if tonumber(doc.version) ~= expected then return 0 end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// KEYS[1] 队列 key
// ARGV[1] 期望版本
var cadScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local expected = tonumber(ARGV[1])
if not cur then
  return expected == 0 and 1 or 0
end
local doc = cjson.decode(cur)
if tonumber(doc.version) ~= expected then return 0 end
redis.call('DEL', KEYS[1])
return 1
`)

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func queueKey(contentID string) string { return queueKeyPrefix + contentID }

func (s *RedisStore) Get(ctx context.Context, contentID string) (State, uint64, error) {
	raw, err := s.rdb.Get(ctx, queueKey(contentID)).Bytes()
	if err == redis.Nil {
		return State{}, 0, nil
	}
	if err != nil {
		return State{}, 0, errs.ErrStoreUnavailable.WrapMsg("get", "content_id", contentID, "err", err)
	}
	var doc queueDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return State{}, 0, errs.ErrStoreUnavailable.WrapMsg("corrupt queue doc", "content_id", contentID)
	}
	return State{Members: doc.Members}, doc.Version, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, contentID string, expected uint64, st State, ttl time.Duration) (bool, error) {
	doc := queueDoc{Version: expected + 1, Members: st.Members}
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, errs.Wrap(err)
	}
	n, err := casScript.Run(ctx, s.rdb, []string{queueKey(contentID)},
		expected, raw, ttl.Milliseconds()).Int()
	if err != nil {
		return false, errs.ErrStoreUnavailable.WrapMsg("cas", "content_id", contentID, "err", err)
	}
	return n == 1, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, contentID string, expected uint64) (bool, error) {
	n, err := cadScript.Run(ctx, s.rdb, []string{queueKey(contentID)}, expected).Int()
	if err != nil {
		return false, errs.ErrStoreUnavailable.WrapMsg("cad", "content_id", contentID, "err", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, contentID string) error {
	if err := s.rdb.Del(ctx, queueKey(contentID)).Err(); err != nil {
		return errs.ErrStoreUnavailable.WrapMsg("del", "content_id", contentID, "err", err)
	}
	return nil
}
