package redis

import (
	"context"
	"time"

	"WPProject/global"
	errs "WPProject/tools/errs"

	"github.com/redis/go-redis/v9"
)

// New 建连并 ping。实例由 main 构造后注入，不做包级单例
func New(cfg global.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errs.WrapMsg(err, "redis ping", "addr", cfg.Addr)
	}
	return rdb, nil
}
