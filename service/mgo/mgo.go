package mgo

import (
	"context"
	"time"

	"WPProject/global"
	errs "WPProject/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect 建连并 ping；断线重连交给驱动自身
func Connect(ctx context.Context, cfg global.MongoConfig) (*mongo.Database, error) {
	opts := options.Client().ApplyURI(cfg.Uri).SetMaxPoolSize(20)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "mongo connect", "uri", cfg.Uri)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, errs.WrapMsg(err, "mongo ping", "uri", cfg.Uri)
	}
	return client.Database(cfg.Database), nil
}
