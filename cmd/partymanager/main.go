package main

import (
	"context"
	"flag"
	"log"
	"net"

	"WPProject/global"
	"WPProject/logger"
	mid "WPProject/middleware"
	midsec "WPProject/middleware/security"
	authmod "WPProject/module/auth"
	partymod "WPProject/module/party"
	"WPProject/service/broker"
	brokerkafka "WPProject/service/broker/kafka"
	"WPProject/service/broker/natsx"
	"WPProject/service/mgo"
	partysrv "WPProject/service/party"
	redisstore "WPProject/service/storage/redis"
	"WPProject/service/wsconn"
	ids "WPProject/tools/ids"
	"WPProject/tools/safe"
	sec "WPProject/tools/security"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configPath := flag.String("config", "", "json config file")
	flag.Parse()

	cfg, err := global.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	cfg.NodeType = global.NodeTypePartyManager
	ids.SetNodeID(cfg.NodeID + 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1) 存储
	db, err := mgo.Connect(ctx, cfg.Mongo)
	if err != nil {
		log.Fatalf("mongo init failed: %v", err)
	}
	records := partysrv.NewMongoRecordStore(db)
	if err := records.EnsureIndexes(ctx); err != nil {
		logger.Warnf("[main] ensure indexes failed: %v", err)
	}

	rdb, err := redisstore.New(cfg.Redis)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}
	cache := partysrv.NewRedisPlaybackCache(rdb, cfg.Party.PlaybackTTL)

	// 2) broker 消费：组队事件 → 建档
	group := cfg.Broker.GroupID
	if group == "" {
		group = cfg.NodeType
	}
	var sub broker.Consumer
	switch cfg.Broker.Kind {
	case global.BrokerKindKafka:
		cg, err := brokerkafka.NewConsumerGroup(brokerkafka.Config{
			Brokers: cfg.Broker.KafkaBrokers, Topic: cfg.Broker.Topic, GroupID: group,
		})
		if err != nil {
			log.Fatalf("kafka consumer init failed: %v", err)
		}
		sub = cg
	default:
		nc, err := natsx.New(natsx.Config{
			Servers: cfg.Broker.NatsServers,
			Name:    cfg.NodeType,
			Subject: cfg.Broker.Topic,
			Queue:   group,
		})
		if err != nil {
			log.Fatalf("nats init failed: %v", err)
		}
		sub = nc
	}

	manager := partysrv.NewManager(records)
	safe.SafeGo(func() {
		if err := sub.Subscribe(ctx, manager.OnPartyFormed); err != nil && ctx.Err() == nil {
			logger.Errorf("[main] broker subscribe stopped: %v", err)
		}
	})

	// 3) 实时通道
	registry := wsconn.NewRegistry()
	bc := partysrv.NewBroadcaster(registry, cache, records)
	wsServer := partysrv.NewWSServer(bc, manager, partysrv.WSServerConf{
		JWT:         sec.DefaultOptions(cfg.JwtSecretBytes()),
		IdleTimeout: cfg.Party.IdleTimeout,
		SendQueue:   cfg.Party.SendQueue,
	})

	// 4) gRPC 健康检查
	go func() {
		lis, err := net.Listen("tcp", cfg.GrpcAddr)
		if err != nil {
			log.Fatalf("gRPC listen failed: %v", err)
		}
		gs := grpc.NewServer()
		healthServer := health.NewServer()
		healthpb.RegisterHealthServer(gs, healthServer)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		logger.Infof("[gRPC] Listening on %s", cfg.GrpcAddr)
		if err := gs.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	// 5) HTTP + WebSocket
	mid.ConfigAuth(midsec.DefaultOptions(cfg.JwtSecretBytes()))
	handler := partymod.NewHandler(manager)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws/party/:party_id", wsServer.HandleWS) // token 走 query，握手里校验
	mid.GET(r, "/api/v1/party/mine", handler.HandlerFindMine, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/api/v1/party/:party_id", handler.HandlerFindByID, mid.RouteOpt{IsAuth: true})
	if cfg.DevTokenMint {
		authHandler := authmod.NewHandler(sec.DefaultOptions(cfg.JwtSecretBytes()))
		mid.POST(r, "/api/v1/dev/token", authHandler.HandlerDevToken, mid.RouteOpt{})
	}

	logger.Infof("[HTTP] Listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
