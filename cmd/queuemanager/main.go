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
	queuemod "WPProject/module/queue"
	"WPProject/service/broker"
	brokerkafka "WPProject/service/broker/kafka"
	"WPProject/service/broker/natsx"
	"WPProject/service/identity"
	queuesrv "WPProject/service/queue"
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
	cfg.NodeType = global.NodeTypeQueueManager
	ids.SetNodeID(cfg.NodeID)

	// 1) 基础依赖
	rdb, err := redisstore.New(cfg.Redis)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}

	codec, err := identity.NewCodec(cfg.FingerprintKey, cfg.HandleKey)
	if err != nil {
		log.Fatalf("identity codec init failed: %v", err)
	}

	// 2) broker：发布组队事件 + 消费自己的通知份
	group := cfg.Broker.GroupID
	if group == "" {
		group = cfg.NodeType
	}
	var pub broker.Publisher
	var sub broker.Consumer
	switch cfg.Broker.Kind {
	case global.BrokerKindKafka:
		p, err := brokerkafka.NewProducer(brokerkafka.Config{
			Brokers: cfg.Broker.KafkaBrokers, Topic: cfg.Broker.Topic,
		})
		if err != nil {
			log.Fatalf("kafka producer init failed: %v", err)
		}
		cg, err := brokerkafka.NewConsumerGroup(brokerkafka.Config{
			Brokers: cfg.Broker.KafkaBrokers, Topic: cfg.Broker.Topic, GroupID: group,
		})
		if err != nil {
			log.Fatalf("kafka consumer init failed: %v", err)
		}
		pub, sub = p, cg
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
		pub, sub = nc, nc
	}
	retryPub := broker.NewRetryingPublisher(pub, cfg.Queue.PublishAttempts, cfg.Queue.PublishBackoff)

	// 3) 队列引擎 + 候场通知
	store := queuesrv.NewRedisStore(rdb)
	engine := queuesrv.NewEngine(store, codec, retryPub, queuesrv.EngineConf{
		PartySize:     cfg.Queue.PartySize,
		WaitTTL:       cfg.Queue.MaxWaitingTime,
		MaxCASRetries: cfg.Queue.MaxCASRetries,
	})

	registry := wsconn.NewRegistry()
	notifier := queuesrv.NewNotifier(registry, engine, codec, queuesrv.NotifierConf{
		SendQueue: cfg.Party.SendQueue,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	safe.SafeGo(func() {
		if err := sub.Subscribe(ctx, notifier.OnPartyFormed); err != nil && ctx.Err() == nil {
			logger.Errorf("[main] broker subscribe stopped: %v", err)
		}
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
	handler := queuemod.NewHandler(engine, codec)

	r := gin.New()
	r.Use(gin.Recovery())

	mid.POST(r, "/api/v1/film_together", handler.HandlerJoin, mid.RouteOpt{IsAuth: true})
	mid.DELETE(r, "/api/v1/film_together/:handle", handler.HandlerLeave, mid.RouteOpt{IsAuth: true})
	r.GET("/ws/waiting/:handle", notifier.HandleWS)
	if cfg.DevTokenMint {
		authHandler := authmod.NewHandler(sec.DefaultOptions(cfg.JwtSecretBytes()))
		mid.POST(r, "/api/v1/dev/token", authHandler.HandlerDevToken, mid.RouteOpt{})
	}

	logger.Infof("[HTTP] Listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
