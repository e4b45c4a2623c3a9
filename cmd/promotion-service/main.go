// cmd/promotion-service/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"polaris/internal/pkg/bootstrap"
	"polaris/internal/pkg/config"
	"polaris/internal/pkg/lock"
	"polaris/internal/pkg/logger"
	"polaris/internal/pkg/mq"
	"polaris/internal/pkg/redis"
	"polaris/internal/service/promotion/application"
	"polaris/internal/service/promotion/infrastructure"
	"polaris/internal/service/promotion/interfaces"
)

// main 是应用的"组装根" (Composition Root)：
// 创建并组装所有依赖项，然后交给 bootstrap 统一启动和关停。
func main() {
	configPath := flag.String("config", "conf/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Service.Name, cfg.Service.Pretty)
	logger.SetLevel(cfg.Service.Level)

	tracer := otel.Tracer(cfg.Service.Name)

	// 1. 基础设施客户端
	db, err := infrastructure.NewDB(cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mysql")
	}

	redisClient, err := redis.NewClient(cfg.Redis.Addrs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}

	locker := newLocker(cfg, redisClient)

	brokers := strings.Split(cfg.Kafka.Brokers, ",")
	grantWriter := mq.NewKafkaWriter(brokers, cfg.Kafka.GrantTopic)
	grantReader := mq.NewKafkaReader(brokers, cfg.Kafka.GrantTopic, cfg.Kafka.ConsumerGroup)

	// 2. 出站适配器
	couponRepo := infrastructure.NewGormCouponRepository(db)
	scopeRepo := infrastructure.NewGormCouponScopeRepository(db)
	userCouponRepo := infrastructure.NewGormUserCouponRepository(db)
	codeRepo := infrastructure.NewGormExchangeCodeRepository(db)
	grantStore := infrastructure.NewGormGrantStore(db)
	cache := infrastructure.NewCouponRedisCache(redisClient)
	mark := infrastructure.NewRedisExchangeMark(redisClient)
	producer := infrastructure.NewGrantKafkaProducer(grantWriter)

	// 3. 应用服务
	codeSvc := application.NewExchangeCodeService(mark, codeRepo, tracer)
	couponSvc := application.NewCouponService(couponRepo, userCouponRepo, cache, codeSvc, tracer)
	userSvc := application.NewUserCouponService(
		couponRepo, cache, mark, codeRepo, grantStore, producer,
		locker, cfg.Lock.WaitTimeout, tracer,
	)
	discountSvc := application.NewDiscountService(
		userCouponRepo, scopeRepo, cfg.Solver.Workers, cfg.Solver.Timeout, tracer,
	)

	// 4. 入站适配器：HTTP 处理器和授予意图消费者
	handler := interfaces.NewPromotionHandler(couponSvc, userSvc, discountSvc)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumer := infrastructure.NewGrantConsumerAdapter(grantReader, userSvc)
	consumer.Start(consumerCtx)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.Service.Name,
		Port:        cfg.Service.Port,
		Cfg:         cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumer()
			consumer.Stop()
			if err := grantWriter.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka writer")
			}
			if err := redisClient.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close redis client")
			}
		},
	})
}

// newLocker 按配置选择分布式锁实现，redis 是默认，zookeeper 备选。
func newLocker(cfg *config.Config, redisClient *redis.Client) lock.Locker {
	switch cfg.Lock.Provider {
	case "zookeeper":
		locker, err := lock.NewZkLocker(strings.Split(cfg.Lock.ZkServers, ","))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize zookeeper locker")
		}
		return locker
	default:
		locker, err := lock.NewRedisLocker(redisClient, cfg.Lock.LeaseTime)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis locker")
		}
		return locker
	}
}
