package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"marketplace/internal/config"
	"marketplace/internal/infra/cache"
	"marketplace/internal/infra/db"
	"marketplace/internal/infra/event"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/server"
	"marketplace/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	//.envは無くてもよい（コンテナでは環境変数で渡す）
	if err := config.LoadDotEnv(".env", "../.env"); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	//商品キャッシュ（REDIS_URLが無ければキャッシュなし）
	var productCache usecase.ProductCache = cache.Nop{}
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		productCache = cache.NewRedisProductCache(rdb, cfg.ProductCacheTTL, log)
	}

	//注文イベント（RABBITMQ_URLが無ければ発行しない）
	var publisher interface {
		usecase.EventPublisher
		Close() error
	} = event.Nop{}
	if cfg.RabbitMQURL != "" {
		p, err := event.NewAMQPPublisher(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		publisher = p
	}
	defer publisher.Close()

	//Repository（GORM実装）生成
	tx := infraRepo.NewTxManagerGorm(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	attributeRepo := infraRepo.NewProductAttributeGormRepository(gormDB)
	reviewRepo := infraRepo.NewReviewGormRepository(gormDB)
	wishlistRepo := infraRepo.NewWishlistGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	auditLogRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	clock := usecase.SystemClock{}

	//Usecase生成
	e := server.New(server.Deps{
		Config:    cfg,
		Log:       log,
		Users:     userRepo,
		Products:  usecase.NewProductUsecase(tx, productRepo, categoryRepo, attributeRepo, productCache, clock),
		Reviews:   usecase.NewReviewUsecase(reviewRepo, productRepo, productCache, clock),
		Carts:     usecase.NewCartUsecase(cartRepo, cartRepo, productRepo),
		Wishlists: usecase.NewWishlistUsecase(wishlistRepo, productRepo, clock),
		Orders: usecase.NewOrderUsecase(usecase.OrderDeps{
			Tx:         tx,
			Orders:     orderRepo,
			OrderItems: orderItemRepo,
			Carts:      cartRepo,
			CartItems:  cartRepo,
			Products:   productRepo,
			Cache:      productCache,
			Events:     publisher,
			Log:        log,
			Clock:      clock,
		}),
		AdminOrders: usecase.NewAdminOrderUsecase(tx, orderRepo, orderItemRepo, productCache, publisher, log, clock),
		AuditLogs:   usecase.NewAuditLogUsecase(auditLogRepo),
		Ping:        sqlDB.PingContext,
	})

	//Server起動
	addr := cfg.Port
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}
	return server.Start(ctx, e, addr, log)
}

// 本番はJSON、それ以外はテキスト
func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
