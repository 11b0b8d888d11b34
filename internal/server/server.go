package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/handler"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// Deps はルーティングに必要な部品
type Deps struct {
	Config config.Config
	Log    *slog.Logger
	Users  repository.UserRepository

	Products    *usecase.ProductUsecase
	Carts       *usecase.CartUsecase
	Wishlists   *usecase.WishlistUsecase
	Reviews     *usecase.ReviewUsecase
	Orders      *usecase.OrderUsecase
	AdminOrders *usecase.AdminOrderUsecase
	AuditLogs   *usecase.AuditLogUsecase

	// /healthz で使う（nilなら常にok）
	Ping func(ctx context.Context) error
}

// New はechoを組み立てる
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(d.Log)

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))

	e.GET("/healthz", func(c echo.Context) error {
		if d.Ping != nil {
			if err := d.Ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, handler.ErrorResponse{Error: "db unavailable"})
			}
		}
		return c.JSON(http.StatusOK, handler.SuccessResponse{Message: "ok"})
	})

	handler.NewProductHandler(d.Products).RegisterRoutes(e)
	handler.NewReviewHandler(d.Reviews).RegisterRoutes(e, d.Config, d.Users)
	handler.NewCartHandler(d.Carts).RegisterRoutes(e, d.Config, d.Users)
	handler.NewWishlistHandler(d.Wishlists).RegisterRoutes(e, d.Config, d.Users)
	handler.NewOrderHandler(d.Orders).RegisterRoutes(e, d.Config, d.Users)
	handler.NewManageProductHandler(d.Products).RegisterRoutes(e, d.Config, d.Users)
	handler.NewAdminProductHandler(d.Products).RegisterRoutes(e, d.Config, d.Users)
	handler.NewAdminOrderHandler(d.AdminOrders).RegisterRoutes(e, d.Config, d.Users)
	handler.NewAuditLogHandler(d.AuditLogs).RegisterRoutes(e, d.Config, d.Users)

	return e
}

// echoのエラー（404/405やpanic）もErrorResponseの形にそろえる
func errorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := "internal error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		} else {
			log.ErrorContext(c.Request().Context(), "unhandled error",
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"err", err,
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, handler.ErrorResponse{Error: msg})
	}
}

// Start はctxが終わるまで待ち、そのあと処理中のリクエストを待って止める
func Start(ctx context.Context, e *echo.Echo, addr string, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
