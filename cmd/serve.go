package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-gym-payments/app/controller"
	"golang.org/x/time/rate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the gym payments service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	app := mustCreateApplication()
	defer app.close()
	cfg := app.cfg

	paymentController := controller.NewPaymentController(app.paymentService)

	var adminAuth echo.MiddlewareFunc
	if cfg.InternalEndpoints.AuthGRPCAddr != "" {
		authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
		}
		defer authGRPCClient.Close()

		internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
		adminAuth = authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService).RequireInternalAccess(cfg.App.ServiceName)
	} else {
		logrus.Warn("AUTH_SERVICE_GRPC_ADDR not set, admin endpoints are disabled")
	}

	e := setupHTTPServer(paymentController, adminAuth, cfg.Payments.RateLimitPerSecond)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

// setupHTTPServer mounts the public checkout routes and, when adminAuth is
// set, the internal admin routes behind it.
func setupHTTPServer(
	paymentController *controller.PaymentController,
	adminAuth echo.MiddlewareFunc,
	rateLimitPerSecond int,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	checkoutLimiter := newRateLimiter(rateLimitPerSecond)

	e.GET("/health", paymentController.Health)
	e.GET("/plans", paymentController.ListPlans)
	e.GET("/discount/:code", paymentController.GetDiscount)
	e.POST("/create-order", paymentController.CreateOrder, checkoutLimiter)
	e.POST("/verify-payment", paymentController.VerifyPayment, checkoutLimiter)

	if adminAuth != nil {
		admin := e.Group("/admin/payments", adminAuth)
		admin.GET("", paymentController.ListPayments)
		admin.GET("/:id", paymentController.GetPayment)
		admin.POST("/:id/refunds", paymentController.RefundPayment)
	}

	return e
}

func newRateLimiter(perSecond int) echo.MiddlewareFunc {
	if perSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomiddleware.RateLimiter(echomiddleware.NewRateLimiterMemoryStore(rate.Limit(perSecond)))
}
