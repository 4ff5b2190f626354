package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-reconciler/api"
	"github.com/frahmantamala/payment-reconciler/internal/auth"
	"github.com/frahmantamala/payment-reconciler/internal/payment"
	"github.com/frahmantamala/payment-reconciler/internal/paymentmethod"
	"github.com/frahmantamala/payment-reconciler/internal/transport"
	"github.com/frahmantamala/payment-reconciler/internal/transport/rest"
	"github.com/frahmantamala/payment-reconciler/internal/transport/swagger"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
)

var withSweeper bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests, gateway callbacks and webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func init() {
	httpServerCmd.Flags().BoolVar(&withSweeper, "with-sweeper", false, "Also run the stale payment sweeper in this process")
}

func startHTTPServer() {
	ctx := context.Background()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	log := deps.Logger

	if _, err := swagger.Load(ctx, api.OpenAPI); err != nil {
		log.Error("embedded openapi document is invalid", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	setupRoutes(router, deps)

	var sweeper *payment.Sweeper
	if withSweeper {
		sweeper = newSweeper(deps)
		sweeper.Start()
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	log.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down...", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			deps.Close(ctx)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", "error", err)
	}
	if sweeper != nil {
		sweeper.Shutdown()
	}
	deps.Close(shutdownCtx)

	log.Info("Server stopped")
}

func setupRoutes(router *chi.Mux, deps *Dependencies) {
	base := transport.NewBaseHandler(deps.Logger)

	checks := map[string]rest.Checker{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}
	}

	rest.RegisterAllRoutes(router, rest.Handlers{
		Auth: auth.NewHandler(base, deps.AuthService),
		Payment: payment.NewHandler(base, deps.PaymentService, payment.HandlerConfig{
			SignatureHeader: deps.Config.Webhook.Header(),
		}),
		PaymentMethod: paymentmethod.NewHandler(base, deps.PaymentMethodService),
		Health:        rest.NewHealthHandler(checks),
	}, rest.RouterConfig{
		AllowedOrigins:    deps.Config.Server.AllowedOrigins,
		TrustProxyHeaders: deps.Config.Webhook.TrustProxyHeaders,
		OpenAPISpec:       api.OpenAPI,
	}, deps.Logger)
}
