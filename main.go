package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"swapstadium/config"
	"swapstadium/handlers"
	_ "swapstadium/migrations"
	"swapstadium/monitoring"
	"swapstadium/security"
	"swapstadium/services"
	"swapstadium/utils"
)

func main() {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	// Initialize services
	notifier := services.NewNotifier(pn, app.Logger())
	ticketService := services.NewTicketService(app, redisClient, cfg)
	exchangeService := services.NewExchangeService(app, notifier)

	// Initialize handlers
	ticketHandler := handlers.NewTicketHandler(app, ticketService)
	exchangeHandler := handlers.NewExchangeHandler(app, exchangeService)

	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Context for background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorStop := make(chan struct{})

	// Setup graceful shutdown
	go handleShutdown(cancel, monitorStop)

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Background tasks
		go ticketService.RunExpirySweep(ctx, cfg.ExpirySweepInterval)
		go monitoring.NewMonitor(app).Collect(monitorStop)

		if cfg.EnableMetrics {
			go serveMetrics(cfg.MetricsPort)
		}

		g := e.Router.Group("/api/swap")
		g.Bind(apis.RequireAuth())
		g.BindFunc(limiter.Middleware())

		// Ticket endpoints
		g.POST("/tickets", ticketHandler.Create)
		g.GET("/tickets/mine", ticketHandler.ListMine)
		g.GET("/tickets/public", ticketHandler.ListPublic)
		g.GET("/tickets/{id}", ticketHandler.Get)
		g.PATCH("/tickets/{id}/status", ticketHandler.UpdateStatus)
		g.DELETE("/tickets/{id}", ticketHandler.Delete)

		// Exchange request endpoints
		g.POST("/requests", exchangeHandler.CreateRequest)
		g.GET("/requests/incoming", exchangeHandler.ListIncoming)
		g.GET("/requests/outgoing", exchangeHandler.ListOutgoing)
		g.POST("/requests/{id}/accept", exchangeHandler.Accept)
		g.POST("/requests/{id}/accept-with-selection", exchangeHandler.AcceptWithSelection)
		g.POST("/requests/{id}/reject", exchangeHandler.Reject)
		g.POST("/requests/{id}/cancel", exchangeHandler.Cancel)
		g.POST("/requests/{id}/confirm", exchangeHandler.ConfirmComplete)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("metrics listener stopped: %v", err)
	}
}

// handleShutdown handles graceful shutdown of background tasks
func handleShutdown(cancel context.CancelFunc, monitorStop chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
	close(monitorStop)
}
