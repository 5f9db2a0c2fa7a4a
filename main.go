package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Abhinavsb985/Smart-Traffic-Control/auth"
	"github.com/Abhinavsb985/Smart-Traffic-Control/config"
	"github.com/Abhinavsb985/Smart-Traffic-Control/database"
	"github.com/Abhinavsb985/Smart-Traffic-Control/handlers"
	"github.com/Abhinavsb985/Smart-Traffic-Control/metrics"
	"github.com/Abhinavsb985/Smart-Traffic-Control/middleware"
	"github.com/Abhinavsb985/Smart-Traffic-Control/rabbitmq"
	"github.com/Abhinavsb985/Smart-Traffic-Control/service"
	ws "github.com/Abhinavsb985/Smart-Traffic-Control/websocket"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()
	if err := database.InitializeSchema(initCtx, db.DB(), cfg.ReportsTable); err != nil {
		log.WithError(err).Fatal("Failed to initialize schema")
	}

	tables, err := database.NewTableStore(db.DB(), cfg.ReportsTable)
	if err != nil {
		log.WithError(err).Fatal("Failed to create table store")
	}
	objects := database.NewObjectStore(db.DB(), cfg.ImageBucket, cfg.PublicBaseURL)

	var publisher service.EventPublisher
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, report events disabled")
		} else {
			defer p.Close()
			publisher = p
		}
	}

	metrics.Register()

	svc := service.New(service.Options{
		Tables:        tables,
		Objects:       objects,
		Publisher:     publisher,
		ReportsTable:  cfg.ReportsTable,
		Location:      cfg.Location,
		MaxImageBytes: cfg.MaxImageBytes,
		DismissAfter:  cfg.MessageDismissDelay,
	})

	hub := ws.NewHub()
	go hub.Run()
	svc.Feed().Subscribe(hub.BroadcastReports)
	svc.Start(initCtx)

	authService := auth.NewService(db.DB(), cfg.JWTSecret, cfg.TokenTTL)
	h := handlers.NewHandlers(svc, authService, objects, hub)

	router := setupRouter(cfg, h, authService)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetHandler(json.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func setupRouter(cfg *config.Config, h *handlers.Handlers, validator middleware.TokenValidator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = int64(cfg.MaxImageBytes) + 1<<20
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.WithError(err).Warn("Invalid TRUSTED_PROXIES, trusting none")
		router.SetTrustedProxies(nil)
	}

	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v3/reports/listen", "/api/v3/images"})))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.RegisterRoutes(router, middleware.AuthMiddleware(validator))

	return router
}
