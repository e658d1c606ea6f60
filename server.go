package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/handlers"
	"github.com/hohbackend/budget_backend/integrations"
	"github.com/hohbackend/budget_backend/middlewares"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	settings := config.GetSettings()
	config.SetLogLevel(settings.LogLevel)
	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Start the HTTP server first; app endpoints answer 503 until the database is ready.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	if settings.IsProduction() {
		// explicit allowlist only; deny all when none is configured
		if len(settings.CorsAllowedOrigins) > 0 {
			corsConfig.AllowOrigins = settings.CorsAllowedOrigins
		} else {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	r.Use(cors.New(corsConfig))

	if settings.RateLimitEnabled {
		r.Use(middlewares.NewRateLimiter(nil, settings.RateLimitMaxRequest, settings.RateLimitWindow).Middleware())
	}
	r.Use(middlewares.AuthMiddleware())
	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	h := newHandler(settings, logger)
	handlers.Register(r, h)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	if settings.RedisAddress != "" {
		config.ConnectRedisWithRetry(sigCtx)
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; production runs it as a separate job (budgetctl migrate).
	if !settings.DB.SkipMigrations {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	// publishes budget events after commit
	go workflow.NewOutboxDispatcher(db, logger, workflow.NewPublisher(settings.PubSubTopic, logger)).Run(workerCtx)

	if settings.News.ProcessInterval > 0 && (h.News != nil || h.Decider != nil) {
		worker := &workflow.NewsWorker{
			Fetcher:  h.News,
			Decider:  h.Decider,
			Query:    h.NewsQuery,
			Limit:    h.DecisionLimit,
			Interval: settings.News.ProcessInterval,
			Logger:   logger,
		}
		go worker.Run(workerCtx)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", settings.Port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// stop background workers before draining requests
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// newHandler builds the outbound clients. A client whose URL is missing or invalid
// is left nil and its routes answer 503.
func newHandler(settings *config.Settings, logger *logrus.Logger) *handlers.Handler {
	h := &handlers.Handler{
		NewsQuery: integrations.NewsQuery{
			Query:    settings.News.Query,
			Country:  settings.News.Country,
			Language: settings.News.Language,
		},
		DecisionLimit: settings.News.DecisionLimit,
	}
	if bot, err := integrations.NewChatbotClient(settings.ChatbotAPIURL); err == nil {
		h.Chatbot = bot
	} else {
		logger.WithField("field", "chatbot").Warn("chatbot disabled: " + err.Error())
	}
	if decider, err := integrations.NewDecisionClient(settings.DecisionAPIURL); err == nil {
		h.Decider = decider
	} else {
		logger.WithField("field", "decision").Warn("news decisions disabled: " + err.Error())
	}
	if news, err := integrations.NewNewsClient(settings.News.APIURL, settings.News.APIKey); err == nil {
		h.News = news
	} else {
		logger.WithField("field", "news").Warn("news fetch disabled: " + err.Error())
	}
	return h
}
