package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/triplog-app/triplog/internal/config"
	"github.com/triplog-app/triplog/internal/metrics"
	"github.com/triplog-app/triplog/internal/repository/postgres"
	redisrepo "github.com/triplog-app/triplog/internal/repository/redis"
	authservice "github.com/triplog-app/triplog/internal/service/auth"
	transportHttp "github.com/triplog-app/triplog/internal/transport/http"
	"github.com/triplog-app/triplog/internal/transport/http/middleware"
	"github.com/triplog-app/triplog/pkg/token"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Persistence layer
	db, err := postgres.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetimeMin)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	log.Println("Running database migrations...")
	if err := postgres.RunMigrations(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	userRepo := postgres.NewUserRepo(db)

	// Redis is optional: nil client means no profile cache.
	var cache authservice.CacheRepository
	if redisClient := redisrepo.Connect(cfg.RedisAddr, cfg.RedisPassword); redisClient != nil {
		defer redisClient.Close()
		cache = redisrepo.NewCache(redisClient)
	}

	// Services
	signer := token.NewSigner(cfg.JWTSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	authSvc := authservice.NewService(userRepo, signer, cache)

	var verifier authservice.AssertionVerifier
	if cfg.OAuth.GoogleLoginConfig.ClientID != "" {
		verifier = authservice.NewUserInfoVerifier(cfg.OAuth)
	} else {
		log.Println("[AUTH] No provider credentials configured; trusting client assertions")
	}

	// Transport
	collector := metrics.NewCollector()
	authHandler := transportHttp.NewAuthHandler(authSvc, verifier, collector)
	authMW := middleware.Auth(signer, collector)

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst)
	defer loginLimiter.Stop()

	mux := http.NewServeMux()
	mux.Handle("POST /api/auth/social-login", loginLimiter.Middleware(http.HandlerFunc(authHandler.SocialLogin)))
	mux.Handle("GET /api/auth/me", authMW(http.HandlerFunc(authHandler.Me)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /metrics", collector.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	handler := middleware.CORS(cfg.AllowedOrigins)(mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
