// Command kimlikd wires the authentication engine to its backing services
// and serves the JSON API. All composition happens here: configuration from
// the environment, SQLite for the durable ledgers, Redis for rate limits and
// the token blacklist, Resend for outbound mail. No globals.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/kimlik-auth/kimlik"
	"github.com/kimlik-auth/kimlik/httpapi"
	"github.com/kimlik-auth/kimlik/notify"
	"github.com/kimlik-auth/kimlik/store/sqlite"
)

type serverConfig struct {
	addr         string
	databasePath string
	redisAddr    string
	redisDB      int

	jwtPrivateKey []byte
	baseURL       string

	resendAPIKey string
	mailFromName string
	mailFrom     string
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("[kimlikd] starting")

	cfg, err := loadServerConfig()
	if err != nil {
		log.Fatalf("[kimlikd] config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, cfg.databasePath)
	if err != nil {
		log.Fatalf("[kimlikd] database: %v", err)
	}
	defer db.Close()
	log.Printf("[kimlikd] database ready (%s)", cfg.databasePath)

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.redisAddr,
		DB:   cfg.redisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("[kimlikd] redis: %v", err)
	}
	log.Printf("[kimlikd] redis ready (%s)", cfg.redisAddr)

	engineCfg := kimlik.DefaultConfig()
	engineCfg.JWT.PrivateKey = cfg.jwtPrivateKey
	engineCfg.Links.BaseURL = cfg.baseURL

	builder := kimlik.New().
		WithConfig(engineCfg).
		WithRedis(redisClient).
		WithStores(db.Users(), db.Sessions(), db.ResetTokens()).
		WithAuditSink(kimlik.NewJSONWriterSink(os.Stdout))

	if cfg.resendAPIKey != "" {
		builder = builder.WithNotifier(notify.NewResend(cfg.resendAPIKey, cfg.mailFromName, cfg.mailFrom))
	} else {
		log.Println("[kimlikd] RESEND_API_KEY unset, outbound mail disabled")
	}

	engine, err := builder.Build()
	if err != nil {
		log.Fatalf("[kimlikd] engine: %v", err)
	}
	defer engine.Close()

	server := &http.Server{
		Addr:              cfg.addr,
		Handler:           httpapi.New(engine),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[kimlikd] listening on %s", cfg.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		log.Fatalf("[kimlikd] server: %v", err)
	case <-ctx.Done():
	}

	log.Println("[kimlikd] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[kimlikd] shutdown: %v", err)
	}
	log.Println("[kimlikd] stopped")
}

// loadServerConfig reads the environment, with .env support for development.
func loadServerConfig() (*serverConfig, error) {
	_ = godotenv.Load()

	cfg := &serverConfig{
		addr:         getEnv("LISTEN_ADDR", ":8080"),
		databasePath: getEnv("DATABASE_PATH", "./data/kimlik.db"),
		redisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		baseURL:      getEnv("BASE_URL", "http://localhost:3000"),
		resendAPIKey: getEnv("RESEND_API_KEY", ""),
		mailFromName: getEnv("MAIL_FROM_NAME", "kimlik"),
		mailFrom:     getEnv("MAIL_FROM", "noreply@localhost"),
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.redisDB = redisDB

	// Raw Ed25519 private key, base64. PEM files work too; the engine
	// accepts both encodings.
	keyB64 := os.Getenv("JWT_PRIVATE_KEY")
	if keyB64 == "" {
		return nil, fmt.Errorf("JWT_PRIVATE_KEY environment variable is required")
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_PRIVATE_KEY: %w", err)
	}
	cfg.jwtPrivateKey = key

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
