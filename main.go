package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/api"
	"board-api/board"
	"board-api/reconcile"
	"board-api/session"
	"board-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	accountsTableName := os.Getenv("ACCOUNTS_TABLE")
	tasksTableName := os.Getenv("TASKS_TABLE")
	reconcileQueueName := os.Getenv("RECONCILE_QUEUE")
	if connStr == "" || accountsTableName == "" || tasksTableName == "" || reconcileQueueName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, accountsTableName, tasksTableName, reconcileQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	cached := storage.NewCache(store, rc, durationEnv("TASKS_CACHE_TTL", 5*time.Minute))
	deduper := api.NewRedisDeduper(rc, durationEnv("DEDUPER_TTL", 24*time.Hour))

	logger := log.New()

	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		log.Fatal("missing SESSION_SECRET")
	}
	sessions := session.NewManager(cached, rc, []byte(secret), durationEnv("SESSION_TTL", 24*time.Hour), logger)

	// With Auth0 configured, incoming tokens are validated against the
	// tenant's JWKS instead of the local signing secret.
	var auth *api.Auth
	jwtAudience := os.Getenv("AUTH0_AUDIENCE")
	authDomain := os.Getenv("AUTH0_DOMAIN")
	if jwtAudience != "" && authDomain != "" {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+authDomain+"/", nil)
	} else {
		auth = api.NewAuth(nil, "", "", []byte(secret))
	}

	syncer := board.NewSyncer(cached, logger, board.SyncerConfig{
		Workers: intEnv("SYNC_WORKERS", 0),
		Buffer:  intEnv("SYNC_BUFFER", 0),
	})
	defer syncer.Close()
	boards := board.NewRegistry(cached, syncer)

	worker := reconcile.NewWorker(cached, boards, logger, durationEnv("RECONCILE_INTERVAL", 5*time.Second))
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go worker.Run(workerCtx)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, sessions, boards, auth, deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}

func intEnv(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return n
}
