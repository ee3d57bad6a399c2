package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"portal-api/api"
	"portal-api/billing"
	"portal-api/domain"
	"portal-api/notify"
	"portal-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	cfg := storage.Config{
		TasksTable:        os.Getenv("TASKS_TABLE"),
		SubtasksTable:     os.Getenv("SUBTASKS_TABLE"),
		UsersTable:        os.Getenv("USERS_TABLE"),
		SettingsTable:     os.Getenv("SETTINGS_TABLE"),
		NotificationQueue: os.Getenv("NOTIFICATION_QUEUE"),
	}
	if connStr == "" || cfg.TasksTable == "" || cfg.SubtasksTable == "" || cfg.UsersTable == "" || cfg.SettingsTable == "" || cfg.NotificationQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var backing domain.Store = store
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
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
		ttl := 5 * time.Minute
		if v := os.Getenv("CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid CACHE_TTL: %v", err)
			}
			ttl = d
		}
		backing = storage.NewCache(store, redis.NewClient(redisOpts), ttl)
	}
	workflow := domain.NewWorkflow(backing)

	var auth *api.Auth
	if os.Getenv("LOCAL_AUTH_MODE") != "" {
		auth = api.NewAuth(nil, "", "")
	} else {
		audience := os.Getenv("AUTH0_AUDIENCE")
		authDomain := os.Getenv("AUTH0_DOMAIN")
		if audience == "" || authDomain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, audience, "https://"+authDomain+"/")
	}

	logger := log.New()
	dispatcher := notify.NewDispatcher(store, store, nil, os.Getenv("SMS_GATEWAY_URL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	worker := notify.NewWorker(store, dispatcher, logger, time.Second)
	go worker.Run(ctx)

	e := echo.New()
	api.Register(e, api.Deps{
		Workflow:         workflow,
		Auth:             auth,
		Directory:        store,
		Settings:         store,
		Queue:            store,
		Dispatcher:       dispatcher,
		NewGateway:       func(secretKey string) billing.Gateway { return billing.NewStripeGateway(secretKey) },
		BillingReturnURL: os.Getenv("BILLING_RETURN_URL"),
		Logger:           logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
