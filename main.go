package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskflow/api"
	"taskflow/domain"
	"taskflow/events"
	"taskflow/storage"
	"taskflow/suggest"
)

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if cfg.RedisConn != "" {
		opts, err := storage.ParseRedisOptions(cfg.RedisConn)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
	}

	slots := openSlots(cfg, rc)

	boards := domain.SeedBoards()
	if cfg.BoardsFile != "" {
		if boards, err = domain.LoadBoardsFile(cfg.BoardsFile); err != nil {
			log.Fatalf("boards: %v", err)
		}
	}
	loc := time.Local
	if cfg.TZName != "" {
		if loc, err = time.LoadLocation(cfg.TZName); err != nil {
			log.Fatalf("invalid TZ_NAME: %v", err)
		}
	}

	instanceID := uuid.NewString()
	broker := api.NewBroker()
	publishers := []events.Publisher{}
	if rc != nil {
		publishers = append(publishers, events.NewRedisPublisher(rc, cfg.EventsChannel))
	} else {
		publishers = append(publishers, broker)
	}
	if cfg.EventsQueue != "" {
		queue, err := events.NewQueuePublisher(cfg.ConnStr, cfg.EventsQueue)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		export := events.NewAsyncPublisher(queue, events.DefaultAsyncConfig(), logger)
		defer export.Close()
		publishers = append(publishers, export)
	}
	dispatcher := events.NewDispatcher(instanceID, logger, publishers...)

	workspaces := domain.NewWorkspaces(slots,
		domain.WithChangeFunc(dispatcher.OnChange),
		domain.WithLocation(loc),
		domain.WithLogger(logger),
	)

	if rc != nil {
		go events.Subscribe(ctx, logger, rc, cfg.EventsChannel, func(ev events.Event) {
			if ev.Source != instanceID {
				// another instance wrote this collection; reload on next use
				workspaces.Close(ev.UserID)
			}
			broker.Notify(ev.UserID)
		})
	}

	var provider suggest.Provider
	if cfg.GeminiKey != "" {
		provider = suggest.NewGemini(cfg.GeminiKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	} else {
		log.Warn("GEMINI_API_KEY not set; suggestions use the fallback list")
	}
	var guard suggest.Guard
	if rc != nil {
		guard = suggest.NewRedisGuard(rc, cfg.SuggestLockTTL)
	}
	gateway := suggest.NewGateway(provider, guard, cfg.SuggestTimeout, logger)

	var jwks *keyfunc.JWKS
	if cfg.JWKSURL != "" {
		jwks, err = keyfunc.Get(cfg.JWKSURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
	}
	auth := api.NewAuth(cfg.SessionSecret, cfg.SessionTTL, jwks, cfg.Audience, cfg.Issuer)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))

	api.Register(e, api.Deps{
		Workspaces: workspaces,
		Sessions:   domain.NewSessionGate(slots, domain.Credentials{Username: cfg.Username, Password: cfg.Password}),
		Auth:       auth,
		Suggest:    gateway,
		Boards:     boards,
		Updates:    broker,
		Logger:     logger,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown")
		}
	}()

	log.WithFields(log.Fields{
		"addr":     cfg.ListenAddr,
		"backend":  cfg.SlotBackend,
		"instance": instanceID,
	}).Info("taskflow api starting")
	if err := e.Start(cfg.ListenAddr); err != nil && ctx.Err() == nil {
		log.Fatalf("server: %v", err)
	}
}

// openSlots builds the configured slot backend. Durable backends get the
// redis read-through cache when redis is available.
func openSlots(cfg config, rc *redis.Client) domain.Slots {
	switch cfg.SlotBackend {
	case backendRedis:
		return storage.NewRedis(rc)
	case backendTables:
		tables, err := storage.NewTables(cfg.ConnStr, cfg.SlotsTable)
		if err != nil {
			log.Fatalf("tables: %v", err)
		}
		return withCache(tables, rc, cfg.SlotCacheTTL)
	case backendSQLite:
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		return withCache(db, rc, cfg.SlotCacheTTL)
	default:
		return storage.NewMemory()
	}
}

func withCache(base domain.Slots, rc *redis.Client, ttl time.Duration) domain.Slots {
	if rc == nil {
		return base
	}
	return storage.NewCache(base, rc, ttl)
}
