package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"poi-map/cache"
	"poi-map/config"
	"poi-map/handlers"
	"poi-map/middleware"
	"poi-map/remote"
	"poi-map/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backing store
	repo, closeRepo := newRepository(ctx, cfg)
	defer closeRepo()

	// Local cache
	kv := newCacheKV(ctx, cfg)
	localCache := cache.NewLocalCache(kv, cfg.CacheKey, cfg.FallbackKey)

	// Session core
	client, err := remote.NewClient(cfg.RemoteBaseURL, nil)
	if err != nil {
		log.Fatalf("Invalid remote base url: %v", err)
	}
	notifications := services.NewNotificationLog(cfg.NotificationLimit)
	drafts := services.NewDraftService(client, localCache, notifications)
	store := services.NewPOIStore(localCache,
		services.WithSubmitter(drafts),
		services.WithRenderHook(func(rev uint64) {
			log.Printf("POI collection changed (revision %d)", rev)
		}),
	)
	coordinator := services.NewSyncCoordinator(store, client, localCache, notifications, cfg.SyncThreshold)
	session := services.NewSession(store, coordinator, drafts, notifications)

	r := mux.NewRouter()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.ErrorMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	handlers.NewBackendHandler(repo).Register(r)
	handlers.NewSessionHandler(session, notifications).Register(r)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.ListenAddr, err)
	}
	srv := &http.Server{Handler: r}
	go func() {
		log.Printf("Server starting on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// The remote source may be this process, so load only once listening.
	go func() {
		coordinator.Load(ctx)
		coordinator.Run(ctx, cfg.SyncInterval)
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func newRepository(ctx context.Context, cfg config.Config) (services.POIRepository, func()) {
	if cfg.StoreBackend != config.BackendMongo {
		log.Println("Using in-memory POI repository")
		return services.NewMemoryRepository(), func() {}
	}
	repo, err := services.NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.SeedFile)
	if err != nil {
		log.Fatalf("MongoDB setup failed: %v", err)
	}
	return repo, func() {
		if err := repo.Close(context.Background()); err != nil {
			log.Printf("Failed to disconnect MongoDB: %v", err)
		}
	}
}

func newCacheKV(ctx context.Context, cfg config.Config) cache.KV {
	if cfg.CacheBackend != config.BackendRedis {
		log.Println("Using in-memory POI cache")
		return cache.NewMemoryKV()
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")
	return cache.NewRedisKV(client)
}
