package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	ListenAddr     string   `yaml:"listen_addr"`
	RemoteBaseURL  string   `yaml:"remote_base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	StoreBackend  string `yaml:"store_backend"`
	MongoURI      string `yaml:"mongodb_uri"`
	MongoDatabase string `yaml:"mongodb_database"`
	SeedFile      string `yaml:"seed_file"`

	CacheBackend string `yaml:"cache_backend"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisDB      int    `yaml:"redis_db"`
	CacheKey     string `yaml:"cache_key"`
	FallbackKey  string `yaml:"fallback_key"`

	SyncThreshold     time.Duration `yaml:"sync_threshold"`
	SyncInterval      time.Duration `yaml:"sync_interval"`
	NotificationLimit int           `yaml:"notification_limit"`
}

func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		RemoteBaseURL:     "http://localhost:8080/",
		AllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
		StoreBackend:      BackendMemory,
		MongoDatabase:     "poi_db",
		CacheBackend:      BackendMemory,
		RedisAddr:         "localhost:6379",
		CacheKey:          "game_map_pois",
		FallbackKey:       "unapproved_pois",
		SyncThreshold:     60 * time.Second,
		SyncInterval:      0,
		NotificationLimit: 50,
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by CONFIG_FILE, then environment variables (a .env file is honoured).
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.RemoteBaseURL, "REMOTE_BASE_URL")
	setString(&c.StoreBackend, "STORE_BACKEND")
	setString(&c.MongoURI, "MONGODB_URI")
	setString(&c.MongoDatabase, "MONGODB_DATABASE")
	setString(&c.SeedFile, "SEED_FILE")
	setString(&c.CacheBackend, "CACHE_BACKEND")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.CacheKey, "CACHE_KEY")
	setString(&c.FallbackKey, "FALLBACK_KEY")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.AllowedOrigins = origins
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB value %q: %w", v, err)
		}
		c.RedisDB = db
	}
	if v := os.Getenv("NOTIFICATION_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NOTIFICATION_LIMIT value %q: %w", v, err)
		}
		c.NotificationLimit = n
	}
	if err := setDuration(&c.SyncThreshold, "SYNC_THRESHOLD"); err != nil {
		return err
	}
	return setDuration(&c.SyncInterval, "SYNC_INTERVAL")
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when STORE_BACKEND=%s", BackendMongo)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.CacheKey == "" || c.FallbackKey == "" {
		return fmt.Errorf("cache keys must not be empty")
	}
	if c.CacheKey == c.FallbackKey {
		return fmt.Errorf("CACHE_KEY and FALLBACK_KEY must differ")
	}
	if c.RemoteBaseURL == "" {
		return fmt.Errorf("REMOTE_BASE_URL must not be empty")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
