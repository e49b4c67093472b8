package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"corsOrigins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
		Group    string `yaml:"group"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Badges struct {
		TTL string `yaml:"ttl"`
	} `yaml:"badges"`
	Leaderboard struct {
		// SnapshotTTL bounds how long a shared snapshot lives in Redis; keep
		// it longer than the refresh schedule.
		SnapshotTTL string `yaml:"snapshotTtl"`
	} `yaml:"leaderboard"`
	Schedule struct {
		StreakReset  string `yaml:"streakReset"`
		Leaderboards string `yaml:"leaderboards"`
		Reminders    string `yaml:"reminders"`
		Sessions     string `yaml:"sessions"`
	} `yaml:"schedule"`
	Gamification struct {
		SessionTimeout string `yaml:"sessionTimeout"`
		FreezeCost     int    `yaml:"freezeCost"`
	} `yaml:"gamification"`
	Retry struct {
		MaxElapsed string `yaml:"maxElapsed"`
	} `yaml:"retry"`
}

// Load reads YAML config from path, then applies environment overrides for
// connection strings and secrets.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Log.Mode, "LOG_MODE")
	setFromEnv(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setFromEnv(&cfg.Mongo.URI, "MONGO_URI")
	setFromEnv(&cfg.Mongo.Database, "MONGO_DATABASE")
	setFromEnv(&cfg.Redis.Addr, "REDIS_ADDR")
	setFromEnv(&cfg.Redis.Password, "REDIS_PASSWORD")
	setFromEnv(&cfg.Postgres.URL, "POSTGRES_URL")
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil {
			cfg.Redis.DB = db
		}
	}
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
