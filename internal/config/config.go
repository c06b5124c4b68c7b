package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Solana   SolanaConfig
	Duel     DuelConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type SolanaConfig struct {
	Network          string
	ProgramID        string
	AuthorityKey     string
	FeeCollector     string
	MinConfirmations int
}

type DuelConfig struct {
	FeePercent       int64
	Duration         time.Duration
	CountdownDelay   time.Duration
	PendingTTL       time.Duration
	QueueSize        int
	WorkerCount      int
	ResolverInterval time.Duration
	ExpiryInterval   time.Duration
	DefaultSymbol    string
}

// Load reads configuration from the environment, with .env as a local
// development convenience.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[Config] No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			GinMode:        getEnv("GIN_MODE", "debug"),
			AllowedOrigins: []string{getEnv("ALLOWED_ORIGIN", "http://localhost:3000")},
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "duel_arena"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		Solana: SolanaConfig{
			Network:          getEnv("SOLANA_NETWORK", "devnet"),
			ProgramID:        getEnv("DUEL_PROGRAM_ID", ""),
			AuthorityKey:     getEnv("DUEL_AUTHORITY_KEY", ""),
			FeeCollector:     getEnv("FEE_COLLECTOR_ADDRESS", ""),
			MinConfirmations: getEnvInt("MIN_CONFIRMATIONS", 1),
		},
		Duel: DuelConfig{
			FeePercent:       int64(getEnvInt("DUEL_FEE_PERCENT", 5)),
			Duration:         getEnvDuration("DUEL_DURATION", 60*time.Second),
			CountdownDelay:   getEnvDuration("DUEL_COUNTDOWN", 5*time.Second),
			PendingTTL:       getEnvDuration("DUEL_PENDING_TTL", 5*time.Minute),
			QueueSize:        getEnvInt("DUEL_QUEUE_SIZE", 256),
			WorkerCount:      getEnvInt("DUEL_WORKER_COUNT", 4),
			ResolverInterval: getEnvDuration("DUEL_RESOLVER_INTERVAL", 2*time.Second),
			ExpiryInterval:   getEnvDuration("DUEL_EXPIRY_INTERVAL", 30*time.Second),
			DefaultSymbol:    getEnv("DUEL_DEFAULT_SYMBOL", "SOL/USD"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Solana.ProgramID == "" {
		return nil, fmt.Errorf("DUEL_PROGRAM_ID is required")
	}
	if cfg.Solana.AuthorityKey == "" {
		return nil, fmt.Errorf("DUEL_AUTHORITY_KEY is required")
	}
	if cfg.Solana.FeeCollector == "" {
		return nil, fmt.Errorf("FEE_COLLECTOR_ADDRESS is required")
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings. Used by tooling that never
// touches the chain or serves requests.
func LoadDatabase() DatabaseConfig {
	if err := godotenv.Load(); err != nil {
		log.Printf("[Config] No .env file found, using environment variables")
	}
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Name:     getEnv("DB_NAME", "duel_arena"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[Config] Invalid integer for %s: %q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[Config] Invalid duration for %s: %q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
