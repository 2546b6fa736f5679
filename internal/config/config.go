package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DBConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Storage  StorageConfig
	Log      LogConfig
	Breaker  BreakerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	ListKey  string
}

// LedgerConfig names the issuing account and the book new accounts join.
type LedgerConfig struct {
	BankAccountID       uint64
	LedgerID            uint32
	Code                uint16
	HistoryDefaultLimit int
	HistoryMaxLimit     int
}

type StorageConfig struct {
	// Driver is "postgres" or "memory"
	Driver string
}

type LogConfig struct {
	Level       string
	Format      string
	Development bool
}

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

var bindings = map[string]string{
	"server.port":          "PORT",
	"server.read_timeout":  "SERVER_READ_TIMEOUT",
	"server.write_timeout": "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":  "SERVER_IDLE_TIMEOUT",

	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",

	"redis.enabled":  "REDIS_ENABLED",
	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",
	"redis.list_key": "REDIS_LIST_KEY",

	"ledger.bank_account_id":       "LEDGER_BANK_ACCOUNT_ID",
	"ledger.ledger_id":             "LEDGER_ID",
	"ledger.code":                  "LEDGER_CODE",
	"ledger.history_default_limit": "LEDGER_HISTORY_DEFAULT_LIMIT",
	"ledger.history_max_limit":     "LEDGER_HISTORY_MAX_LIMIT",

	"storage.driver": "STORAGE_DRIVER",

	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",
	"log.dev":    "LOG_DEV",

	"breaker.max_requests":         "BREAKER_MAX_REQUESTS",
	"breaker.interval":             "BREAKER_INTERVAL",
	"breaker.timeout":              "BREAKER_TIMEOUT",
	"breaker.consecutive_failures": "BREAKER_CONSECUTIVE_FAILURES",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "ledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Minute*5)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.list_key", "ledger:transfers")

	v.SetDefault("ledger.bank_account_id", uint64(999))
	v.SetDefault("ledger.ledger_id", 1)
	v.SetDefault("ledger.code", 1)
	v.SetDefault("ledger.history_default_limit", 10)
	v.SetDefault("ledger.history_max_limit", 100)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.dev", false)

	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.consecutive_failures", 5)
}

// Load reads configuration from an optional .env file and the environment.
// Environment variables override the file; every key has a default.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
		// .env keys arrive as e.g. "database_host"; fold them onto the dotted keys
		// as defaults so real environment variables still win.
		for key, env := range bindings {
			fileKey := strings.ToLower(env)
			if v.InConfig(fileKey) {
				v.SetDefault(key, v.Get(fileKey))
			}
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
		},
		Database: DBConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			ListKey:  v.GetString("redis.list_key"),
		},
		Ledger: LedgerConfig{
			BankAccountID:       v.GetUint64("ledger.bank_account_id"),
			LedgerID:            v.GetUint32("ledger.ledger_id"),
			Code:                v.GetUint16("ledger.code"),
			HistoryDefaultLimit: v.GetInt("ledger.history_default_limit"),
			HistoryMaxLimit:     v.GetInt("ledger.history_max_limit"),
		},
		Storage: StorageConfig{
			Driver: v.GetString("storage.driver"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Format:      v.GetString("log.format"),
			Development: v.GetBool("log.dev"),
		},
		Breaker: BreakerConfig{
			MaxRequests:         v.GetUint32("breaker.max_requests"),
			Interval:            v.GetDuration("breaker.interval"),
			Timeout:             v.GetDuration("breaker.timeout"),
			ConsecutiveFailures: v.GetUint32("breaker.consecutive_failures"),
		},
	}
}
