package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

// EnvPrefix is prepended to every overridable config field's env tag.
const EnvPrefix = "SV2D_"

// Config is the daemon's top-level, already-decoded configuration. File
// syntax parsing is out of scope for this daemon; callers decode the
// config file themselves and pass the resulting Config here for env
// overrides and validation.
type Config struct {
	Mode string `env:"MODE"`

	StratumBindAddr  string        `env:"STRATUM_BIND_ADDR"`
	MaxConnections   int           `env:"MAX_CONNECTIONS"`
	ShutdownGrace    time.Duration `env:"SHUTDOWN_GRACE"`
	SendQueueSize    int           `env:"SEND_QUEUE_SIZE"`

	BitcoinRPCURL      string `env:"BITCOIN_RPC_URL"`
	BitcoinRPCUser     string `env:"BITCOIN_RPC_USER"`
	BitcoinRPCPassword string `env:"BITCOIN_RPC_PASSWORD"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	ManagementBindAddr string `env:"MANAGEMENT_BIND_ADDR"`
	JWTSecret          string `env:"JWT_SECRET"`
	RateLimitPerMinute float64 `env:"RATE_LIMIT_PER_MINUTE"`

	CoinbaseAddress string `env:"COINBASE_ADDRESS"`
}

// ApplyEnvOverrides walks cfg's fields and overrides any whose `env` tag
// names a set SV2D_-prefixed environment variable, using the field's type
// to decide how to parse the raw string.
func ApplyEnvOverrides(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(EnvPrefix + tag)
		if !ok {
			continue
		}

		fv := v.Field(i)
		if err := setField(fv, raw); err != nil {
			return fmt.Errorf("config: invalid value for %s%s: %w", EnvPrefix, tag, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		if fv.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			fv.Set(reflect.ValueOf(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}

// Validate checks invariants that must hold regardless of how Config was
// assembled (file + env overrides).
func (c *Config) Validate() error {
	if c.Mode == "" {
		return fmt.Errorf("config: mode is required")
	}
	if c.StratumBindAddr == "" {
		return fmt.Errorf("config: stratum_bind_addr is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: max_connections must be positive")
	}
	return nil
}
