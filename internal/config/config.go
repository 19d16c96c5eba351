// Package config loads terminal configuration from a YAML file and
// POSSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	appctx "possync/internal/core/context"
	"possync/internal/core/numerator"
	"possync/internal/core/types"
	"possync/internal/domain/duplicate"
	"possync/internal/domain/sequence"
	"possync/internal/infrastructure/connectivity"
	"possync/internal/infrastructure/storage/postgres"
)

type Configuration struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Logging      LoggingConfig      `mapstructure:"logging" validate:"required"`
	Postgres     PostgresConfig     `mapstructure:"postgres" validate:"required"`
	Terminal     TerminalConfig     `mapstructure:"terminal" validate:"required"`
	Storage      StorageConfig      `mapstructure:"storage" validate:"required"`
	Sequence     SequenceConfig     `mapstructure:"sequence"`
	Duplicate    DuplicateConfig    `mapstructure:"duplicate"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Checkout     CheckoutConfig     `mapstructure:"checkout"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

type PostgresConfig struct {
	Host           string        `mapstructure:"host" validate:"required"`
	Port           int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	User           string        `mapstructure:"user" validate:"required"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname" validate:"required"`
	SSLMode        string        `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns       int32         `mapstructure:"max_conns" validate:"min=1"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// TerminalConfig is the identity used when a request does not name one.
type TerminalConfig struct {
	CompanyID  string `mapstructure:"company_id" validate:"required"`
	StoreID    string `mapstructure:"store_id" validate:"required"`
	TerminalID string `mapstructure:"terminal_id"`
	CashierID  string `mapstructure:"cashier_id"`
}

// StorageConfig locates the terminal's durable local state.
type StorageConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

type SequenceConfig struct {
	Floor       int64  `mapstructure:"floor" validate:"min=0"`
	MaxAttempts int    `mapstructure:"max_attempts" validate:"min=1,max=1000"`
	Prefix      string `mapstructure:"prefix"`
	IncludeDate bool   `mapstructure:"include_date"`
	PadWidth    int    `mapstructure:"pad_width" validate:"min=0,max=18"`
}

type DuplicatePolicyConfig struct {
	Window  time.Duration `mapstructure:"window" validate:"min=0"`
	Epsilon string        `mapstructure:"epsilon" validate:"omitempty,numeric"`
}

type DuplicateConfig struct {
	DuplicatePolicyConfig `mapstructure:",squash"`
	Overrides             map[string]DuplicatePolicyConfig `mapstructure:"overrides" validate:"dive"`
}

type ConnectivityConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

type CheckoutConfig struct {
	CompensationTimeout time.Duration `mapstructure:"compensation_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "possync")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "possync")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.connect_timeout", 5*time.Second)
	v.SetDefault("postgres.auto_migrate", false)

	v.SetDefault("terminal.company_id", "")
	v.SetDefault("terminal.store_id", "")
	v.SetDefault("terminal.terminal_id", "")
	v.SetDefault("terminal.cashier_id", "")

	v.SetDefault("storage.dir", "./data")

	fmtDefaults := numerator.DefaultConfig()
	v.SetDefault("sequence.floor", sequence.DefaultFloor)
	v.SetDefault("sequence.max_attempts", sequence.DefaultMaxAttempts)
	v.SetDefault("sequence.prefix", fmtDefaults.Prefix)
	v.SetDefault("sequence.include_date", fmtDefaults.IncludeDate)
	v.SetDefault("sequence.pad_width", fmtDefaults.PadWidth)

	v.SetDefault("duplicate.window", duplicate.DefaultWindow)
	v.SetDefault("duplicate.epsilon", duplicate.DefaultEpsilon.String())

	conn := connectivity.DefaultConfig()
	v.SetDefault("connectivity.interval", conn.Interval)
	v.SetDefault("connectivity.probe_timeout", conn.ProbeTimeout)

	v.SetDefault("checkout.compensation_timeout", 10*time.Second)
}

// NewConfig reads config.yaml from the usual locations, or from file when it
// is not empty. A missing file is not an error; defaults and environment
// variables still apply.
func NewConfig(file string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/possync")
	}

	v.SetEnvPrefix("POSSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c Configuration) Validate() error {
	return validator.New().Struct(c)
}

// URL builds a postgres:// connection URL for the pool and the migration driver.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.DBName,
	}
	if c.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.SSLMode)
	}
	return u.String()
}

// PoolConfig returns pool settings for this database.
func (c PostgresConfig) PoolConfig() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(c.URL())
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.ConnectTimeout > 0 {
		pc.ConnectTimeout = c.ConnectTimeout
	}
	return pc
}

// Identity is the default terminal context for requests.
func (c TerminalConfig) Identity() appctx.TerminalContext {
	return appctx.TerminalContext{
		CompanyID:  c.CompanyID,
		StoreID:    c.StoreID,
		TerminalID: c.TerminalID,
		CashierID:  c.CashierID,
	}
}

// ServiceConfig converts to the reservation service configuration.
func (c SequenceConfig) ServiceConfig() sequence.Config {
	return sequence.Config{
		Floor:       c.Floor,
		MaxAttempts: c.MaxAttempts,
		Format: numerator.Config{
			Prefix:      c.Prefix,
			IncludeDate: c.IncludeDate,
			PadWidth:    c.PadWidth,
		},
	}
}

func (p DuplicatePolicyConfig) policy() (duplicate.Policy, error) {
	out := duplicate.Policy{Window: p.Window}
	if p.Epsilon != "" {
		eps, err := types.NewMoneyFromString(p.Epsilon)
		if err != nil {
			return duplicate.Policy{}, fmt.Errorf("epsilon %q: %w", p.Epsilon, err)
		}
		out.Epsilon = eps
	}
	return out, nil
}

// DetectorConfig converts to the duplicate detector configuration.
func (c DuplicateConfig) DetectorConfig() (duplicate.Config, error) {
	def, err := c.policy()
	if err != nil {
		return duplicate.Config{}, err
	}
	out := duplicate.Config{Default: def, Overrides: make(map[string]duplicate.Policy, len(c.Overrides))}
	for company, o := range c.Overrides {
		p, err := o.policy()
		if err != nil {
			return duplicate.Config{}, fmt.Errorf("duplicate override for %s: %w", company, err)
		}
		out.Overrides[company] = p
	}
	return out, nil
}

// MonitorConfig converts to the connectivity monitor configuration.
func (c ConnectivityConfig) MonitorConfig() connectivity.Config {
	return connectivity.Config{Interval: c.Interval, ProbeTimeout: c.ProbeTimeout}
}
