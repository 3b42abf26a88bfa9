package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/nats-io/nkeys"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8080
	DefaultMaxFileBytes = 10 * 1024 * 1024
	DefaultMaxBodyBytes = 64 * 1024 * 1024
	DefaultExecTimeout  = 10 * time.Second
	DefaultKillGrace    = time.Second
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LimitsConfig struct {
	// MaxFileBytes bounds both reads and writes.
	MaxFileBytes int64 `mapstructure:"max_file_bytes"`
	// MaxBodyBytes bounds the raw POST body before form decoding.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type ExecConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	KillGrace time.Duration `mapstructure:"kill_grace"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type NATSConfig struct {
	Url    string `mapstructure:"url"`
	Nkey   string `mapstructure:"nkey"`
	JwtB64 string `mapstructure:"b64_jwt"`
}

// Config is built once by Load and treated as read-only afterwards.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Exec    ExecConfig    `mapstructure:"exec"`
	Logging LoggingConfig `mapstructure:"logging"`
	NATS    NATSConfig    `mapstructure:"nats"`
}

func init() {
	// report validation errors with the config file keys
	validation.ErrorTag = "mapstructure"
}

// Default returns the configuration used when no file, env or flag overrides
// anything.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Limits: LimitsConfig{MaxFileBytes: DefaultMaxFileBytes, MaxBodyBytes: DefaultMaxBodyBytes},
		Exec:   ExecConfig{Timeout: DefaultExecTimeout, KillGrace: DefaultKillGrace},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
	}
}

// Load reads defaults, an optional YAML file, PROBE_* environment variables
// and, when flags is non-nil, the --host and --port flags, in that order of
// precedence. An explicit file that cannot be read is an error; a missing
// probe.yaml in the working directory is not.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("limits.max_file_bytes", def.Limits.MaxFileBytes)
	v.SetDefault("limits.max_body_bytes", def.Limits.MaxBodyBytes)
	v.SetDefault("exec.timeout", def.Exec.Timeout)
	v.SetDefault("exec.kill_grace", def.Exec.KillGrace)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.nkey", "")
	v.SetDefault("nats.b64_jwt", "")

	v.SetEnvPrefix("PROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// workload environment variables injected by nex
	_ = v.BindEnv("nats.url", "PROBE_NATS_URL", "NEX_WORKLOAD_NATS_URL")
	_ = v.BindEnv("nats.nkey", "PROBE_NATS_NKEY", "NEX_WORKLOAD_NATS_NKEY")
	_ = v.BindEnv("nats.b64_jwt", "PROBE_NATS_B64_JWT", "NEX_WORKLOAD_NATS_B64_JWT")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("probe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if flags != nil {
		for key, name := range map[string]string{"server.host": "host", "server.port": "port"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.NATS.Nkey = strings.TrimSpace(cfg.NATS.Nkey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Addr is the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Limits),
		validation.Field(&c.Exec),
		validation.Field(&c.Logging),
		validation.Field(&c.NATS),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Host, validation.Required, is.Host),
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

func (l LimitsConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.MaxFileBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&l.MaxBodyBytes, validation.Required, validation.Min(l.MaxFileBytes)),
	)
}

func (e ExecConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Timeout, validation.Required, validation.By(positiveDuration)),
		validation.Field(&e.KillGrace, validation.Required, validation.By(positiveDuration)),
	)
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
		validation.Field(&l.Format, validation.Required, validation.In(LogFormatText, LogFormatJSON)),
	)
}

func (n NATSConfig) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Url, validation.By(validateNatsUrl)),
		validation.Field(&n.Nkey,
			validation.When(n.JwtB64 != "", validation.Required.Error("is required when a JWT is set")),
			validation.By(validateSeed),
		),
		validation.Field(&n.JwtB64,
			validation.When(n.Nkey != "", validation.Required.Error("is required when an nkey is set")),
			is.Base64,
		),
	)
}

// Enabled reports whether the NATS micro service should be started.
func (n NATSConfig) Enabled() bool {
	return n.Url != ""
}

// Jwt returns the decoded user JWT, or "" when none is configured.
func (n NATSConfig) Jwt() (string, error) {
	if n.JwtB64 == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(n.JwtB64)
	if err != nil {
		return "", fmt.Errorf("nats jwt is invalid base64: %s", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func positiveDuration(value interface{}) error {
	d, ok := value.(time.Duration)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a duration")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be greater than zero")
	}
	return nil
}

func validateNatsUrl(value interface{}) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}

	// nats.go accepts a comma separated server list
	for _, server := range strings.Split(raw, ",") {
		u, err := url.Parse(strings.TrimSpace(server))
		if err != nil {
			return validation.NewError("validation_invalid_url", "must be a valid URL")
		}
		switch u.Scheme {
		case "nats", "tls", "ws", "wss":
		default:
			return validation.NewError("validation_invalid_scheme", "URL must use nats, tls, ws or wss scheme")
		}
		if u.Host == "" {
			return validation.NewError("validation_missing_host", "URL must have a host")
		}
	}
	return nil
}

func validateSeed(value interface{}) error {
	seed, _ := value.(string)
	if seed == "" {
		return nil
	}

	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return validation.NewError("validation_invalid_nkey", "must be a valid nkey seed")
	}
	defer kp.Wipe()

	pub, err := kp.PublicKey()
	if err != nil || !nkeys.IsValidPublicUserKey(pub) {
		return validation.NewError("validation_invalid_nkey", "must be a user nkey seed")
	}
	return nil
}
