package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chess-vn/slduel/internal/auth"
	"github.com/chess-vn/slduel/internal/duel"
	"github.com/chess-vn/slduel/internal/hub"
	"github.com/chess-vn/slduel/internal/offline"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	Port              string
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	LogLevel    string
	Development bool

	JwtSecret      string
	JwtIssuer      string
	SocketTokenTTL time.Duration

	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	RoomHistorySize   int

	DuelTimeout   time.Duration
	InviteTTL     time.Duration
	WaitingWindow time.Duration

	QueueTTL        time.Duration
	QueueMaxBacklog int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	StorageBackend    string
	AwsRegion         string
	CognitoUserPoolId string
	PushEnabled       bool

	AsyncDispatch   bool
	DispatchWorkers int

	TokenRateLimit float64
	TokenRateBurst int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "7202")
	v.SetDefault("server.idleTimeout", "2m")
	v.SetDefault("server.readHeaderTimeout", "10s")
	v.SetDefault("server.shutdownTimeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("jwt.issuer", "slduel")
	v.SetDefault("jwt.socketTokenTTL", auth.DefaultSocketTokenTTL.String())

	v.SetDefault("hub.heartbeatInterval", hub.DefaultHeartbeatInterval.String())
	v.SetDefault("hub.roomHistorySize", hub.DefaultRoomHistorySize)

	v.SetDefault("duel.timeout", duel.DefaultTimeout.String())
	v.SetDefault("duel.inviteTTL", duel.DefaultInviteTTL.String())
	v.SetDefault("duel.waitingWindow", duel.DefaultWaitingWindow.String())
	v.SetDefault("duel.sweepInterval", duel.DefaultSweepInterval.String())

	v.SetDefault("queue.ttl", offline.DefaultTTL.String())
	v.SetDefault("queue.maxBacklog", offline.DefaultMaxBacklog)
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("aws.region", "ap-southeast-2")
	v.SetDefault("push.enabled", false)

	v.SetDefault("dispatch.async", true)
	v.SetDefault("dispatch.workers", 4)

	v.SetDefault("ratelimit.tokens", 1.0)
	v.SetDefault("ratelimit.burst", 5)
}

// NewConfig reads configs/server/config.yaml when present. Every key can be
// overridden from the environment, e.g. DUEL_TIMEOUT or JWT_SECRET.
func NewConfig() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs/server")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return configFrom(v)
}

func configFrom(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:              v.GetString("server.port"),
		IdleTimeout:       v.GetDuration("server.idleTimeout"),
		ReadHeaderTimeout: v.GetDuration("server.readHeaderTimeout"),
		ShutdownTimeout:   v.GetDuration("server.shutdownTimeout"),
		LogLevel:          v.GetString("log.level"),
		Development:       v.GetBool("log.development"),
		JwtSecret:         v.GetString("jwt.secret"),
		JwtIssuer:         v.GetString("jwt.issuer"),
		SocketTokenTTL:    v.GetDuration("jwt.socketTokenTTL"),
		HeartbeatInterval: v.GetDuration("hub.heartbeatInterval"),
		RoomHistorySize:   v.GetInt("hub.roomHistorySize"),
		DuelTimeout:       v.GetDuration("duel.timeout"),
		InviteTTL:         v.GetDuration("duel.inviteTTL"),
		WaitingWindow:     v.GetDuration("duel.waitingWindow"),
		SweepInterval:     v.GetDuration("duel.sweepInterval"),
		QueueTTL:          v.GetDuration("queue.ttl"),
		QueueMaxBacklog:   v.GetInt("queue.maxBacklog"),
		RedisAddr:         v.GetString("redis.addr"),
		RedisPassword:     v.GetString("redis.password"),
		RedisDB:           v.GetInt("redis.db"),
		StorageBackend:    strings.ToLower(v.GetString("storage.backend")),
		AwsRegion:         v.GetString("aws.region"),
		CognitoUserPoolId: v.GetString("cognito.userPoolId"),
		PushEnabled:       v.GetBool("push.enabled"),
		AsyncDispatch:     v.GetBool("dispatch.async"),
		DispatchWorkers:   v.GetInt("dispatch.workers"),
		TokenRateLimit:    v.GetFloat64("ratelimit.tokens"),
		TokenRateBurst:    v.GetInt("ratelimit.burst"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.JwtSecret == "" {
		return errors.New("jwt.secret is required")
	}
	switch cfg.StorageBackend {
	case BackendMemory, BackendDynamoDB:
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if cfg.PushEnabled && cfg.StorageBackend != BackendDynamoDB {
		return errors.New("push notifications need the dynamodb storage backend")
	}
	return nil
}

func (cfg Config) duelConfig() duel.Config {
	return duel.Config{
		Timeout:       cfg.DuelTimeout,
		InviteTTL:     cfg.InviteTTL,
		WaitingWindow: cfg.WaitingWindow,
	}
}

func (cfg Config) queueOptions() offline.Options {
	return offline.Options{
		TTL:        cfg.QueueTTL,
		MaxBacklog: cfg.QueueMaxBacklog,
	}
}
