package internal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"collab-hub/runtime"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Host           string `env:"HOST,default=localhost" validate:"required"`
	Port           int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	GrpcPort       int    `env:"GRPC_PORT,default=8081" validate:"min=1,max=65535"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	JwtSecret      string `env:"JWT_SECRET,required=true" validate:"min=16"`
	JwtIssuer      string `env:"JWT_ISSUER,default=collab-hub" validate:"required"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	OutboundQueueSize int           `env:"OUTBOUND_QUEUE_SIZE,default=64" validate:"min=1"`
	RelayBufferSize   int           `env:"RELAY_BUFFER_SIZE,default=1024" validate:"min=1"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT,default=60s" validate:"gt=0"`
	DeadTimeout       time.Duration `env:"DEAD_TIMEOUT,default=120s" validate:"gtfield=IdleTimeout"`
	TypingTimeout     time.Duration `env:"TYPING_TIMEOUT,default=3s" validate:"gt=0"`
	PingInterval      time.Duration `env:"PING_INTERVAL,default=30s" validate:"gt=0"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	MaxFrameBytes     int           `env:"MAX_FRAME_BYTES,default=65536" validate:"min=512"`
	MaxDecodeErrors   int           `env:"MAX_DECODE_ERRORS,default=3" validate:"min=1"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,default=5s" validate:"gt=0"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	BadgerFilepath   string `env:"BADGER_FILEPATH"`
	CensoredWordsDir string `env:"CENSORED_WORDS_DIR"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Load reads the optional .env files then the process environment.
// Variables already set in the environment win over .env values.
func Load(files ...string) (Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("unable to load %s: %w", file, err)
		}
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	config.LogLevel = strings.ToUpper(config.LogLevel)
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := CharacterRune(config.CharReplacement); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) GrpcAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GrpcPort)
}

// Origins splits ALLOWED_ORIGINS. An empty list accepts same-host origins only.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c Config) HubOptions() runtime.Options {
	return runtime.Options{
		OutboundQueueSize: c.OutboundQueueSize,
		RelayBufferSize:   c.RelayBufferSize,
		SinkTimeout:       c.SinkTimeout,
		IdleTimeout:       c.IdleTimeout,
		DeadTimeout:       c.DeadTimeout,
		TypingTimeout:     c.TypingTimeout,
		PingInterval:      c.PingInterval,
		MaxDecodeErrors:   c.MaxDecodeErrors,
		MetricInterval:    c.MetricInterval,
	}
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
