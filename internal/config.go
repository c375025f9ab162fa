package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true" validate:"gt=0,lte=65535"`

	// DebugPort exposes the raw database inspector when the log level is
	// debug. Zero disables it.
	DebugPort int `env:"DEBUG_PORT" validate:"gte=0,lte=65535"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true" validate:"min=16"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true" validate:"gt=0"`

	BufferSize           int `env:"BUFFER_SIZE,required=true" validate:"gt=0"`
	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,required=true" validate:"gt=0"`

	LimitMessages    *int `env:"LIMIT_MESSAGES"`
	MaxContentLength int  `env:"MAX_CONTENT_LENGTH,required=true" validate:"gt=0"`

	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true" validate:"gt=0"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,required=true" validate:"gt=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true" validate:"gt=0"`
	LatencyThreshold     time.Duration `env:"LATENCY_THRESHOLD,required=true" validate:"gt=0"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,required=true" validate:"gte=0"`
}

// Validate applies the range rules on top of the presence checks the env
// unmarshalling already did.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
