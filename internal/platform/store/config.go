package store

import (
	"errors"
	"time"

	perr "rplace/internal/platform/errors"

	"github.com/go-playground/validator/v10"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG PGConfig
	CH CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string `validate:"required_if=Enabled true"`
	MaxConns    int32  `validate:"gte=0"`
	LogSQL      bool
	SlowQueryMs int `validate:"gte=0"`

	// boot knobs, zero picks the defaults in openers.go
	ConnectRetries int           `validate:"gte=0,lte=100"`
	PingTimeout    time.Duration `validate:"gte=0"`
}

// CHConfig configures clickhouse connectivity
type CHConfig struct {
	Enabled bool
	URL     string `validate:"required_if=Enabled true"`

	// ClientName and ClientTag show up in system.query_log
	ClientName string
	ClientTag  string

	// boot knobs, zero picks the defaults in openers.go
	ConnectRetries int           `validate:"gte=0,lte=100"`
	PingTimeout    time.Duration `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config before any connection is attempted
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			return perr.WithField(
				perr.Newf(perr.ErrorCodeInvalidArgument, "store config: %s failed %q", f.Namespace(), f.Tag()),
				f.Field(),
			)
		}
		return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "store config")
	}
	return nil
}
