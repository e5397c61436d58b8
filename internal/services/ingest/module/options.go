package module

import (
	"errors"
	"time"

	"rplace/internal/platform/config"
	perr "rplace/internal/platform/errors"
	"rplace/internal/services/ingest/repo"
	"rplace/internal/services/ingest/service"
	"rplace/internal/services/ingest/source"

	"github.com/go-playground/validator/v10"
)

// Options holds configuration options for the ingest service
type Options struct {
	BatchSize        int           `validate:"gte=1,lte=1000000"`
	ProgressEvery    int           `validate:"gte=1"`
	StartupTimeout   time.Duration `validate:"gte=0"`
	FlushTimeout     time.Duration `validate:"gte=0"`
	StatementTimeout time.Duration `validate:"gte=0"`
	RunLedger        bool
	Mirror           bool
	MirrorTable      string `validate:"required_if=Mirror true"`
	Compression      string `validate:"oneof=auto none gzip zstd"`
}

// FromConfig reads the ingest options from config with CORE_INGEST_ prefix
func FromConfig(cfg config.Conf) Options {
	in := cfg.Prefix("CORE_INGEST_")
	return Options{
		BatchSize:        in.MayInt("BATCH_SIZE", service.DefaultBatchSize),
		ProgressEvery:    in.MayInt("PROGRESS_EVERY", 1),
		StartupTimeout:   in.MayDuration("STARTUP_TIMEOUT", time.Minute),
		FlushTimeout:     in.MayDuration("FLUSH_TIMEOUT", 0),
		StatementTimeout: in.MayDuration("STATEMENT_TIMEOUT", 0),
		RunLedger:        in.MayBool("RUN_LEDGER", true),
		Mirror:           in.MayBool("MIRROR", true),
		MirrorTable:      in.MayString("MIRROR_TABLE", repo.DefaultMirrorTable),
		Compression: in.MayEnum("COMPRESSION", source.CompressionAuto,
			source.CompressionAuto, source.CompressionNone, source.CompressionGzip, source.CompressionZstd),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks option ranges and reports the first bad field
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return perr.WithField(perr.InvalidArgf("ingest option %s fails %s=%s (got %v)",
			fe.Field(), fe.Tag(), fe.Param(), fe.Value()), fe.Field())
	}
	return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "ingest options")
}
