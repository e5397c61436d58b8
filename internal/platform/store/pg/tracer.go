package pg

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"rplace/internal/platform/logger"

	"github.com/rs/zerolog"
)

// QueryEvent describes one finished statement
type QueryEvent struct {
	SQL       string
	Args      []any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer receives an event per statement
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// maxLoggedElems caps how many slice elements are printed per bulk argument
const maxLoggedElems = 4

// Tracer returns a tracer that always prints SQL when LogSQL is on,
// independent of the process-wide root level
func Tracer(root logger.Logger) QueryTracer {
	ll := root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger()
	return &zlTracer{log: ll}
}

type zlTracer struct{ log logger.Logger }

func (z *zlTracer) OnQuery(_ context.Context, ev QueryEvent) {
	elapsedMs := float64(ev.ElapsedUS) / 1000.0
	evt := z.log.Info()
	if ev.Slow {
		evt = z.log.Warn()
	}

	evt.Float64("elapsed_ms", elapsedMs).
		Bool("slow", ev.Slow).
		Str("sql", compact(ev.SQL)).
		Strs("args", summarize(ev.Args)).
		Err(ev.Err).
		Msg("pg query")
}

// summarize renders args for logging. Flush statements bind arrays of up to
// a full batch, so slices are cut to their length and first few elements
func summarize(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		v := reflect.ValueOf(a)
		if a == nil || v.Kind() != reflect.Slice || v.Type().Elem().Kind() == reflect.Uint8 {
			out[i] = fmt.Sprint(a)
			continue
		}
		n := v.Len()
		var b strings.Builder
		fmt.Fprintf(&b, "len=%d [", n)
		for j := 0; j < n && j < maxLoggedElems; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprint(&b, v.Index(j).Interface())
		}
		if n > maxLoggedElems {
			b.WriteString(" ...")
		}
		b.WriteByte(']')
		out[i] = b.String()
	}
	return out
}

func compact(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' || r == ' ' {
			if !space {
				out = append(out, ' ')
				space = true
			}
			continue
		}
		space = false
		out = append(out, r)
	}
	return string(out)
}
