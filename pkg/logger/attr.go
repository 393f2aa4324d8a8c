package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". Nil errors yield an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func ExperimentID(id string) slog.Attr { return slog.String("experiment_id", id) }

func VariantID(id string) slog.Attr { return slog.String("variant_id", id) }

func ParticipantID(id string) slog.Attr { return slog.String("participant_id", id) }

func Metric(name string) slog.Attr { return slog.String("metric", name) }

// Flag records a flag name. Empty names yield an empty Attr.
func Flag(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("flag", name)
}

// Action records a lifecycle action in its text form.
func Action(action string) slog.Attr { return slog.String("action", action) }

func RequestID(id string) slog.Attr { return slog.String("request_id", id) }

func Component(name string) slog.Attr { return slog.String("component", name) }

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

func RetryCount(n int) slog.Attr { return slog.Int("retry_count", n) }

func Count(name string, n int) slog.Attr { return slog.Int(name, n) }
