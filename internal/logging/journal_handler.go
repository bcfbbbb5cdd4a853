package logging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry written by this process.
const SyslogIdentifier = "kbdlight"

// JournalHandler writes records to the systemd journal with every attribute
// as a separate structured field, so `journalctl MODULE=led` works.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string // from WithAttrs, already prefixed
	prefix string            // group path, "GROUP_SUB_"
	send   func(msg string, pri journal.Priority, fields map[string]string) error
}

// NewJournalHandler creates a journal handler gated by level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, send: journal.Send}
}

// Enabled reports whether the handler handles records at the given level.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends the record to the journal.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+2)
	for k, v := range h.fields {
		fields[k] = v
	}
	r.Attrs(func(attr slog.Attr) bool {
		addAttrToFields(fields, h.prefix, attr)
		return true
	})
	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	if !r.Time.IsZero() {
		fields["SYSLOG_TIMESTAMP"] = r.Time.Format(time.RFC3339Nano)
	}

	return h.send(r.Message, priorityFor(r.Level), fields)
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.fields = make(map[string]string, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		clone.fields[k] = v
	}
	for _, attr := range attrs {
		addAttrToFields(clone.fields, h.prefix, attr)
	}
	return &clone
}

// WithGroup returns a handler that prefixes later attributes with name.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + fieldName(name) + "_"
	return &clone
}

func priorityFor(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addAttrToFields flattens attr into fields under prefix.
func addAttrToFields(fields map[string]string, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		sub := prefix
		if attr.Key != "" {
			sub += fieldName(attr.Key) + "_"
		}
		for _, a := range attr.Value.Group() {
			addAttrToFields(fields, sub, a)
		}
		return
	}

	key := prefix + fieldName(attr.Key)
	v := attr.Value
	switch v.Kind() {
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(v.Bool())
	case slog.KindTime:
		fields[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok && err != nil {
			fields[key] = err.Error()
			return
		}
		fields[key] = v.String()
	default:
		fields[key] = v.String()
	}
}

// fieldName maps an attribute key to a valid journal field name: upper case
// letters, digits and underscores, not starting with an underscore.
func fieldName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	name = strings.TrimLeft(name, "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "F" + name
	}
	return name
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}

// stdoutIsJournal reports whether stdout is already connected to the journal,
// as it is for a systemd service with default StandardOutput.
func stdoutIsJournal() bool {
	ok, err := journal.StdoutIsJournalStream()
	return err == nil && ok
}
