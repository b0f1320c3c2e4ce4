// internal/logging/testing.go
package logging

import (
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger wraps Logger around an observer core so tests can assert on
// what was logged.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger recording every entry down to TraceLevel.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{base: zap.New(core), cfg: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns all recorded entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns recorded entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// Reset drops all recorded entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// entriesAt returns recorded entries at level whose message contains fragment.
func (t *TestLogger) entriesAt(level zapcore.Level, fragment string) []observer.LoggedEntry {
	var out []observer.LoggedEntry
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, fragment) {
			out = append(out, entry)
		}
	}
	return out
}

// AssertLogged fails unless an entry at level containing msgContains was
// recorded.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if len(t.entriesAt(level, msgContains)) == 0 {
		tb.Errorf("no %v entry containing %q, recorded: %+v", level, msgContains, t.observed.All())
	}
}

// AssertNotLogged fails if an entry at level containing msgContains was
// recorded.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if hits := t.entriesAt(level, msgContains); len(hits) > 0 {
		tb.Errorf("found %d %v entries containing %q", len(hits), level, msgContains)
	}
}

// AssertField fails unless an entry matching msg carries a field with the
// given key and value. Values compare as ContextMap materializes them, so
// integer fields want int64.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		if got, ok := entry.ContextMap()[key]; ok && reflect.DeepEqual(got, expected) {
			return
		}
	}
	tb.Errorf("no entry for message %q carries field %q=%v", msg, key, expected)
}

// AssertTraceCorrelation fails unless an entry matching msg carries a
// trace_id field.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	t.assertFieldPresent(tb, msg, "trace_id")
}

// AssertRunCorrelation fails unless an entry matching msg carries a run.id
// field.
func (t *TestLogger) AssertRunCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	t.assertFieldPresent(tb, msg, "run.id")
}

func (t *TestLogger) assertFieldPresent(tb testing.TB, msg, key string) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		for _, field := range entry.Context {
			if field.Key == key {
				return
			}
		}
	}
	tb.Errorf("message %q missing %s field", msg, key)
}

// AssertNoSecrets fails if any recorded entry leaks sensitive data. The scan
// uses the default redaction rules, so it also catches values that bypassed
// the encoder entirely.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()

	rules := NewDefaultConfig().Redaction
	patterns := make([]*regexp.Regexp, 0, len(rules.Patterns))
	for _, p := range rules.Patterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}

	for _, entry := range t.observed.All() {
		for _, re := range patterns {
			if re.MatchString(entry.Message) {
				tb.Errorf("log message leaks a sensitive value: %q", entry.Message)
			}
		}

		for _, field := range entry.Context {
			if field.Type != zapcore.StringType {
				continue
			}
			key := strings.ToLower(field.Key)
			for _, sensitive := range rules.Fields {
				if !strings.Contains(key, sensitive) {
					continue
				}
				// "[REDACTED", not redactedToken: length-carrying variants
				// like [REDACTED:8] count as redacted too.
				if field.String != "" && !strings.HasPrefix(field.String, "[REDACTED") {
					tb.Errorf("field %q should be redacted, got %q", field.Key, field.String)
				}
			}
			for _, re := range patterns {
				if re.MatchString(field.String) {
					tb.Errorf("field %q leaks a sensitive value: %q", field.Key, field.String)
				}
			}
		}
	}
}
