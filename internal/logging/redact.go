// internal/logging/redact.go
package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redactedToken = "[REDACTED]"
	patternToken  = "[REDACTED:pattern]"
)

// Secret creates a zap field for a config.Secret. Only the value length is
// logged.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString creates a zap field carrying the value's length in place of
// the value.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// MaskedSerial creates a zap field with a masked device serial. Use when a
// serial must appear in a log line regardless of encoder config.
func MaskedSerial(key, serial string) zap.Field {
	return zap.String(key, maskSerial(serial))
}

// serialKeys are field names treated as device serials when mask_serials is
// on.
var serialKeys = map[string]bool{
	"serial":        true,
	"serial_number": true,
	"device_serial": true,
}

// maskSerial keeps the trailing 3 characters of a serial and masks the rest.
// Short values are masked entirely.
func maskSerial(val string) string {
	const visible = 3
	runes := []rune(val)
	if len(runes) <= visible {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visible) + string(runes[len(runes)-visible:])
}

// RedactingEncoder wraps a zapcore.Encoder and rewrites sensitive fields
// before they reach any output.
type RedactingEncoder struct {
	zapcore.Encoder
	keys     map[string]bool
	patterns []*regexp.Regexp
	serials  bool
}

// NewRedactingEncoder wraps base with the redaction rules in cfg. Patterns
// that fail to compile or exceed the length cap are rejected.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}

	keys := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		keys[strings.ToLower(f)] = true
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		if len(p) > maxRedactPattern {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxRedactPattern, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q does not compile: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &RedactingEncoder{
		Encoder:  base,
		keys:     keys,
		patterns: patterns,
		serials:  cfg.MaskSerials,
	}, nil
}

func (e *RedactingEncoder) redactKey(key string) bool {
	return e.keys[strings.ToLower(key)]
}

func (e *RedactingEncoder) maskKey(key string) bool {
	return e.serials && serialKeys[strings.ToLower(key)]
}

// EncodeEntry redacts the per-entry fields before delegating. The embedded
// encoder adds those fields through its own internals, so the Add* overrides
// below never see them; only fields attached via With go through Add*.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if len(e.keys) == 0 && len(e.patterns) == 0 && !e.serials {
		return e.Encoder.EncodeEntry(ent, fields)
	}

	redacted := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		redacted[i] = e.redactField(f)
	}
	return e.Encoder.EncodeEntry(ent, redacted)
}

func (e *RedactingEncoder) redactField(f zapcore.Field) zapcore.Field {
	switch {
	case e.redactKey(f.Key):
		return zap.String(f.Key, redactedToken)
	case e.maskKey(f.Key):
		switch f.Type {
		case zapcore.StringType:
			return zap.String(f.Key, maskSerial(f.String))
		case zapcore.ByteStringType:
			if b, ok := f.Interface.([]byte); ok {
				return zap.String(f.Key, maskSerial(string(b)))
			}
		}
	case f.Type == zapcore.StringType:
		for _, re := range e.patterns {
			if re.MatchString(f.String) {
				return zap.String(f.Key, patternToken)
			}
		}
	}
	return f
}

// AddString redacts by field name, masks serial fields, then scans the value
// against the configured patterns.
func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.redactKey(key):
		val = redactedToken
	case e.maskKey(key):
		val = maskSerial(val)
	default:
		for _, re := range e.patterns {
			if re.MatchString(val) {
				val = patternToken
				break
			}
		}
	}
	e.Encoder.AddString(key, val)
}

// AddByteString redacts by field name and masks serial fields.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	switch {
	case e.redactKey(key):
		val = []byte(redactedToken)
	case e.maskKey(key):
		val = []byte(maskSerial(string(val)))
	}
	e.Encoder.AddByteString(key, val)
}

// AddBinary redacts by field name.
func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.redactKey(key) {
		e.Encoder.AddBinary(key, []byte(redactedToken))
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected replaces the whole reflected value when the key is sensitive.
// Structured values that need field-level treatment should go through
// zap.Object with an explicit marshaler instead.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.redactKey(key) {
		e.Encoder.AddString(key, redactedToken)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// AddArray replaces the whole array when the key is sensitive.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.redactKey(key) {
		e.Encoder.AddString(key, redactedToken)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// AddObject replaces the whole object when the key is sensitive.
func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.redactKey(key) {
		e.Encoder.AddString(key, redactedToken)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone copies the encoder. Rule state is immutable after construction and
// shared between clones.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:  e.Encoder.Clone(),
		keys:     e.keys,
		patterns: e.patterns,
		serials:  e.serials,
	}
}
