// Package logging wraps zap with context correlation, secret redaction and
// an OpenTelemetry log bridge.
//
// # Overview
//
// Every Logger method takes a context and stamps the entry with whatever
// correlation the context carries: active span (trace_id, span_id), run
// (run.id, run.trigger), pipeline stage and HTTP request ID. A TraceLevel
// below Debug exists for wire data and per-row decisions. Output goes to
// stdout, to an OTLP collector through the otelzap bridge, or both.
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRun(ctx, &logging.Run{ID: runID, Trigger: "http"})
//	ctx = logging.WithStage(ctx, "merge")
//	logger.Info(ctx, "stage complete", zap.Duration("duration", d))
//
// produces
//
//	{
//	  "ts": "2026-03-12T10:15:30Z",
//	  "level": "info",
//	  "msg": "stage complete",
//	  "run.id": "f3b2...",
//	  "run.trigger": "http",
//	  "stage": "merge",
//	  "duration": "82ms"
//	}
//
// plus trace_id and span_id whenever a span is active.
//
// # Redaction
//
// The stdout encoder rewrites sensitive fields before they reach any output.
// Fields whose names match redaction.fields become [REDACTED]; string values
// matching redaction.patterns become [REDACTED:pattern]. With
// redaction.mask_serials on, fields named serial, serial_number or
// device_serial keep only their trailing 3 characters, so fleet runs can be
// debugged without spraying hardware identifiers into log storage. For
// one-off cases the Secret, RedactedString and MaskedSerial field
// constructors redact at the call site, independent of encoder config.
//
// # Sampling
//
// A malformed source file can carry tens of thousands of rows that each log
// a warning. Sampling keeps that survivable: entries below Error share a
// token bucket tuned by the Info rates (first 100 per tick, then 1 in 10),
// while Error and above always pass. Set Sampling.Enabled false when every
// entry matters more than volume.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "run complete", zap.String("run_id", id))
//	tl.AssertLogged(t, zapcore.InfoLevel, "run complete")
//	tl.AssertField(t, "run complete", "run_id", id)
//	tl.AssertNoSecrets(t)
//
// # Concurrency
//
// Logger is safe for concurrent use. Child loggers from With and Named are
// independent of their parent and siblings.
package logging
