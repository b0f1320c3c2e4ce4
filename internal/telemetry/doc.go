// Package telemetry provides OpenTelemetry instrumentation for fleetrecond.
//
// # Overview
//
// One Telemetry instance owns the OTLP providers for traces, metrics, and
// logs. Everything exports to a single collector endpoint over gRPC by
// default, or http/protobuf for HTTPS collectors. The log provider backs the
// zap OTEL bridge in internal/logging, so reconciliation runs correlate
// across all three signals through the shared resource attributes.
//
// # Usage
//
//	cfg := telemetry.NewDefaultConfig()
//	cfg.Enabled = true
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("fleetrecon.pipeline")
//	ctx, span := tracer.Start(ctx, "pipeline.run")
//	defer span.End()
//
//	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: "grpc"
//	  service_name: "fleetrecond"
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//	  logs:
//	    enabled: true
//
// Insecure export only validates against loopback endpoints; remote
// collectors require TLS, with tls_skip_verify available for internal CAs.
//
// # Degradation
//
// Provider construction failures never propagate out of New. The instance
// marks itself Degraded, the failed signal falls back to a no-op
// implementation, and the daemon keeps reconciling. Check Degraded in
// health surfaces when collector connectivity matters.
//
// # Testing
//
// NewTestTelemetry swaps the OTLP exporters for an in-memory span recorder
// and a manual metric reader:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("pipeline").Start(ctx, "pipeline.run")
//	span.End()
//	tt.RequireSpan(t, "pipeline.run")
package telemetry
