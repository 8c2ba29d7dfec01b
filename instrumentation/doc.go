// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server.
//
// The package is built around a single Instrumentation value that owns the
// meter and tracer providers and a Metrics holder with pre-created
// instruments. When Enabled is false, no-op providers are used so the
// instrumented code paths carry zero overhead.
//
// Usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//	    ServiceName:    "oauthcore",
//	    ServiceVersion: "1.0.0",
//	    Enabled:        true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	store := memory.New()
//	store.SetInstrumentation(inst)
//
// Storage backends report their entry counts through observable gauges
// registered via RegisterStorageSizeCallbacks, which gives real-time
// visibility into storage growth for capacity planning and abuse detection.
package instrumentation
