package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "default config",
			config: Config{
				Enabled: false,
			},
			wantErr: false,
		},
		{
			name: "with service name and version",
			config: Config{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
			wantErr: false,
		},
		{
			name: "empty service name gets default",
			config: Config{
				Enabled:        true,
				ServiceName:    "",
				ServiceVersion: "",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			if inst == nil {
				t.Fatal("New() returned nil instrumentation")
			}

			if inst.Meter("server") == nil {
				t.Error("Meter('server') returned nil")
			}
			if inst.Tracer("storage") == nil {
				t.Error("Tracer('storage') returned nil")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.TracerProvider() == nil {
				t.Error("TracerProvider() returned nil")
			}
			if inst.MeterProvider() == nil {
				t.Error("MeterProvider() returned nil")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := inst.Shutdown(ctx); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}

			// Shutdown must be idempotent
			if err := inst.Shutdown(ctx); err != nil {
				t.Errorf("Second Shutdown() error = %v", err)
			}
		})
	}
}

func TestInstrumentation_NoOpRecording(t *testing.T) {
	inst, err := New(Config{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// All recording helpers must be safe no-ops when disabled
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordTokenIssued(ctx, "authorization_code", "test-client")
	m.RecordTokenRefresh(ctx, "test-client", true)
	m.RecordTokenRevocation(ctx, "test-client", "refresh_token")
	m.RecordCodeIssued(ctx, "test-client")
	m.RecordCodeExchange(ctx, "test-client", "S256")
	m.RecordClientRegistration(ctx, "confidential")
	m.RecordIntrospection(ctx, true)
	m.RecordPKCEValidationFailed(ctx, "S256")
	m.RecordCodeReplayDetected(ctx)
	m.RecordRefreshReplayDetected(ctx)
	m.RecordStorageOperation(ctx, "save_client", "success", 1.5)
	m.RecordAuditEvent(ctx, "token_issued")
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 1 },
		func() int64 { return 2 },
		func() int64 { return 3 },
		func() int64 { return 4 },
	)
	if err != nil {
		t.Errorf("RegisterStorageSizeCallbacks() error = %v", err)
	}

	// Nil callbacks are allowed
	err = inst.RegisterStorageSizeCallbacks(nil, nil, nil, nil)
	if err != nil {
		t.Errorf("RegisterStorageSizeCallbacks(nil...) error = %v", err)
	}
}
