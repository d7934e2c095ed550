package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.BookingLocation.String() != "UTC" {
		t.Fatalf("BookingLocation = %q", cfg.BookingLocation)
	}
	if cfg.BookingLockTimeout != 5*time.Second {
		t.Fatalf("BookingLockTimeout = %s", cfg.BookingLockTimeout)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if cfg.GRPCRequestTimeout != 10*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("timeouts = %s / %s", cfg.GRPCRequestTimeout, cfg.ShutdownTimeout)
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("SCHEDULA_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("SCHEDULA_STORE_DRIVER", " Memory ")
	t.Setenv("SCHEDULA_BOOKING_TIMEZONE", "Europe/Warsaw")
	t.Setenv("SCHEDULA_BOOKING_LOCK_TIMEOUT", "250ms")
	t.Setenv("SCHEDULA_METRICS_ADDR", "off")
	t.Setenv("SCHEDULA_DATABASE_MAX_OPEN_CONNS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.BookingLocation.String() != "Europe/Warsaw" {
		t.Fatalf("BookingLocation = %q", cfg.BookingLocation)
	}
	if cfg.BookingLockTimeout != 250*time.Millisecond {
		t.Fatalf("BookingLockTimeout = %s", cfg.BookingLockTimeout)
	}
	if cfg.MetricsAddr != "" {
		t.Fatalf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if cfg.DBMaxOpenConns != 7 {
		t.Fatalf("DBMaxOpenConns = %d", cfg.DBMaxOpenConns)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		value   string
		wantErr string
	}{
		{name: "unknown timezone", env: "SCHEDULA_BOOKING_TIMEZONE", value: "Mars/Olympus", wantErr: "booking.timezone"},
		{name: "bad lock timeout", env: "SCHEDULA_BOOKING_LOCK_TIMEOUT", value: "soon", wantErr: "booking.lock_timeout"},
		{name: "zero lock timeout", env: "SCHEDULA_BOOKING_LOCK_TIMEOUT", value: "0s", wantErr: "booking.lock_timeout"},
		{name: "bad request timeout", env: "SCHEDULA_GRPC_REQUEST_TIMEOUT", value: "10", wantErr: "grpc.request_timeout"},
		{name: "unknown store driver", env: "SCHEDULA_STORE_DRIVER", value: "sqlite", wantErr: "store.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
