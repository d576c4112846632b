package main

import (
	"medibook/internal/server"
	"medibook/internal/storage"
	"medibook/pkg/app"
	"medibook/pkg/config"
	"medibook/pkg/metrics"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Connect()

	cfg.Log.Info("Starting Bookings service")
	backend, err := storage.Open(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to open storage backend", "error", err)
	}

	reg := server.NewRegistry()
	components, err := server.Bookings(cfg, backend, metrics.NewBookingMetrics(reg), reg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize booking services", "error", err)
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(reg, components.Handlers...)
	serverApp.OnShutdown(components.Stoppers...)
	serverApp.Run()
}
