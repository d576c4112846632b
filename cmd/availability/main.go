package main

import (
	"medibook/internal/server"
	"medibook/internal/storage"
	"medibook/pkg/app"
	"medibook/pkg/config"
	"medibook/pkg/metrics"
)

const ServiceName = "availability"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Connect()

	cfg.Log.Info("Starting Availability service")
	backend, err := storage.Open(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to open storage backend", "error", err)
	}

	reg := server.NewRegistry()
	components := server.Availability(cfg, backend, metrics.NewBookingMetrics(reg))

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(reg, components.Handlers...)
	serverApp.Run()
}
