// Command medibook serves the availability and booking APIs from one
// process. It is the only layout in which the memory backend is shared.
package main

import (
	"medibook/internal/server"
	"medibook/internal/storage"
	"medibook/pkg/app"
	"medibook/pkg/config"
	"medibook/pkg/metrics"
)

const ServiceName = "medibook"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Connect()

	cfg.Log.Info("Starting medibook")
	backend, err := storage.Open(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to open storage backend", "error", err)
	}

	reg := server.NewRegistry()
	m := metrics.NewBookingMetrics(reg)

	availability := server.Availability(cfg, backend, m)
	bookings, err := server.Bookings(cfg, backend, m, reg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize booking services", "error", err)
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(reg, append(availability.Handlers, bookings.Handlers...)...)
	serverApp.OnShutdown(bookings.Stoppers...)
	serverApp.Run()
}
