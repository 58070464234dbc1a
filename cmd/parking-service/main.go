package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/config"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/httpapi"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/models"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/pricing"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/store"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/store/memory"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/store/postgres"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("parking-service")

	engine := pricing.NewEngine(map[string]int64{
		models.VehicleMotorcycle: cfg.RateMotorcycleCents,
		models.VehicleCar:        cfg.RateCarCents,
		models.VehicleTruck:      cfg.RateTruckCents,
	})

	var parkingStore store.ParkingStore
	if cfg.DatabaseURL == "" {
		log.Print("DB_DSN not set, using in-memory store")
		parkingStore = memory.NewStore(engine)
	} else {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		parkingStore = postgres.NewStore(pool, postgres.Options{Pricing: engine})
	}

	handler := httpapi.NewHandler(parkingStore)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		PlatePerMinute: cfg.PlateRateLimitPerMinute,
		PlateBurst:     cfg.PlateRateLimitBurst,
	})

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), "parking-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("parking-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
