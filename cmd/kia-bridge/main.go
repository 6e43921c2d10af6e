package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/MarcusTaz/ha-kia-hyundai/internal/bridge"
	"github.com/MarcusTaz/ha-kia-hyundai/internal/config"
	"github.com/MarcusTaz/ha-kia-hyundai/internal/coordinator"
	"github.com/MarcusTaz/ha-kia-hyundai/internal/kiauvo"
	"github.com/MarcusTaz/ha-kia-hyundai/internal/rate"
	"github.com/MarcusTaz/ha-kia-hyundai/internal/server"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := rate.WrapHTTP(rate.Limits{
		PerMinute: cfg.Kia.RateLimitPerMinute,
		PerDay:    cfg.Kia.RateLimitPerDay,
	}, &http.Client{Timeout: 30 * time.Second})

	client, err := kiauvo.NewClient(kiauvo.Config{
		Username: cfg.Kia.Username,
		Password: cfg.Kia.Password,
		BaseURL:  cfg.Kia.BaseURL,
	}, kiauvo.WithHTTPClient(httpClient))
	if err != nil {
		logger.Fatal().Err(err).Msg("build account client")
	}

	if err := client.Login(ctx); err != nil {
		if errors.Is(err, kiauvo.ErrAuthentication) {
			logger.Fatal().Err(err).Msg("invalid account credentials")
		}
		logger.Fatal().Err(err).Msg("login failed")
	}

	vehicles, err := client.Vehicles(ctx)
	if err != nil {
		if errors.Is(err, kiauvo.ErrNoVehicles) {
			logger.Fatal().Msg("account has no vehicles")
		}
		logger.Fatal().Err(err).Msg("list vehicles")
	}

	coordinators := make([]*coordinator.Coordinator, 0, len(vehicles))
	for _, vehicle := range vehicles {
		coord, err := coordinator.New(client, vehicle, coordinator.Options{
			ScanInterval:     cfg.ScanInterval(),
			DebounceCooldown: cfg.DebounceCooldown(),
			Logger:           logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("vin", vehicle.VIN).Msg("build coordinator")
		}
		if err := coord.Start(ctx); err != nil {
			logger.Fatal().Err(err).Str("vin", vehicle.VIN).Msg("initial vehicle refresh failed")
		}
		logger.Info().Str("vin", vehicle.VIN).Str("name", vehicle.Name).Msg("vehicle online")
		coordinators = append(coordinators, coord)
	}

	publisher, err := bridge.DialMQTT(bridge.MQTTConfig{
		BrokerURL: cfg.MQTT.BrokerURL,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		ClientID:  cfg.MQTT.ClientID,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect mqtt")
	}

	entityBridge, err := bridge.New(bridge.Config{
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
	}, client, publisher, coordinators, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build bridge")
	}
	if err := entityBridge.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start bridge")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(bridge.NewMetricsCollector(coordinators))
	registry.MustRegister(rate.MetricsCollectors()...)

	httpServer := server.NewHTTPServer(cfg.HTTP.Addr, server.NewRouter(coordinators, registry))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http serve")
		}
	}()
	logger.Info().Str("addr", cfg.HTTP.Addr).Int("vehicles", len(coordinators)).Msg("bridge running")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	entityBridge.Shutdown()
	publisher.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
}
