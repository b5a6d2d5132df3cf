// cmd/drill/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"

	"printshop/internal/clients"
	"printshop/internal/drill"
	"printshop/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	shutdown, err := telemetry.Setup(ctx, "printshop-drill", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer shutdown(context.Background())

	concurrency, err := strconv.Atoi(getEnv("DRILL_CONCURRENCY", "20"))
	if err != nil || concurrency < 2 {
		log.Fatalf("DRILL_CONCURRENCY must be an integer of at least 2")
	}

	anon := clients.NewClient(getEnv("DRILL_BASE_URL", "http://localhost:8080"), nil)
	owner, err := anon.Login(ctx, getEnv("DRILL_OWNER_USERNAME", "owner"), os.Getenv("DRILL_OWNER_PASSWORD"))
	if err != nil {
		log.Fatalf("Failed to log in as owner: %v", err)
	}

	engine := drill.NewEngine(logger)
	engine.RegisterExperiments(drill.Env{
		Anonymous:   anon,
		Owner:       owner,
		Branch:      getEnv("DRILL_BRANCH", "drill"),
		Concurrency: concurrency,
	})

	if err := engine.Execute(ctx, "settlement abuse drill"); err != nil {
		logger.Error("drill failed", "error", err)
		shutdown(context.Background())
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
