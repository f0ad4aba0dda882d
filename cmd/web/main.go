package main

import (
	"fmt"
	"os"

	"github.com/genesis-labs/genesis-api/pkg/runtime/bootstrap"
	"github.com/genesis-labs/genesis-api/pkg/server"
	"github.com/genesis-labs/genesis-api/pkg/server/middleware"
	"github.com/genesis-labs/genesis-api/pkg/services/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	migrate bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the Genesis report API",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to a settings file (yaml, json or toml); GENESIS_* variables override it")
	rootCmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending schema migrations before serving")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	settings, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	app, err := bootstrap.Open(ctx, settings, bootstrap.Options{Migrate: migrate, Metrics: true})
	if err != nil {
		return err
	}
	defer app.Close()

	for _, def := range app.Reports.Definitions() {
		logger.Info().Msgf("Report type `%s` registered (%d charts)", def.Type, len(def.Charts))
	}

	api := server.NewWebAPI(logger, server.Config{
		Addr:            settings.Server.Addr(),
		ShutdownTimeout: settings.Server.ShutdownTimeout,
		Location:        app.Location,
		RateLimit: middleware.RateLimitConfig{
			RPS:   settings.Server.RateLimit.RPS,
			Burst: settings.Server.RateLimit.Burst,
		},
		Dependencies: server.Dependencies{
			Reports: app.Reports,
			Sensors: app.Sensors,
			Health:  app.Ping,
		},
	})

	return api.Start()
}
