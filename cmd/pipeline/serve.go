package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start the HTTP server exposing run triggers, run status, settings and source management.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	sharedSecret := os.Getenv("PIPELINE_SHARED_SECRET")
	if sharedSecret == "" {
		return fmt.Errorf("PIPELINE_SHARED_SECRET environment variable is required")
	}

	port := servePort
	if port == 0 {
		port = 8080
		if v := os.Getenv("PORT"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid PORT value %q", v)
			}
			port = n
		}
	}

	app, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	srv, err := server.New(server.Config{
		Port:         port,
		SharedSecret: sharedSecret,
		JWTSecret:    os.Getenv("JWT_SECRET"),
	}, app.store, app.coordinator, app.gateway, app.log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}
