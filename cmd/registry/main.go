// Command registry runs the participant registry.
//
// The registry stores accounts, issues tokens addressed to a service, and
// verifies tokens for the service they were issued to.
//
// # Configuration File
//
//	http_addr: ":8080"
//	metrics_addr: ":9080"
//	log:
//	  level: info
//	storage:
//	  backend: postgres
//	  postgres:
//	    host: localhost
//	    port: 5432
//	    user: registry
//	    database: registry
//	registry:
//	  token_secret: ""   # hex; generated at startup if empty
//
// # Endpoints
//
//   - POST /register - Create an account
//   - POST /sign-in - Obtain a token for an audience
//   - POST /verify-token - Verify a token (signed by the calling service)
//   - GET /livez, /readyz - Health checks
//
// # Usage
//
//	go run ./cmd/registry --config=registry.yaml
//	go run ./cmd/registry --addr=:8080 --storage=badger --badger-path=./data/registry
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oasislabs/ready-layer-two/api/httpserver"
	"github.com/oasislabs/ready-layer-two/cmd/common"
	"github.com/oasislabs/ready-layer-two/identity"
	"github.com/oasislabs/ready-layer-two/services"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Prometheus metrics listen address")
		backend     = flag.String("storage", "", "Storage backend: memory, badger, or postgres")
		badgerPath  = flag.String("badger-path", "", "Badger data directory")
		tokenSecret = flag.String("token-secret", "", "Token signing secret (hex, generates if empty)")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	// isFlagSet checks if a flag was explicitly provided on command line
	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if isFlagSet("addr") || *configPath == "" {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *badgerPath != "" {
		cfg.Storage.BadgerPath = *badgerPath
	}
	if *tokenSecret != "" {
		cfg.Registry.TokenSecret = *tokenSecret
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func run(cfg *common.Config) error {
	log := common.NewLogger(cfg.Log).With("service", "registry")

	backend, err := common.OpenBackend(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()

	accounts := common.OpenMap[identity.Account](backend, "accounts")

	var registry *identity.Registry
	if cfg.Registry.TokenSecret != "" {
		secret, err := hex.DecodeString(cfg.Registry.TokenSecret)
		if err != nil {
			return fmt.Errorf("invalid token secret: %w", err)
		}
		registry, err = identity.NewRegistryWithSecret(accounts, secret, log)
		if err != nil {
			return err
		}
	} else {
		log.Info("no token secret configured; tokens will not survive a restart")
		registry, err = identity.NewRegistry(accounts, log)
		if err != nil {
			return err
		}
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, services.NewHTTPRegistry(registry, log))
	if err != nil {
		return err
	}

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down registry...")
	srv.Shutdown()
	return nil
}
