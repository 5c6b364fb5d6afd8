// Command coordinator runs a competition coordinator.
//
// The coordinator accepts sealed submissions from participants holding a
// token the participant registry vouches for, until the deadline. After the
// deadline it releases the test dataset and submissions to the attested
// evaluation program and records the winner it announces.
//
// # Configuration File
//
//	http_addr: ":8081"
//	keys:
//	  signing_key: ""   # hex Ed25519 key; its public key is the coordinator identity
//	storage:
//	  backend: badger
//	  badger_path: ./data/coordinator
//	attestation:
//	  mode: tdx          # none, dummy, or tdx
//	  measurements_url: "https://measurements.example.com/allowed.json"
//	coordinator:
//	  registry_url: "http://localhost:8080"
//	  competition:
//	    train_dataset:
//	      url: "https://datasets.example.com/train.csv"
//	      hash: "<sha256 hex>"
//	    test_dataset:
//	      url: "https://datasets.example.com/test.enc"
//	      key: "<hex>"
//	      iv: "<hex>"
//	      tag: "<hex>"
//	    evaluation_program:
//	      url: "https://programs.example.com/eval"
//	      hash: "<measurement hex>"
//	    end_timestamp: 1735689600
//
// The signing key should be fixed in production: participants sign in for
// the coordinator identity, so a new key invalidates every issued token.
//
// # Usage
//
//	go run ./cmd/coordinator --config=coordinator.yaml
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oasislabs/ready-layer-two/api/httpserver"
	"github.com/oasislabs/ready-layer-two/cmd/common"
	"github.com/oasislabs/ready-layer-two/competition"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/services"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		addr          = flag.String("addr", ":8081", "HTTP listen address")
		metricsAddr   = flag.String("metrics-addr", "", "Prometheus metrics listen address")
		registryURL   = flag.String("registry", "", "Participant registry URL")
		signingKeyHex = flag.String("signing-key", "", "Ed25519 signing key (hex, generates if empty)")
		attestMode    = flag.String("attestation", "", "Attestation mode: none, dummy, or tdx")
		remoteTDXURL  = flag.String("tdx-url", "", "Remote TDX verification service URL")
		logLevel      = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	if *configPath == "" {
		fmt.Println("Error: --config is required (it describes the competition)")
		os.Exit(1)
	}
	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if isFlagSet("addr") {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *registryURL != "" {
		cfg.Coordinator.RegistryURL = *registryURL
	}
	if *signingKeyHex != "" {
		cfg.Keys.SigningKey = *signingKeyHex
	}
	if *attestMode != "" {
		cfg.Attestation.Mode = *attestMode
	}
	if *remoteTDXURL != "" {
		cfg.Attestation.TDXRemoteURL = *remoteTDXURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.ValidateCoordinator(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config) error {
	log := common.NewLogger(cfg.Log).With("service", "coordinator")

	compConfig, err := cfg.Coordinator.Competition.ToCompetitionConfig()
	if err != nil {
		return err
	}
	if compConfig.Registry == "" {
		compConfig.Registry = cfg.Coordinator.RegistryURL
	}

	signingKey, err := common.LoadOrGenerateSigningKey(cfg.Keys.SigningKey)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	if cfg.Keys.SigningKey == "" {
		log.Warn("no signing key configured; tokens issued for this coordinator will not survive a restart")
	}

	registryClient := services.NewHTTPRegistryClient(services.RegistryClientConfig{
		URL:              cfg.Coordinator.RegistryURL,
		SigningKey:       signingKey,
		FailureThreshold: cfg.Coordinator.FailureThreshold,
		OpenDuration:     cfg.Coordinator.OpenDuration,
		Log:              log,
	})
	identity, err := registryClient.Identity()
	if err != nil {
		return err
	}

	backend, err := common.OpenBackend(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()

	events, eventLog, err := backend.EventSink(log)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	coordinator := competition.NewCoordinator(
		compConfig,
		registryClient,
		common.OpenMap[protocol.EncryptedData](backend, "submissions"),
		common.NewVerifier(cfg.Attestation, identity, log),
		events,
		log,
	)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, services.NewHTTPCoordinator(coordinator, services.HTTPCoordinatorConfig{
		Identity:       identity,
		Events:         eventLog,
		AllowedOrigins: cfg.Coordinator.AllowedOrigins,
		Log:            log,
	}))
	if err != nil {
		return err
	}

	log.Info("coordinator ready",
		"identity", identity,
		"registry", cfg.Coordinator.RegistryURL,
		"end_timestamp", compConfig.EndTimestamp,
		"closes_at", time.Unix(int64(compConfig.EndTimestamp), 0).UTC())

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down coordinator...")
	srv.Shutdown()
	return nil
}
