// Package cmd provides the binaries of an attested competition deployment.
//
// # Commands
//
// registry: The participant registry. Stores accounts, issues tokens
// addressed to a service and verifies them for that service.
//
//	go run ./cmd/registry --addr=:8080
//	go run ./cmd/registry --config=registry.yaml
//
// coordinator: Runs one competition described in its config file. Delegates
// token verification to the registry and releases evaluation secrets to an
// attested evaluation program after the deadline.
//
//	go run ./cmd/coordinator --config=coordinator.yaml
//
// compete: CLI for participants and the evaluation program.
//
//	go run ./cmd/compete register --name=alice --credential=secret
//	go run ./cmd/compete evaluate fetch --measurement=<hex> --attestation=tdx
//
// # Configuration
//
// The registry and coordinator read YAML configuration files via the
// --config flag. Command-line flags override config file values.
//
//	http_addr: ":8081"
//	metrics_addr: ":9081"
//	log:
//	  level: info
//	  json: false
//	keys:
//	  signing_key: ""
//	storage:
//	  backend: memory     # memory, badger, or postgres
//	  badger_path: ""
//	  postgres:
//	    host: localhost
//	    port: 5432
//	attestation:
//	  mode: none          # none, dummy, or tdx
//	  tdx_remote_url: ""
//	  measurements_url: ""
//	registry:
//	  token_secret: ""
//	coordinator:
//	  registry_url: "http://localhost:8080"
//	  allowed_origins: ["*"]
//	  failure_threshold: 5
//	  open_duration: 30s
//	  competition: {...}
//
// # Local Demo
//
// services/demo runs a registry, a coordinator, a set of participants and an
// evaluator in a single process.
package cmd
