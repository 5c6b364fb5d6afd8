package main

import (
	"context"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"time"

	"github.com/oasislabs/ready-layer-two/api/httpserver"
	"github.com/oasislabs/ready-layer-two/attestation"
	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/oasislabs/ready-layer-two/competition"
	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/identity"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/services"
	"github.com/oasislabs/ready-layer-two/storage"
	"github.com/oasislabs/ready-layer-two/tdx"
)

// OrchestratorConfig contains deployment configuration.
type OrchestratorConfig struct {
	NumParticipants int
	BasePort        int
	Window          time.Duration

	UseTDX          bool
	RemoteTDXURL    string
	MeasurementsURL string
}

// Orchestrator runs a registry and a coordinator in one process and drives a
// competition through to its result.
type Orchestrator struct {
	config *OrchestratorConfig
	log    *slog.Logger

	provider attestation.TEEProvider
	allowed  attestation.MeasurementSource
	program  []byte

	registryServer    *httpserver.BaseServer
	coordinatorServer *httpserver.BaseServer
	coordinatorID     string
	client            *services.Client

	blobs map[string][]byte
}

// NewOrchestrator creates a deployment orchestrator.
func NewOrchestrator(config *OrchestratorConfig, log *slog.Logger) *Orchestrator {
	program := crypto.Digest([]byte("demo evaluation program"))

	var provider attestation.TEEProvider
	if config.UseTDX {
		if config.RemoteTDXURL != "" {
			provider = &tdx.RemoteDCAPProvider{
				URL:     config.RemoteTDXURL,
				Timeout: 30 * time.Second,
			}
		} else {
			provider = &tdx.TDXProvider{}
		}
	} else {
		provider = &tdx.DummyProvider{Measurement: program}
	}

	var allowed attestation.MeasurementSource
	if config.MeasurementsURL != "" {
		allowed = attestation.NewRemoteMeasurementSource(config.MeasurementsURL)
	} else if !config.UseTDX {
		allowed = tdx.DemoMeasurementSource()
	}

	return &Orchestrator{
		config:   config,
		log:      log,
		provider: provider,
		allowed:  allowed,
		program:  program,
		blobs:    make(map[string][]byte),
	}
}

// Deploy starts the registry and the coordinator.
func (o *Orchestrator) Deploy(ctx context.Context) error {
	registryAddr := fmt.Sprintf("localhost:%d", o.config.BasePort)
	coordinatorAddr := fmt.Sprintf("localhost:%d", o.config.BasePort+1)

	registry, err := identity.NewRegistry(storage.NewMemoryMap[identity.Account](), o.log)
	if err != nil {
		return err
	}
	o.registryServer, err = httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               registryAddr,
		Log:                      o.log.With("service", "registry"),
		GracefulShutdownDuration: 5 * time.Second,
	}, services.NewHTTPRegistry(registry, o.log))
	if err != nil {
		return fmt.Errorf("deploy registry: %w", err)
	}

	pubKey, signingKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	o.coordinatorID = pubKey.String()

	registryClient := services.NewHTTPRegistryClient(services.RegistryClientConfig{
		URL:        "http://" + registryAddr,
		SigningKey: signingKey,
		Log:        o.log,
	})

	events := audit.NewMemorySink()
	config := competition.Config{
		Registry:          "http://" + registryAddr,
		TrainDataset:      protocol.AuthenticatedData{URL: "https://datasets.example.com/train.csv", Hash: crypto.Digest([]byte("train"))},
		TestDataset:       o.sealTestDataset(),
		EvaluationProgram: protocol.AuthenticatedData{URL: "https://programs.example.com/eval", Hash: o.program},
		EndTimestamp:      uint64(time.Now().Add(o.config.Window).Unix()),
	}
	verifier := &attestation.QuoteVerifier{Provider: o.provider, Audience: o.coordinatorID, Allowed: o.allowed}
	coordinator := competition.NewCoordinator(config, registryClient,
		storage.NewMemoryMap[protocol.EncryptedData](), verifier,
		audit.MultiSink{events, audit.NewLogSink(o.log)}, o.log)

	o.coordinatorServer, err = httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               coordinatorAddr,
		Log:                      o.log.With("service", "coordinator"),
		GracefulShutdownDuration: 5 * time.Second,
	}, services.NewHTTPCoordinator(coordinator, services.HTTPCoordinatorConfig{
		Identity: o.coordinatorID,
		Events:   events,
		Log:      o.log,
	}))
	if err != nil {
		return fmt.Errorf("deploy coordinator: %w", err)
	}

	o.registryServer.RunInBackground()
	o.coordinatorServer.RunInBackground()
	o.client = services.NewClient("http://"+registryAddr, "http://"+coordinatorAddr)

	return o.waitReady(ctx)
}

func (o *Orchestrator) waitReady(ctx context.Context) error {
	for i := 0; i < 50; i++ {
		if _, err := o.client.State(ctx); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("coordinator did not become ready")
}

func (o *Orchestrator) sealTestDataset() protocol.EncryptedData {
	ciphertext, key, err := crypto.SealEnvelope([]byte("test dataset"))
	if err != nil {
		panic(err)
	}
	url := "https://datasets.example.com/test.enc"
	o.blobs[url] = ciphertext
	return protocol.EncryptedData{URL: url, Cipher: protocol.Aes256GcmParams{Key: key.Key, IV: key.IV, Tag: key.Tag}}
}

// RunParticipants registers participants and submits one sealed model each.
func (o *Orchestrator) RunParticipants(ctx context.Context) error {
	for i := 0; i < o.config.NumParticipants; i++ {
		name := fmt.Sprintf("participant-%d", i)
		credential := fmt.Sprintf("secret-%d", mrand.Int63())

		if err := o.client.Register(ctx, name, credential); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		token, err := o.client.SignIn(ctx, name, credential, o.coordinatorID)
		if err != nil {
			return fmt.Errorf("sign in %s: %w", name, err)
		}

		score := mrand.Intn(1000)
		ciphertext, key, err := crypto.SealEnvelope([]byte(fmt.Sprintf("%d", score)))
		if err != nil {
			return err
		}
		url := fmt.Sprintf("https://models.example.com/%s", name)
		o.blobs[url] = ciphertext

		model := protocol.EncryptedData{URL: url, Cipher: protocol.Aes256GcmParams{Key: key.Key, IV: key.IV, Tag: key.Tag}}
		if err := o.client.Submit(ctx, token, model); err != nil {
			return fmt.Errorf("submit %s: %w", name, err)
		}
		o.log.Info("submitted model", "participant", name, "score", score)
	}
	return nil
}

// RunEvaluation waits for the deadline, then scores every submission and
// announces the best one.
func (o *Orchestrator) RunEvaluation(ctx context.Context) (string, error) {
	state, err := o.client.State(ctx)
	if err != nil {
		return "", err
	}
	if wait := time.Until(time.Unix(int64(state.EndTimestamp), 0)); wait > 0 {
		o.log.Info("waiting for submissions to close", "wait", wait.Round(time.Second))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait + time.Second):
		}
	}

	report, err := attestation.AttestEvaluation(o.provider, o.coordinatorID, o.program)
	if err != nil {
		return "", err
	}

	secrets, err := o.client.BeginEvaluation(ctx, report)
	if err != nil {
		return "", fmt.Errorf("begin evaluation: %w", err)
	}

	winner, best := "", -1
	for name, sub := range secrets.Submissions {
		plaintext, err := crypto.OpenEnvelope(o.blobs[sub.URL], &crypto.EnvelopeKey{Key: sub.Cipher.Key, IV: sub.Cipher.IV, Tag: sub.Cipher.Tag})
		if err != nil {
			return "", fmt.Errorf("open submission of %s: %w", name, err)
		}
		var score int
		fmt.Sscanf(string(plaintext), "%d", &score)
		if score > best {
			winner, best = name, score
		}
	}

	if err := o.client.AnnounceWinner(ctx, report, winner); err != nil {
		return "", fmt.Errorf("announce winner: %w", err)
	}
	return winner, nil
}

// Shutdown stops both services.
func (o *Orchestrator) Shutdown() {
	if o.coordinatorServer != nil {
		o.coordinatorServer.Shutdown()
	}
	if o.registryServer != nil {
		o.registryServer.Shutdown()
	}
}
