package services

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/oasislabs/ready-layer-two/attestation"
	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/oasislabs/ready-layer-two/competition"
	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/identity"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/storage"
	"github.com/oasislabs/ready-layer-two/testutil"
	"github.com/stretchr/testify/require"
)

const testEndTimestamp = 1000

var testProgramHash = []byte("evaluation-program")

type testDeployment struct {
	registry       *identity.Registry
	registryServer *httptest.Server
	coordinator    *httptest.Server
	registryClient *HTTPRegistryClient
	identity       string
	clock          *clock.Mock
	events         *audit.MemorySink
	client         *Client
}

func newRouter(registrar interface{ RegisterRoutes(chi.Router) }) *chi.Mux {
	r := chi.NewRouter()
	registrar.RegisterRoutes(r)
	return r
}

func testCompetition() competition.Config {
	return testutil.NewTestCompetition(
		testutil.WithEndTimestamp(testEndTimestamp),
		testutil.WithEvaluationProgram(testProgramHash),
	)
}

func deploy(t *testing.T, verifier attestation.Verifier) *testDeployment {
	t.Helper()

	registry, err := identity.NewRegistry(storage.NewMemoryMap[identity.Account](), nil)
	require.NoError(t, err)
	registryServer := httptest.NewServer(newRouter(NewHTTPRegistry(registry, nil)))
	t.Cleanup(registryServer.Close)

	pubKey, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	registryClient := NewHTTPRegistryClient(RegistryClientConfig{
		URL:        registryServer.URL,
		SigningKey: privKey,
		Timeout:    2 * time.Second,
	})

	mock := clock.NewMock()
	mock.Set(time.Unix(testEndTimestamp-500, 0))

	events := audit.NewMemorySink()
	coordinator := competition.NewCoordinator(testCompetition(), registryClient,
		storage.NewMemoryMap[protocol.EncryptedData](), verifier, events, nil)

	coordinatorServer := httptest.NewServer(newRouter(NewHTTPCoordinator(coordinator, HTTPCoordinatorConfig{
		Identity: pubKey.String(),
		Clock:    mock,
		Events:   events,
	})))
	t.Cleanup(coordinatorServer.Close)

	return &testDeployment{
		registry:       registry,
		registryServer: registryServer,
		coordinator:    coordinatorServer,
		registryClient: registryClient,
		identity:       pubKey.String(),
		clock:          mock,
		events:         events,
		client:         NewClient(registryServer.URL, coordinatorServer.URL),
	}
}

func (d *testDeployment) closeSubmissions() {
	d.clock.Set(time.Unix(testEndTimestamp, 0))
}
