package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oasislabs/ready-layer-two/attestation"
	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/oasislabs/ready-layer-two/competition"
	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/identity"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/services"
	"github.com/oasislabs/ready-layer-two/storage"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	out, err := runCLI(t, "hash", "--file", path)
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(crypto.Digest([]byte("a,b\n1,2\n"))), strings.TrimSpace(out))
}

func TestHash_Check(t *testing.T) {
	train := []byte("a,b\n1,2\n")
	coordinator := competition.NewCoordinator(competition.Config{
		TrainDataset: protocol.AuthenticatedData{URL: "https://datasets.example.com/train.csv", Hash: crypto.Digest(train)},
		EndTimestamp: 1,
	}, nil, storage.NewMemoryMap[protocol.EncryptedData](), attestation.Unverified{}, audit.NewMemorySink(), nil)
	router := chi.NewRouter()
	services.NewHTTPCoordinator(coordinator, services.HTTPCoordinatorConfig{}).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	dir := t.TempDir()
	good := filepath.Join(dir, "train.csv")
	bad := filepath.Join(dir, "other.csv")
	require.NoError(t, os.WriteFile(good, train, 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o600))

	_, err := runCLI(t, "--coordinator", srv.URL, "hash", "--file", good, "--check", "train")
	require.NoError(t, err)

	_, err = runCLI(t, "--coordinator", srv.URL, "hash", "--file", bad, "--check", "train")
	require.ErrorContains(t, err, "does not match")

	_, err = runCLI(t, "--coordinator", srv.URL, "hash", "--file", good, "--check", "program")
	require.Error(t, err)

	_, err = runCLI(t, "--coordinator", srv.URL, "hash", "--file", good, "--check", "labels")
	require.ErrorContains(t, err, "unknown --check")
}

func TestParticipantFlow(t *testing.T) {
	dir := t.TempDir()
	program := []byte("evaluation-program")

	registry, err := identity.NewRegistry(storage.NewMemoryMap[identity.Account](), nil)
	require.NoError(t, err)
	registryRouter := chi.NewRouter()
	services.NewHTTPRegistry(registry, nil).RegisterRoutes(registryRouter)
	registryServer := httptest.NewServer(registryRouter)
	defer registryServer.Close()

	pubKey, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	registryClient := services.NewHTTPRegistryClient(services.RegistryClientConfig{URL: registryServer.URL, SigningKey: privKey})

	// Submissions close shortly so the evaluator can run in the same test.
	end := uint64(time.Now().Unix()) + 2
	coordinator := competition.NewCoordinator(competition.Config{
		Registry:          registryServer.URL,
		EvaluationProgram: protocol.AuthenticatedData{URL: "https://programs.example.com/eval", Hash: program},
		EndTimestamp:      end,
	}, registryClient, storage.NewMemoryMap[protocol.EncryptedData](), attestation.Unverified{}, audit.NewMemorySink(), nil)
	coordinatorRouter := chi.NewRouter()
	services.NewHTTPCoordinator(coordinator, services.HTTPCoordinatorConfig{Identity: pubKey.String()}).RegisterRoutes(coordinatorRouter)
	coordinatorServer := httptest.NewServer(coordinatorRouter)
	defer coordinatorServer.Close()

	global := []string{"--registry", registryServer.URL, "--coordinator", coordinatorServer.URL}

	_, err = runCLI(t, append(global, "register", "--name", "alice", "--credential", "pw")...)
	require.NoError(t, err)

	token, err := runCLI(t, append(global, "sign-in", "--name", "alice", "--credential", "pw")...)
	require.NoError(t, err)

	plainPath := filepath.Join(dir, "model.bin")
	sealedPath := filepath.Join(dir, "model.enc")
	descriptorPath := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(plainPath, []byte("weights"), 0o600))

	descriptor, err := runCLI(t, "seal", "--in", plainPath, "--out", sealedPath, "--url", "https://models.example.com/alice")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(descriptorPath, []byte(descriptor), 0o600))

	_, err = runCLI(t, append(global, "submit", "--token", strings.TrimSpace(token), "--model", descriptorPath)...)
	require.NoError(t, err)

	_, err = runCLI(t, append(global, "submit", "--token", "garbage", "--model", descriptorPath)...)
	require.ErrorIs(t, err, protocol.ErrPermissionDenied)

	require.Eventually(t, func() bool {
		return uint64(time.Now().Unix()) >= end
	}, 5*time.Second, 50*time.Millisecond)

	measurement := hex.EncodeToString(program)
	secrets, err := runCLI(t, append(global, "evaluate", "fetch", "--measurement", measurement)...)
	require.NoError(t, err)
	secretsPath := filepath.Join(dir, "secrets.json")
	require.NoError(t, os.WriteFile(secretsPath, []byte(secrets), 0o600))

	openedPath := filepath.Join(dir, "opened.bin")
	_, err = runCLI(t, "evaluate", "open", "--secrets", secretsPath, "--name", "alice", "--in", sealedPath, "--out", openedPath)
	require.NoError(t, err)
	opened, err := os.ReadFile(openedPath)
	require.NoError(t, err)
	require.Equal(t, "weights", string(opened))

	_, err = runCLI(t, append(global, "evaluate", "announce", "--measurement", measurement, "--winner", "alice")...)
	require.NoError(t, err)
}
