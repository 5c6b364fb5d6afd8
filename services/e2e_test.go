package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/oasislabs/ready-layer-two/attestation"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/tdx"
	"github.com/oasislabs/ready-layer-two/testutil"
	"github.com/stretchr/testify/require"
)

func TestEndToEnd_AttestedEvaluation(t *testing.T) {
	ctx := context.Background()

	// The coordinator identity is only known after deployment, so the quote
	// verifier is bound to it through a late-initialized audience.
	provider := &tdx.DummyProvider{Measurement: testProgramHash}
	verifier := &attestation.QuoteVerifier{Provider: provider}
	d := deploy(t, verifier)
	verifier.Audience = d.identity

	blobs := map[string]testutil.SealedModel{}
	for i, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, d.client.Register(ctx, name, "pw-"+name))
		tok, err := d.client.SignIn(ctx, name, "pw-"+name, d.identity)
		require.NoError(t, err)

		model, err := testutil.GenerateSealedModel(fmt.Sprintf("https://models.example.com/%s", name), []byte(fmt.Sprintf("weights-%d", i)))
		require.NoError(t, err)
		blobs[model.Descriptor.URL] = model
		require.NoError(t, d.client.Submit(ctx, tok, model.Descriptor))
	}

	// Bob resubmits; only the latest submission counts.
	tok, err := d.client.SignIn(ctx, "bob", "pw-bob", d.identity)
	require.NoError(t, err)
	model, err := testutil.GenerateSealedModel("https://models.example.com/bob-v2", []byte("weights-bob-v2"))
	require.NoError(t, err)
	blobs[model.Descriptor.URL] = model
	require.NoError(t, d.client.Submit(ctx, tok, model.Descriptor))

	report, err := attestation.AttestEvaluation(provider, d.identity, testProgramHash)
	require.NoError(t, err)

	_, err = d.client.BeginEvaluation(ctx, report)
	requireAPIError(t, err, protocol.ErrPermissionDenied, http.StatusForbidden)

	d.closeSubmissions()

	// An unattested claim of the right measurement is not enough.
	_, err = d.client.BeginEvaluation(ctx, protocol.AttestationReport{Measurement: testProgramHash})
	requireAPIError(t, err, protocol.ErrPermissionDenied, http.StatusForbidden)

	secrets, err := d.client.BeginEvaluation(ctx, report)
	require.NoError(t, err)
	require.Len(t, secrets.Submissions, 3)

	opened := map[string]string{}
	for name, sub := range secrets.Submissions {
		plaintext, err := blobs[sub.URL].Open(sub)
		require.NoError(t, err)
		opened[name] = string(plaintext)
	}
	require.Equal(t, map[string]string{
		"alice": "weights-0",
		"bob":   "weights-bob-v2",
		"carol": "weights-2",
	}, opened)

	require.NoError(t, d.client.AnnounceWinner(ctx, report, "carol"))

	events, err := d.client.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "carol", events[0].Winner)
}
