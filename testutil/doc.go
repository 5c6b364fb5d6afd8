/*
Package testutil provides test fixtures for the competition services.

# Competition Generators

	// Default competition: closes 1000 seconds after the epoch
	config := testutil.NewTestCompetition()

	// Custom competition
	config := testutil.NewTestCompetition(
	    testutil.WithDeadlineIn(time.Minute),
	    testutil.WithEvaluationProgram(measurement),
	)

# Submission Generators

	model, _ := testutil.GenerateSealedModel("https://models.example.com/alice", []byte("weights"))
	// model.Descriptor is submitted; model.Ciphertext is what gets published
	plaintext, _ := model.Open(secrets.Submissions["alice"])

# Registry Stubs

StaticRegistry and UnreachableRegistry implement competition.RegistryClient
without a registry:

	coordinator := competition.NewCoordinator(config, testutil.StaticRegistry, ...)

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
