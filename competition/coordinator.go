package competition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oasislabs/ready-layer-two/attestation"
	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/storage"
)

// State is the phase of a competition at a given instant.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Config is fixed for the lifetime of a competition.
type Config struct {
	// Registry identifies the participant registry tokens are delegated to.
	Registry          string                     `yaml:"registry" json:"registry" validate:"required"`
	TrainDataset      protocol.AuthenticatedData `yaml:"train_dataset" json:"train_dataset"`
	TestDataset       protocol.EncryptedData     `yaml:"test_dataset" json:"test_dataset"`
	EvaluationProgram protocol.AuthenticatedData `yaml:"evaluation_program" json:"evaluation_program"`
	EndTimestamp      uint64                     `yaml:"end_timestamp" json:"end_timestamp" validate:"required"`
}

// RegistryClient verifies tokens with the participant registry as this coordinator.
// Failures to reach the registry wrap protocol.ErrRegistryUnreachable.
type RegistryClient interface {
	VerifyToken(ctx context.Context, token string) (protocol.UserInfo, error)
}

// Coordinator runs a single competition.
type Coordinator struct {
	config   Config
	registry RegistryClient
	verifier attestation.Verifier
	events   audit.Sink
	log      *slog.Logger

	// mu orders submission writes against evaluation snapshots.
	mu          sync.Mutex
	submissions storage.Map[protocol.EncryptedData]
}

// NewCoordinator creates a coordinator. The submissions map should start empty.
func NewCoordinator(
	config Config,
	registry RegistryClient,
	submissions storage.Map[protocol.EncryptedData],
	verifier attestation.Verifier,
	events audit.Sink,
	log *slog.Logger,
) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		config:      config,
		registry:    registry,
		verifier:    verifier,
		events:      events,
		log:         log.With("component", "competition"),
		submissions: submissions,
	}
}

// PublicState returns the part of the competition anyone may see.
func (c *Coordinator) PublicState() protocol.PublicState {
	return protocol.PublicState{
		Registry:          c.config.Registry,
		TrainDataset:      c.config.TrainDataset,
		EvaluationProgram: c.config.EvaluationProgram,
		EndTimestamp:      c.config.EndTimestamp,
	}
}

// State reports whether submissions are accepted at the time of rc.
func (c *Coordinator) State(rc protocol.RequestContext) State {
	now := rc.Time.Unix()
	if now < 0 || uint64(now) < c.config.EndTimestamp {
		return StateOpen
	}
	return StateClosed
}

// Submit stores model as the submission of the user token was issued to,
// replacing any earlier submission by the same user.
func (c *Coordinator) Submit(ctx context.Context, rc protocol.RequestContext, token string, model protocol.EncryptedData) error {
	if c.State(rc) != StateOpen {
		return protocol.ErrSubmissionsClosed
	}

	user, err := c.registry.VerifyToken(ctx, token)
	if errors.Is(err, protocol.ErrRegistryUnreachable) {
		c.log.Warn("participant registry unreachable", "err", err)
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrPermissionDenied, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.submissions.Insert(ctx, user.Name, model.Clone()); err != nil {
		return fmt.Errorf("could not store submission: %w", err)
	}

	c.log.Info("accepted submission", "participant", user.Name)
	return nil
}

// BeginEvaluation releases the test dataset and every submission to an
// attested evaluation program once the competition has closed.
func (c *Coordinator) BeginEvaluation(ctx context.Context, rc protocol.RequestContext, report protocol.AttestationReport) (*protocol.EvaluationSecrets, error) {
	if err := c.authorizeEvaluator(ctx, rc, report); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	submissions, err := storage.Collect(ctx, c.submissions)
	if err != nil {
		return nil, fmt.Errorf("could not read submissions: %w", err)
	}

	secrets := &protocol.EvaluationSecrets{
		TestDataset: c.config.TestDataset,
		Submissions: submissions,
	}

	c.log.Info("released evaluation secrets", "submissions", len(submissions))
	return secrets.Clone(), nil
}

// AnnounceWinner publishes winner on behalf of an attested evaluation program.
// The winner is recorded as given.
func (c *Coordinator) AnnounceWinner(ctx context.Context, rc protocol.RequestContext, report protocol.AttestationReport, winner string) error {
	if err := c.authorizeEvaluator(ctx, rc, report); err != nil {
		return err
	}

	fact := audit.NewCompetitionCompleted(protocol.CompetitionCompleted{Winner: winner}, rc.Time)
	if err := c.events.Record(ctx, fact); err != nil {
		return fmt.Errorf("could not record winner: %w", err)
	}

	c.log.Info("competition completed", "winner", winner)
	return nil
}

// authorizeEvaluator admits only the evaluation program, and only after the deadline.
// All causes of rejection look the same to the caller.
func (c *Coordinator) authorizeEvaluator(ctx context.Context, rc protocol.RequestContext, report protocol.AttestationReport) error {
	if c.State(rc) != StateClosed {
		c.log.Debug("evaluator rejected", "reason", "competition still open")
		return protocol.ErrPermissionDenied
	}

	if err := c.verifier.Verify(ctx, report); err != nil {
		c.log.Debug("evaluator rejected", "reason", "attestation", "err", err)
		return protocol.ErrPermissionDenied
	}

	if !bytes.Equal(report.Measurement, c.config.EvaluationProgram.Hash) {
		c.log.Debug("evaluator rejected", "reason", "measurement")
		return protocol.ErrPermissionDenied
	}

	return nil
}
