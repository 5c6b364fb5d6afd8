// Package audit records public, append-only facts about competitions.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oasislabs/ready-layer-two/protocol"
)

// KindCompetitionCompleted marks a winner announcement.
const KindCompetitionCompleted = "competition_completed"

// Fact is a single public record.
type Fact struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	Winner     string    `json:"winner"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewCompetitionCompleted builds the fact emitted when a winner is announced.
func NewCompetitionCompleted(event protocol.CompetitionCompleted, at time.Time) Fact {
	return Fact{
		ID:         uuid.New(),
		Kind:       KindCompetitionCompleted,
		Winner:     event.Winner,
		RecordedAt: at.UTC(),
	}
}

// Sink receives facts. A sink only appends; it never rewrites or deletes.
type Sink interface {
	Record(ctx context.Context, fact Fact) error
}

// Reader exposes recorded facts, oldest first.
type Reader interface {
	Facts(ctx context.Context) ([]Fact, error)
}
