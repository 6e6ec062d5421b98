package domain

import (
	"context"
	"io"
	"time"
)

// Verifier checks a bot-protection token. Implementations fail closed: any
// transport or decoding problem yields false.
type Verifier interface {
	Verify(ctx context.Context, token, secret string) bool
}

// Ledger is an append-only table addressed by ledgerID.
type Ledger interface {
	EnsureHeader(ctx context.Context, ledgerID string, headers []string) error
	AppendRow(ctx context.Context, ledgerID string, row []string) error
}

// LedgerPinger is implemented by ledgers that can cheaply check that a ledger
// is reachable without writing to it.
type LedgerPinger interface {
	Ping(ctx context.Context, ledgerID string) error
}

// BlobPublisher stores content under key and returns its public URL. The
// object must not be publicly visible unless the write succeeded.
type BlobPublisher interface {
	Publish(ctx context.Context, key string, content io.Reader, mediaType string) (string, error)
}

type EventPublisher interface {
	PublishSubmission(ctx context.Context, ev SubmissionEvent) error
}

type SubmissionEvent struct {
	Kind        Kind      `json:"kind"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	SubmittedAt time.Time `json:"submitted_at"`
	ResumeURL   string    `json:"resume_url,omitempty"`
}
