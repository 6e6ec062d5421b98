package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// State is a stage of a submission's lifecycle.
type State string

const (
	StateReceived  State = "RECEIVED"
	StateValidated State = "VALIDATED"
	StateVerified  State = "VERIFIED"
	StatePublished State = "PUBLISHED"
	StateLogged    State = "LOGGED"
	StateResponded State = "RESPONDED"
	StateRejected  State = "REJECTED"
	StateFailed    State = "FAILED"
)

// IST is the civil zone used for ledger timestamps.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// DefaultEventTimeout caps how long a successful submission waits on the
// event publisher.
const DefaultEventTimeout = 500 * time.Millisecond

// Dependencies are the collaborators of a Pipeline. They are built once at
// start-up and shared read-only by all requests.
type Dependencies struct {
	Verifier Verifier
	Ledger   Ledger
	Blobs    BlobPublisher
	// Events is optional.
	Events EventPublisher
	// Secrets holds the Turnstile secret per kind. An empty secret disables
	// verification for that kind.
	Secrets map[Kind]string
	// LedgerIDs maps a kind to its ledger (spreadsheet id or table key).
	LedgerIDs map[Kind]string
	Logger    *zap.Logger
	// EventTimeout defaults to DefaultEventTimeout.
	EventTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type Pipeline struct {
	deps Dependencies
}

func NewPipeline(deps Dependencies) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.EventTimeout <= 0 {
		deps.EventTimeout = DefaultEventTimeout
	}
	return &Pipeline{deps: deps}
}

// Result describes how far a submission got.
type Result struct {
	State     State
	Trace     []State
	Message   string
	ResumeURL string
	Row       []string
}

// run is the mutable state threaded through the steps of one submission.
type run struct {
	sub       Submission
	now       time.Time
	resumeURL string
	row       []string
}

type step struct {
	reached State
	// failed is the terminal state entered when apply returns an error.
	failed State
	apply  func(ctx context.Context, r *run) error
	// skip reports whether the step does not apply to this submission.
	skip func(r *run) bool
}

func (p *Pipeline) steps() []step {
	return []step{
		{reached: StateValidated, failed: StateRejected, apply: p.validate},
		{reached: StateVerified, failed: StateRejected, apply: p.verify},
		{reached: StatePublished, failed: StateFailed, apply: p.publish, skip: withoutResume},
		{reached: StateLogged, failed: StateFailed, apply: p.log},
	}
}

// Submit runs sub through validate, verify, publish and log, stopping at the
// first failing step. The returned error is always a *SubmissionError.
// Downstream failures are left to the caller to report.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (*Result, error) {
	r := &run{sub: sub, now: p.deps.Now()}
	res := &Result{State: StateReceived, Trace: []State{StateReceived}}
	log := p.deps.Logger.With(zap.String("kind", string(sub.Kind())))

	for _, s := range p.steps() {
		if s.skip != nil && s.skip(r) {
			continue
		}
		if err := s.apply(ctx, r); err != nil {
			res.State = s.failed
			res.Trace = append(res.Trace, s.failed)
			after := zap.String("after", string(res.Trace[len(res.Trace)-2]))
			var se *SubmissionError
			if errors.As(err, &se) && se.ClientFault() {
				log.Info("submission rejected", after, zap.Error(err))
			} else {
				log.Debug("submission failed", after, zap.Error(err))
			}
			return res, err
		}
		res.State = s.reached
		res.Trace = append(res.Trace, s.reached)
	}

	res.ResumeURL = r.resumeURL
	res.Row = r.row
	res.Message = successMessage(sub.Kind())
	res.State = StateResponded
	res.Trace = append(res.Trace, StateResponded)

	p.notify(ctx, r)
	log.Info("submission recorded")
	return res, nil
}

func (p *Pipeline) validate(_ context.Context, r *run) error {
	return Validate(r.sub)
}

func (p *Pipeline) verify(ctx context.Context, r *run) error {
	secret := p.deps.Secrets[r.sub.Kind()]
	if secret == "" {
		p.deps.Logger.Warn("turnstile secret not configured, skipping verification",
			zap.String("kind", string(r.sub.Kind())))
		return nil
	}
	if !p.deps.Verifier.Verify(ctx, r.sub.Token(), secret) {
		return captchaRejected()
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, r *run) error {
	career := r.sub.(*CareerSubmission)
	key := ResumeKey(career.Name, career.Resume.Filename, r.now)
	url, err := p.deps.Blobs.Publish(ctx, key, career.Resume.Content, career.Resume.MediaType)
	if err != nil {
		return downstream("Failed to upload resume file", err)
	}
	r.resumeURL = url
	return nil
}

func (p *Pipeline) log(ctx context.Context, r *run) error {
	ledgerID := p.deps.LedgerIDs[r.sub.Kind()]
	if err := p.deps.Ledger.EnsureHeader(ctx, ledgerID, r.sub.Headers()); err != nil {
		return downstream(failureMessage(r.sub.Kind()), err)
	}
	row := r.sub.Row(r.now.In(IST).Format(TimestampLayout), r.resumeURL)
	if err := p.deps.Ledger.AppendRow(ctx, ledgerID, row); err != nil {
		return downstream(failureMessage(r.sub.Kind()), err)
	}
	r.row = row
	return nil
}

// notify emits a submission event. Failures are logged and otherwise ignored.
func (p *Pipeline) notify(ctx context.Context, r *run) {
	if p.deps.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.deps.EventTimeout)
	defer cancel()

	name, email := r.sub.applicant()
	ev := SubmissionEvent{
		Kind:        r.sub.Kind(),
		Name:        name,
		Email:       email,
		SubmittedAt: r.now.UTC(),
		ResumeURL:   r.resumeURL,
	}
	if err := p.deps.Events.PublishSubmission(ctx, ev); err != nil {
		p.deps.Logger.Warn("failed to publish submission event", zap.Error(err))
	}
}

// Ready checks that every configured ledger is reachable. Ledgers that cannot
// be probed are assumed ready.
func (p *Pipeline) Ready(ctx context.Context) error {
	pinger, ok := p.deps.Ledger.(LedgerPinger)
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(p.deps.LedgerIDs))
	for kind, id := range p.deps.LedgerIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := pinger.Ping(ctx, id); err != nil {
			return fmt.Errorf("%s ledger unreachable: %w", kind, err)
		}
	}
	return nil
}

func withoutResume(r *run) bool {
	_, ok := r.sub.(*CareerSubmission)
	return !ok
}

func successMessage(k Kind) string {
	if k == KindCareer {
		return "Application submitted successfully"
	}
	return "Contact form submitted successfully"
}

func failureMessage(k Kind) string {
	if k == KindCareer {
		return "Failed to submit application"
	}
	return "Failed to submit contact form"
}
