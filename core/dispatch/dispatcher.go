package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/CardSorting/hana-relay/core/correlation"
	"github.com/CardSorting/hana-relay/core/credit"
	"github.com/CardSorting/hana-relay/core/infra/logging"
	"github.com/CardSorting/hana-relay/core/infra/metrics"
	"github.com/CardSorting/hana-relay/core/infra/schema"
)

const defaultOrigin = "discord"

// Publisher is the broker capability the dispatcher depends on.
type Publisher interface {
	Publish(subject string, v any) error
}

// SubmitRequest carries one user query into the dispatch path.
type SubmitRequest struct {
	UserID     string
	Query      string
	ChannelID  string
	OriginType string
	GuildID    string
}

// Receipt is the uniform synchronous answer to a submission. Reason is set
// only when the submission was not accepted.
type Receipt struct {
	Accepted bool
	Reason   string
}

// Options wires a Dispatcher.
type Options struct {
	Bus         Publisher
	Ledger      credit.Ledger
	Cache       *correlation.Cache
	WorkSubject string
	Metrics     metrics.Metrics
	Clock       correlation.Clock
}

// Dispatcher gates submissions by credit and hands them to the worker queue.
type Dispatcher struct {
	bus      Publisher
	ledger   credit.Ledger
	cache    *correlation.Cache
	subject  string
	metrics  metrics.Metrics
	clock    correlation.Clock
	envelope *schema.Compiled
}

// New constructs a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Clock == nil {
		opts.Clock = correlation.SystemClock()
	}
	envelope, err := schema.WorkEnvelope()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		bus:      opts.Bus,
		ledger:   opts.Ledger,
		cache:    opts.Cache,
		subject:  opts.WorkSubject,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		envelope: envelope,
	}, nil
}

// Submit validates the request, records the reply origin, charges the
// requester, and publishes the job. Admission runs before publish; a publish
// failure after a successful charge triggers a best-effort refund.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) Receipt {
	if strings.TrimSpace(req.UserID) == "" {
		return d.reject(metrics.SubmitInvalid, "a user id is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return d.reject(metrics.SubmitInvalid, "a query is required")
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		return d.reject(metrics.SubmitInvalid, "an origin channel is required")
	}
	origin := req.OriginType
	if origin == "" {
		origin = defaultOrigin
	}

	submissionID := uuid.NewString()

	if err := d.cache.SetIfAbsent(req.UserID, req.ChannelID, origin, req.Query, req.GuildID); err != nil {
		logging.Error("dispatch", "correlation record rejected",
			"submission_id", submissionID, "user_id", req.UserID, "error", err)
		return d.reject(metrics.SubmitInvalid, "invalid request parameters")
	}

	envelope := Envelope{
		UserID:      req.UserID,
		Query:       req.Query,
		ChannelID:   req.ChannelID,
		SubmittedAt: d.clock.Now().UTC(),
	}
	// Check the wire shape before charging so a bad envelope never costs a
	// credit or needs a refund.
	payload, err := json.Marshal(envelope)
	if err == nil {
		err = d.envelope.Validate(payload)
	}
	if err != nil {
		logging.Error("dispatch", "envelope rejected",
			"submission_id", submissionID, "user_id", req.UserID, "error", err)
		return d.reject(metrics.SubmitInvalid, "invalid request parameters")
	}

	ok, err := d.ledger.TryDeduct(ctx, req.UserID)
	if err != nil {
		logging.Error("dispatch", "credit check failed",
			"submission_id", submissionID, "user_id", req.UserID, "error", err)
		if errors.Is(err, credit.ErrUnavailable) {
			return d.reject(metrics.SubmitTransport, "credit service is unavailable, try again later")
		}
		return d.reject(metrics.SubmitTransport, "could not verify credits")
	}
	if !ok {
		logging.Warn("dispatch", "insufficient credits",
			"submission_id", submissionID, "user_id", req.UserID)
		return d.reject(metrics.SubmitDenied, "insufficient credits for query processing")
	}

	if err := d.bus.Publish(d.subject, envelope); err != nil {
		logging.Error("dispatch", "publish failed",
			"submission_id", submissionID, "user_id", req.UserID, "subject", d.subject, "error", err)
		if refundErr := d.ledger.Refund(ctx, req.UserID); refundErr != nil {
			logging.Error("dispatch", "refund after failed publish also failed",
				"submission_id", submissionID, "user_id", req.UserID, "error", refundErr)
		}
		return d.reject(metrics.SubmitTransport, "could not submit query for processing")
	}

	d.metrics.IncSubmitted(metrics.SubmitAccepted)
	d.metrics.IncPublished(d.subject)
	logging.Info("dispatch", "job dispatched",
		"submission_id", submissionID, "user_id", req.UserID, "subject", d.subject)
	return Receipt{Accepted: true}
}

func (d *Dispatcher) reject(outcome, reason string) Receipt {
	d.metrics.IncSubmitted(outcome)
	return Receipt{Accepted: false, Reason: reason}
}
