package engine

import (
	"context"
	"errors"
	"strconv"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/internal/metrics"
	"github.com/teem-market/teem/pkg/logger"
)

// OrderBook reads published offers. Absence of entries is a valid,
// non-error response.
type OrderBook interface {
	FetchOffers(ctx context.Context, kind market.OfferKind, target string) ([]market.ResourceOffer, error)
}

// Matcher submits a signed request with its resolved offers for atomic
// matching on the ledger. The ledger guarantees no two concurrent matches
// double-spend an offer's remaining volume.
type Matcher interface {
	MatchOrders(ctx context.Context, req market.SignedRequest, offers []market.ResourceOffer) (market.CommitmentID, error)
}

// Signer supplies the wallet's ready-to-use signing context.
type Signer interface {
	SignRequest(market.RequestDescriptor) (market.SignedRequest, error)
}

// Config holds match-engine parameters.
type Config struct {
	// MaxPrices caps what the engine will pay per offer kind.
	MaxPrices market.MaxPrices
	// Requirement is the capability demanded of pool offers. Confidential
	// operation demands TagConfidentialRuntime; TagNone is the explicit,
	// caller-chosen non-confidential path. The config layer defaults this
	// to confidential, never the engine.
	Requirement market.CapabilityTag
}

// Engine matches a locally signed request against independently published
// offers. Each submission owns its descriptor and commitment, so a single
// engine is safe to use from concurrent submissions.
type Engine struct {
	orders  OrderBook
	matcher Matcher
	signer  Signer
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a match engine.
func New(orders OrderBook, matcher Matcher, signer Signer, cfg Config, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		orders:  orders,
		matcher: matcher,
		signer:  signer,
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
}

// resolution is one read snapshot of everything a match attempt needs.
// Offers are never cached across attempts; the retry path builds a fresh
// resolution to reduce staleness.
type resolution struct {
	app      market.ResourceOffer
	pool     market.ResourceOffer
	dataset  *market.ResourceOffer
	degraded bool
}

// Submit resolves offers for the target, composes and signs a request, and
// matches them into a commitment.
//
// Offer resolution and signing are read-only and safely retryable; the
// match call is the only state-mutating step. A failed match is retried
// exactly once against freshly fetched offers before surfacing ErrMatchFailed.
//
// Confidentiality is never downgraded implicitly: if no pool offer carries
// the required confidential capability the submission aborts, it does not
// fall back to a non-confidential pool. The dataset lookup is the one
// defined degrade path, and it surfaces a warning rather than masking the
// condition.
func (e *Engine) Submit(ctx context.Context, target string, input market.InputSpec) (market.Commitment, error) {
	if err := input.Validate(); err != nil {
		return market.Commitment{}, err
	}

	commitment, err := e.attempt(ctx, target, input)
	if err == nil {
		return commitment, nil
	}
	if !isMatchStageFailure(err) {
		return market.Commitment{}, err
	}

	e.log.Warn("match attempt failed, retrying with fresh offers", "target", target, "error", err.Error())
	e.metrics.MatchRetries.Inc()

	commitment, retryErr := e.attempt(ctx, target, input)
	if retryErr == nil {
		return commitment, nil
	}
	if !isMatchStageFailure(retryErr) {
		return market.Commitment{}, retryErr
	}
	return market.Commitment{}, WrapWithRecovery(ErrMatchFailed, "retry exhausted: %v", retryErr)
}

// attempt runs one full resolve-compose-sign-match pass.
func (e *Engine) attempt(ctx context.Context, target string, input market.InputSpec) (market.Commitment, error) {
	res, err := e.resolve(ctx, target, input)
	if err != nil {
		return market.Commitment{}, err
	}

	desc, err := e.compose(target, input, res)
	if err != nil {
		return market.Commitment{}, err
	}

	signed, err := e.signer.SignRequest(desc)
	if err != nil {
		return market.Commitment{}, err
	}

	offers := []market.ResourceOffer{res.app, res.pool}
	if res.dataset != nil {
		offers = append(offers, *res.dataset)
	}

	id, err := e.matcher.MatchOrders(ctx, signed, offers)
	if err != nil {
		return market.Commitment{}, &matchStageError{cause: err}
	}

	commitment := market.Commitment{
		ID:         id,
		Request:    signed,
		AppOffer:   res.app,
		PoolOffer:  res.pool,
		Provenance: input.Provenance(),
		Degraded:   res.degraded,
		CreatedAt:  desc.CreatedAt,
	}
	if res.dataset != nil {
		commitment.Dataset = res.dataset.ProviderID
	}

	e.log.Info("orders matched",
		"commitment", string(id),
		"target", target,
		"pool", res.pool.ProviderID,
		"degraded", res.degraded,
	)
	return commitment, nil
}

// resolve takes a fresh read snapshot of every order book the submission
// needs. Each step fails independently.
func (e *Engine) resolve(ctx context.Context, target string, input market.InputSpec) (resolution, error) {
	var res resolution

	appOffers, err := e.orders.FetchOffers(ctx, market.OfferKindApp, target)
	if err != nil {
		return res, err
	}
	app, ok := market.SelectOffer(appOffers, market.TagNone, market.CategoryAny)
	if !ok {
		return res, WrapWithRecovery(ErrNoProviderOffer, "target %s", target)
	}
	res.app = app

	requirement := e.requirement()
	poolOffers, err := e.orders.FetchOffers(ctx, market.OfferKindPool, "")
	if err != nil {
		return res, err
	}
	pool, ok := market.SelectOffer(poolOffers, requirement, market.CategoryAny)
	if !ok {
		if requirement.Satisfies(market.TagConfidential) {
			return res, WrapWithRecovery(ErrNoConfidentialPool, "requirement %#x", uint32(requirement))
		}
		return res, WrapWithRecovery(ErrNoPoolOffer, "requirement %#x", uint32(requirement))
	}
	res.pool = pool

	if input.ProtectedRef != "" {
		dsOffers, err := e.orders.FetchOffers(ctx, market.OfferKindDataset, input.ProtectedRef)
		if err != nil {
			return res, err
		}
		if ds, ok := market.SelectOffer(dsOffers, market.TagNone, market.CategoryAny); ok {
			res.dataset = &ds
		} else {
			// Defined degrade path: continue without the dataset, but
			// never mask the condition.
			e.log.Warn("protected dataset unavailable, continuing without it",
				"dataset", input.ProtectedRef,
				"target", target,
			)
			e.metrics.DatasetDegrades.Inc()
			res.degraded = true
		}
	}

	return res, nil
}

// compose builds the request descriptor for one resolution.
func (e *Engine) compose(target string, input market.InputSpec, res resolution) (market.RequestDescriptor, error) {
	args := ""
	datasetRef := ""
	switch {
	case res.dataset != nil:
		datasetRef = input.ProtectedRef
	case input.PlainValue != nil:
		args = strconv.FormatFloat(*input.PlainValue, 'f', -1, 64)
	}

	return market.BuildRequest(target, res.pool.Category, e.cfg.MaxPrices, e.requirement(), args, datasetRef)
}

func (e *Engine) requirement() market.CapabilityTag {
	return e.cfg.Requirement
}

// matchStageError marks a failure of the atomic matching step, the only
// stage that is retried with a fresh offer snapshot.
type matchStageError struct {
	cause error
}

func (e *matchStageError) Error() string {
	return "match stage: " + e.cause.Error()
}

func (e *matchStageError) Unwrap() error {
	return e.cause
}

func isMatchStageFailure(err error) bool {
	var stage *matchStageError
	return errors.As(err, &stage)
}
