package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/market-shopper/internal/draft"
	"github.com/noah-isme/market-shopper/internal/events"
	"github.com/noah-isme/market-shopper/internal/lock"
	"github.com/noah-isme/market-shopper/internal/navigation"
	"github.com/noah-isme/market-shopper/internal/obs"
	"github.com/noah-isme/market-shopper/internal/order"
	"github.com/noah-isme/market-shopper/internal/payment"
	"github.com/noah-isme/market-shopper/internal/pricing"
	"github.com/noah-isme/market-shopper/internal/relay"
)

var (
	// ErrSubmissionInFlight is returned when the session already has a quote waiting on the relay.
	ErrSubmissionInFlight = errors.New("checkout: submission already in flight")
	// ErrAlreadySubmitted is returned when the session's quote was accepted and the draft has not been edited since.
	ErrAlreadySubmitted = errors.New("checkout: draft already submitted")
	// ErrReferenceRequired rejects payment completions without a transaction reference.
	ErrReferenceRequired = errors.New("checkout: payment reference required")
	// ErrInvalidDetails rejects order detail updates outside the fixed option sets.
	ErrInvalidDetails = errors.New("checkout: invalid order details")
	// ErrGuardUnavailable is returned when the cluster-wide submission lock cannot be checked.
	ErrGuardUnavailable = errors.New("checkout: submission guard unavailable")
)

// Config wires the engine's collaborators.
type Config struct {
	Drafts   draft.Store
	Schedule pricing.Schedule
	Relay    relay.Sender
	Payments payment.Provider
	Views    *navigation.Navigator
	Events   *events.Bus
	Logger   zerolog.Logger

	// States holds settled outcomes. Nil keeps them in memory for DefaultStateTTL.
	States StateStore

	// Locker extends the in-flight guard across replicas. Nil keeps it process-local.
	Locker  *lock.Locker
	LockTTL time.Duration
}

// Service is the order pricing and submission engine.
type Service struct {
	drafts    draft.Store
	schedule  pricing.Schedule
	validator *order.Validator
	relay     relay.Sender
	payments  payment.Provider
	views     *navigation.Navigator
	records   StateStore
	events    *events.Bus
	locker    *lock.Locker
	lockTTL   time.Duration
	logger    zerolog.Logger
	states    *tracker

	submitDuration metric.Float64Histogram
}

// NewService validates the configuration and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Drafts == nil {
		return nil, errors.New("checkout: draft store is required")
	}
	if cfg.Relay == nil {
		return nil, errors.New("checkout: relay sender is required")
	}
	if cfg.Payments == nil {
		return nil, errors.New("checkout: payment provider is required")
	}
	if cfg.Schedule.PriorityFees == nil {
		cfg.Schedule = pricing.DefaultSchedule()
	}
	views := cfg.Views
	if views == nil {
		views = navigation.NewNavigator(nil)
	}
	records := cfg.States
	if records == nil {
		records = NewMemoryStateStore(DefaultStateTTL)
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	hist, err := otel.Meter("github.com/noah-isme/market-shopper/internal/checkout").Float64Histogram(
		"shopper.checkout.submit.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of draft submissions by pricing mode and result."),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout: submit histogram: %w", err)
	}
	return &Service{
		drafts:         cfg.Drafts,
		schedule:       cfg.Schedule,
		validator:      order.NewValidator(cfg.Schedule),
		relay:          cfg.Relay,
		payments:       cfg.Payments,
		views:          views,
		records:        records,
		events:         cfg.Events,
		locker:         cfg.Locker,
		lockTTL:        lockTTL,
		logger:         cfg.Logger,
		states:         newTracker(),
		submitDuration: hist,
	}, nil
}

// Schedule returns the fee schedule the engine prices with.
func (s *Service) Schedule() pricing.Schedule {
	return s.schedule
}

// Views returns the navigator tracking each session's active view.
func (s *Service) Views() *navigation.Navigator {
	return s.views
}

// Breakdown prices the session's current draft.
func (s *Service) Breakdown(ctx context.Context, sessionID string) (BreakdownView, error) {
	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		return BreakdownView{}, err
	}
	return newBreakdownView(c.Breakdown(s.schedule)), nil
}

// Validate checks the session's draft without submitting it.
func (s *Service) Validate(ctx context.Context, sessionID string) (order.ValidationResult, error) {
	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		return order.ValidationResult{}, err
	}
	return s.validator.Validate(c), nil
}

// SubmitInput carries request-time additions to the draft.
type SubmitInput struct {
	Notes string `json:"notes"`
}

// Outcome reports where a submission left the session.
type Outcome struct {
	Mode      order.PricingMode `json:"pricingMode"`
	Status    Status            `json:"status"`
	Breakdown BreakdownView     `json:"breakdown"`
	Payment   *payment.Handoff  `json:"payment,omitempty"`
	View      navigation.State  `json:"view"`
	// Discarded is set when the session was dropped while the relay call was running.
	Discarded bool `json:"discarded,omitempty"`
}

// Submit validates the draft and dispatches it by pricing mode: budget drafts are handed to the
// payment provider, quote drafts are posted to the relay once.
func (s *Service) Submit(ctx context.Context, sessionID string, in SubmitInput) (Outcome, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Service.Submit")
	defer span.End()
	started := time.Now()

	rec, err := s.State(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	switch rec.Status {
	case StatusSubmitting:
		s.countQuote("in_flight")
		return Outcome{}, ErrSubmissionInFlight
	case StatusSubmitted:
		return Outcome{}, ErrAlreadySubmitted
	}

	c, err := draft.Load(ctx, s.drafts, sessionID)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("checkout.mode", string(c.Mode)))

	result := s.validator.Validate(c)
	if !result.OK {
		if obs.ValidationFailuresTotal != nil {
			obs.ValidationFailuresTotal.WithLabelValues(string(result.Kind)).Inc()
		}
		span.SetStatus(codes.Error, string(result.Kind))
		s.recordDuration(ctx, c.Mode, "invalid", started)
		return Outcome{}, result.Err()
	}

	var out Outcome
	if c.Mode == order.ModeBudget {
		out, err = s.handOff(ctx, sessionID, c)
	} else {
		out, err = s.submitQuote(ctx, sessionID, c, in)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.recordDuration(ctx, c.Mode, "error", started)
		return out, err
	}
	s.recordDuration(ctx, c.Mode, string(out.Status), started)
	return out, nil
}

func (s *Service) handOff(ctx context.Context, sessionID string, c order.Context) (Outcome, error) {
	tk, err := s.states.begin(sessionID, StatusValidated)
	if err != nil {
		return Outcome{}, err
	}
	bd := c.Breakdown(s.schedule)
	handoff, err := s.payments.InitiatePayment(ctx, payment.Request{
		Email:     c.Client.Email,
		Amount:    bd.FinalAmount,
		SessionID: sessionID,
	})
	if err != nil {
		s.settle(ctx, tk, Record{Status: StatusIdle, LastError: err.Error()})
		s.countHandoff(handoff.Provider, "error")
		return Outcome{}, err
	}
	view, err := s.views.Navigate(ctx, sessionID, navigation.ViewPayment, &navigation.PaymentPayload{
		Email:  handoff.Email,
		Amount: handoff.Amount,
	})
	if err != nil {
		s.settle(ctx, tk, Record{Status: StatusIdle, LastError: err.Error()})
		return Outcome{}, err
	}
	s.settle(ctx, tk, Record{Status: StatusHandedOffToPayment, Reference: handoff.Reference})
	s.countHandoff(handoff.Provider, "handed_off")
	s.emit(ctx, events.TopicPaymentHandedOff, sessionID, map[string]any{
		"reference": handoff.Reference,
		"amount":    handoff.Amount,
		"provider":  handoff.Provider,
	})
	return Outcome{
		Mode:      order.ModeBudget,
		Status:    StatusHandedOffToPayment,
		Breakdown: newBreakdownView(bd),
		Payment:   &handoff,
		View:      view,
	}, nil
}

func (s *Service) submitQuote(ctx context.Context, sessionID string, c order.Context, in SubmitInput) (Outcome, error) {
	tk, err := s.states.begin(sessionID, StatusSubmitting)
	if err != nil {
		if errors.Is(err, ErrSubmissionInFlight) {
			s.countQuote("in_flight")
		}
		return Outcome{}, err
	}
	settled := false
	finish := func(rec Record) bool {
		settled = true
		return s.settle(ctx, tk, rec)
	}
	defer func() {
		if !settled {
			s.settle(ctx, tk, Record{Status: StatusIdle, LastError: "submission aborted"})
		}
	}()

	if s.locker != nil {
		lease, err := s.locker.TryLock(ctx, submitLockKey(sessionID), s.lockTTL)
		if err != nil {
			if errors.Is(err, lock.ErrNotAcquired) {
				// another replica owns the attempt and will settle the record
				settled = true
				s.states.end(tk)
				s.countQuote("in_flight")
				return Outcome{}, ErrSubmissionInFlight
			}
			finish(Record{Status: StatusIdle, LastError: err.Error()})
			return Outcome{}, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
		}
		defer lease.Release(context.WithoutCancel(ctx))
	}

	if obs.SubmissionsInFlight != nil {
		obs.SubmissionsInFlight.Inc()
		defer obs.SubmissionsInFlight.Dec()
	}
	bd := c.Breakdown(s.schedule)
	// Once dispatched the quote is neither cancelled nor timed out by the caller going away.
	ctx = context.WithoutCancel(ctx)
	sent := time.Now()
	sendErr := s.relay.Send(ctx, relay.BuildFields(c, s.schedule, strings.TrimSpace(in.Notes)))
	result := relayResult(sendErr)
	if obs.RelayLatency != nil {
		obs.RelayLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(sent)))
	}
	s.countQuote(result)

	if sendErr != nil {
		if !finish(Record{Status: StatusFailed, LastError: sendErr.Error()}) {
			s.logger.Info().Str("session_id", sessionID).Str("result", result).Msg("quote_result_discarded")
			return Outcome{Mode: order.ModeQuote, Status: StatusFailed, Discarded: true}, sendErr
		}
		s.emit(ctx, events.TopicQuoteFailed, sessionID, map[string]any{"result": result, "error": sendErr.Error()})
		s.logger.Warn().Err(sendErr).Str("session_id", sessionID).Str("result", result).Msg("quote_submission_failed")
		return Outcome{}, sendErr
	}

	if !s.states.current(tk) {
		finish(Record{Status: StatusSubmitted})
		s.logger.Info().Str("session_id", sessionID).Str("result", result).Msg("quote_result_discarded")
		return Outcome{Mode: order.ModeQuote, Status: StatusSubmitted, Breakdown: newBreakdownView(bd), Discarded: true}, nil
	}
	if err := s.drafts.Clear(ctx, sessionID); err != nil {
		finish(Record{Status: StatusIdle, LastError: err.Error()})
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("draft_clear_failed")
		return Outcome{}, fmt.Errorf("checkout: clear draft after submission: %w", err)
	}
	finish(Record{Status: StatusSubmitted})
	view, err := s.views.Navigate(ctx, sessionID, navigation.ViewSubmitted, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("view_update_failed")
		view = navigation.State{View: navigation.ViewSubmitted}
	}
	s.emit(ctx, events.TopicQuoteSubmitted, sessionID, map[string]any{
		"items":        len(c.Items),
		"shoppingType": c.ShoppingType,
		"zone":         c.Zone,
		"priority":     c.Priority,
	})
	return Outcome{
		Mode:      order.ModeQuote,
		Status:    StatusSubmitted,
		Breakdown: newBreakdownView(bd),
		View:      view,
	}, nil
}

// settle stores the attempt's outcome and retires it. It reports false, leaving no record
// behind, when the session was discarded while the attempt ran.
func (s *Service) settle(ctx context.Context, tk ticket, rec Record) bool {
	if !s.states.current(tk) {
		return false
	}
	ctx = context.WithoutCancel(ctx)
	err := s.putRecord(ctx, tk.sessionID, rec)
	if !s.states.end(tk) {
		_ = s.records.Delete(ctx, tk.sessionID)
		return false
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", tk.sessionID).Str("status", string(rec.Status)).Msg("state_record_failed")
	}
	return true
}

func (s *Service) putRecord(ctx context.Context, sessionID string, rec Record) error {
	if rec.empty() {
		return s.records.Delete(ctx, sessionID)
	}
	return s.records.Save(ctx, sessionID, rec)
}

// clearRecord returns a settled session to Idle. A running attempt keeps its own status.
func (s *Service) clearRecord(ctx context.Context, sessionID string) error {
	if _, running := s.states.status(sessionID); running {
		return nil
	}
	return s.records.Delete(ctx, sessionID)
}

// CompletePayment handles the widget's success callback: the draft is cleared and the session
// returns to the order view. The reference is trusted as reported.
func (s *Service) CompletePayment(ctx context.Context, sessionID, reference string) (navigation.State, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return navigation.State{}, ErrReferenceRequired
	}
	if err := s.drafts.Clear(ctx, sessionID); err != nil {
		return navigation.State{}, fmt.Errorf("checkout: clear draft after payment: %w", err)
	}
	if err := s.clearRecord(ctx, sessionID); err != nil {
		return navigation.State{}, err
	}
	view, err := s.views.Navigate(ctx, sessionID, navigation.ViewOrder, nil)
	if err != nil {
		return navigation.State{}, err
	}
	s.countCallback("completed")
	s.emit(ctx, events.TopicPaymentCompleted, sessionID, map[string]any{"reference": reference})
	return view, nil
}

// CancelPayment handles the widget being closed. The draft and the view are left as they are.
func (s *Service) CancelPayment(ctx context.Context, sessionID string) (navigation.State, error) {
	if err := s.clearRecord(ctx, sessionID); err != nil {
		return navigation.State{}, err
	}
	s.countCallback("cancelled")
	s.emit(ctx, events.TopicPaymentCancelled, sessionID, nil)
	return s.views.Current(ctx, sessionID)
}

// Discard clears the draft and forgets the session. A quote still in flight for it completes
// without touching the new state.
func (s *Service) Discard(ctx context.Context, sessionID string) error {
	if err := s.drafts.Clear(ctx, sessionID); err != nil {
		return err
	}
	s.states.drop(sessionID)
	if err := s.records.Delete(ctx, sessionID); err != nil {
		return err
	}
	return s.views.Forget(ctx, sessionID)
}

// State reports the session's lifecycle status, with the last failure message and payment
// reference when they apply. A running attempt takes precedence over the stored record.
func (s *Service) State(ctx context.Context, sessionID string) (Record, error) {
	if status, ok := s.states.status(sessionID); ok {
		return Record{Status: status}, nil
	}
	rec, ok, err := s.records.Load(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{Status: StatusIdle}, nil
	}
	return rec, nil
}

func submitLockKey(sessionID string) string {
	return "lock:submit:" + sessionID
}

func relayResult(err error) string {
	var rejected *relay.RejectedError
	switch {
	case err == nil:
		return "submitted"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, relay.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

func (s *Service) emit(ctx context.Context, topic, sessionID string, payload any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Emit(context.WithoutCancel(ctx), topic, sessionID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("session_id", sessionID).Msg("event_emit_failed")
	}
}

func (s *Service) recordDuration(ctx context.Context, mode order.PricingMode, result string, started time.Time) {
	s.submitDuration.Record(ctx, obs.DurationMillis(time.Since(started)), metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("result", result),
	))
}

func (s *Service) countQuote(result string) {
	if obs.QuoteSubmissionsTotal != nil {
		obs.QuoteSubmissionsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) countHandoff(provider, result string) {
	if provider == "" {
		provider = "paystack"
	}
	if obs.PaymentHandoffsTotal != nil {
		obs.PaymentHandoffsTotal.WithLabelValues(provider, result).Inc()
	}
}

func (s *Service) countCallback(outcome string) {
	if obs.PaymentCallbacksTotal != nil {
		obs.PaymentCallbacksTotal.WithLabelValues(outcome).Inc()
	}
}

// BreakdownView is the JSON shape of a cost breakdown.
type BreakdownView struct {
	GoodsTotal   decimal.Decimal `json:"goodsTotal"`
	BaseFee      int64           `json:"baseFee"`
	ServiceFee   decimal.Decimal `json:"serviceFee"`
	TransportFee int64           `json:"transportFee"`
	PriorityFee  int64           `json:"priorityFee"`
	FinalAmount  int64           `json:"finalAmount"`
	Display      string          `json:"display"`
}

func newBreakdownView(b pricing.Breakdown) BreakdownView {
	return BreakdownView{
		GoodsTotal:   b.GoodsTotal,
		BaseFee:      b.BaseFee,
		ServiceFee:   b.ServiceFee,
		TransportFee: b.TransportFee,
		PriorityFee:  b.PriorityFee,
		FinalAmount:  b.FinalAmount,
		Display:      "NGN " + pricing.FormatNaira(b.FinalAmount),
	}
}
