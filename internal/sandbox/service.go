package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/georgemunganga/printa-storefront/internal/modules/catalog"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/georgemunganga/printa-storefront/internal/modules/realtime"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// taxRate is the 16% Zambian VAT applied to every order.
var taxRate = decimal.RequireFromString("0.16")

// Publisher fans an event out to subscribed realtime connections.
type Publisher interface {
	Publish(ev realtime.Event)
}

// Service is the backend the storefront talks to.
type Service interface {
	// PlaceOrder prices the cart against the catalogue and persists a pending order.
	PlaceOrder(ctx context.Context, customerID string, req order.CreateRequest) (*order.Order, error)
	// GetOrder returns an order owned by customerID.
	GetOrder(ctx context.Context, customerID, id string) (*order.Order, error)
	// AdvanceOrder moves an order forward and publishes order.status_changed.
	AdvanceOrder(ctx context.Context, id string, status order.Status) (*order.Order, error)
	// ReportRiderLocation publishes rider.location_updated for an order in transit.
	ReportRiderLocation(ctx context.Context, id string, loc RiderLocation) error

	// InitiatePayment prompts the payer's handset. It does not wait for the outcome.
	InitiatePayment(ctx context.Context, customerID string, req payment.InitiateRequest) (*payment.Initiation, error)
	// GetPayment reports a transaction's status, verifying pending ones with the provider.
	GetPayment(ctx context.Context, customerID, id string) (*payment.StatusResult, error)
	// HandleWebhook applies a provider callback and publishes the outcome.
	HandleWebhook(ctx context.Context, provider Provider, payload WebhookPayload) (*Transaction, error)
	// SettlePayment forces the outcome of a pending transaction.
	SettlePayment(ctx context.Context, id string, req SettleRequest) (*payment.StatusResult, error)

	// Close cancels scheduled settlements.
	Close()
}

// Config tunes the simulated providers.
type Config struct {
	Currency    string
	FloatLimit  decimal.Decimal
	SettleAfter time.Duration
	Outcome     Outcome
}

// Option configures the service.
type Option func(*service)

func WithClock(c clock.Clock) Option              { return func(s *service) { s.clock = c } }
func WithLogger(l *slog.Logger) Option            { return func(s *service) { s.logger = l } }
func WithMetrics(m *observability.Metrics) Option { return func(s *service) { s.metrics = m } }
func WithPhonePlan(p payment.PhonePlan) Option    { return func(s *service) { s.plan = p } }

// WithGateways replaces the simulated provider adapters. Scheduled settlement is
// disabled for providers that are not simulated.
func WithGateways(g GatewayRegistry) Option { return func(s *service) { s.gateways = g } }

type service struct {
	store     Store
	catalog   catalog.Service
	gateways  GatewayRegistry
	settler   *Settler
	publisher Publisher
	plan      payment.PhonePlan
	currency  string
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	// settleMu serialises the read-check-write of a transaction's final status.
	settleMu sync.Mutex
}

// NewService wires the backend over a store, the catalogue and a publisher.
func NewService(store Store, products catalog.Service, publisher Publisher, cfg Config, opts ...Option) Service {
	s := &service{
		store:     store,
		catalog:   products,
		publisher: publisher,
		plan:      payment.Zambia,
		currency:  cfg.Currency,
		clock:     clock.New(),
		logger:    slog.Default(),
		metrics:   observability.NewMetrics(),
	}
	if s.currency == "" {
		s.currency = "ZMW"
	}
	if cfg.Outcome == "" {
		cfg.Outcome = OutcomeApprove
	}
	for _, opt := range opts {
		opt(s)
	}

	l := newLedger(s.clock, cfg.FloatLimit)
	if s.gateways == nil {
		s.gateways = GatewayRegistry{
			ProviderMTNMomo: &mtnMomoGateway{ledger: l},
			ProviderAirtel:  &airtelMoneyGateway{ledger: l},
		}
	}
	s.settler = newSettler(s.clock, l, cfg.SettleAfter, cfg.Outcome, func(ctx context.Context, p Provider, payload WebhookPayload) error {
		_, err := s.HandleWebhook(ctx, p, payload)
		return err
	}, s.logger)
	return s
}

func (s *service) Close() { s.settler.Stop() }

// ── Orders ────────────────────────────────────────────────────────────────────

func (s *service) PlaceOrder(ctx context.Context, customerID string, req order.CreateRequest) (*order.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CustomerID != "" && req.CustomerID != customerID {
		return nil, errs.New(errs.ErrAuth, "customer_id does not match the signed-in customer")
	}
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrAuth, "invalid customer", err)
	}

	items := make([]order.LineItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.LineItem{ProductID: catalog.NormaliseSKU(it.ProductID), Quantity: it.Quantity}
	}
	_, subtotal, err := s.catalog.Price(ctx, items)
	if err != nil {
		return nil, err
	}

	// ── Calculate totals ──────────────────────────────────────────────────────
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(taxRate).Round(2)

	o := &order.Order{
		ID:            uuid.New(),
		CustomerID:    cid,
		OrderNumber:   s.generateOrderNumber(),
		Items:         items,
		PaymentMethod: req.PaymentMethod,
		Delivery:      order.Delivery{Address: strings.TrimSpace(req.Delivery.Address), Notes: req.Delivery.Notes},
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         subtotal.Add(tax),
		Currency:      s.currency,
		Status:        order.StatusPending,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}
	s.metrics.OrdersCreated.Add(1)
	s.logger.Info("order placed", "order_id", o.ID, "order_number", o.OrderNumber,
		"payment_method", o.PaymentMethod, "total", o.Total.StringFixed(2))
	return o, nil
}

func (s *service) GetOrder(ctx context.Context, customerID, id string) (*order.Order, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return nil, errs.New(errs.ErrNotFound, "order not found")
	}
	o, err := s.store.GetOrder(ctx, oid)
	if err != nil {
		return nil, err
	}
	if customerID != "" && o.CustomerID.String() != customerID {
		return nil, errs.New(errs.ErrNotFound, "order not found")
	}
	return o, nil
}

func (s *service) AdvanceOrder(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	o, err := s.GetOrder(ctx, "", id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanAdvance(status) {
		return nil, errs.Newf(errs.ErrValidation, "invalid status transition: %s → %s", o.Status, status)
	}
	if err := s.store.UpdateOrderStatus(ctx, o.ID, status); err != nil {
		return nil, err
	}
	o.Status = status
	s.publish(realtime.EventOrderStatusChanged, o.ID.String(),
		realtime.OrderStatusChanged{OrderID: o.ID.String(), Status: string(status)})
	return o, nil
}

func (s *service) ReportRiderLocation(ctx context.Context, id string, loc RiderLocation) error {
	o, err := s.GetOrder(ctx, "", id)
	if err != nil {
		return err
	}
	if o.Status != order.StatusInTransit {
		return errs.Newf(errs.ErrValidation, "order %s is not in transit", o.OrderNumber)
	}
	s.publish(realtime.EventRiderLocationUpdated, o.ID.String(),
		realtime.RiderLocationUpdated{OrderID: o.ID.String(), Lat: loc.Lat, Lng: loc.Lng})
	return nil
}

// ── Payments ──────────────────────────────────────────────────────────────────

func (s *service) InitiatePayment(ctx context.Context, customerID string, req payment.InitiateRequest) (*payment.Initiation, error) {
	// Idempotency: return existing transaction if key already used
	if req.IdempotencyKey != "" {
		existing, err := s.store.GetPaymentByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return &payment.Initiation{TransactionID: existing.ID.String(), Status: existing.Status}, nil
		}
		if !errs.IsNotFound(err) {
			return nil, err
		}
	}

	o, err := s.GetOrder(ctx, customerID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != order.MethodPushPayment {
		return nil, errs.Newf(errs.ErrValidation, "order %s is not a push-payment order", o.OrderNumber)
	}
	if o.Status != order.StatusPending {
		return nil, errs.Newf(errs.ErrValidation, "order %s is %s and cannot be paid", o.OrderNumber, o.Status)
	}
	if !req.Amount.Equal(o.Total) {
		return nil, errs.Newf(errs.ErrValidation, "amount %s does not match the order total %s",
			req.Amount.StringFixed(2), o.Total.StringFixed(2))
	}
	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}

	phone := s.plan.Normalize(req.PhoneNumber)
	if !s.plan.Validate(phone) {
		return nil, errs.Newf(errs.ErrValidation, "%q is not a valid mobile money number", req.PhoneNumber)
	}
	provider, ok := ProviderFor(phone)
	if !ok {
		return nil, errs.Newf(errs.ErrValidation, "no mobile money provider serves %s", phone)
	}

	previous, err := s.store.ListPaymentsByOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range previous {
		if p.Status == payment.TxSuccess {
			return nil, errs.Newf(errs.ErrValidation, "order %s is already paid", o.OrderNumber)
		}
	}

	tx := &Transaction{
		ID:             uuid.New(),
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		Provider:       provider,
		Status:         payment.TxPending,
		Amount:         o.Total,
		Currency:       currency,
		PhoneNumber:    phone,
		IdempotencyKey: req.IdempotencyKey,
	}

	// Persist as pending first so a provider failure still leaves a record.
	if err := s.store.CreatePayment(ctx, tx); err != nil {
		return nil, err
	}

	gw, ok := s.gateways[provider]
	if !ok {
		s.failTransaction(ctx, tx, "NO_GATEWAY", "no gateway registered for provider: "+string(provider))
		return nil, errs.Newf(errs.ErrGateway, "%s payments are not available", provider)
	}

	resp, err := gw.Initiate(ctx, ProviderRequest{
		Reference:   tx.ID.String(),
		PhoneNumber: phone,
		Amount:      tx.Amount,
		Currency:    currency,
	})
	if err != nil {
		s.failTransaction(ctx, tx, "GATEWAY_ERROR", errs.Reason(err))
		s.logger.Warn("provider rejected payment", "order_id", o.ID, "provider", provider, "error", err)
		if errs.IsGateway(err) || errs.IsValidation(err) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrTransport, "payment provider unavailable", err)
	}

	tx.ProviderRef = resp.ProviderRef
	tx.ProviderStatus = resp.ProviderStatus
	if err := s.store.UpdatePayment(ctx, tx); err != nil {
		return nil, err
	}
	s.metrics.PaymentsInitiated.Add(1)
	s.logger.Info("payment initiated", "order_id", o.ID, "transaction_id", tx.ID,
		"provider", provider, "provider_ref", tx.ProviderRef)

	if _, simulated := gw.(interface{ simulated() }); simulated {
		s.settler.Schedule(tx)
	}
	return &payment.Initiation{TransactionID: tx.ID.String(), Status: tx.Status, Message: resp.Message}, nil
}

func (s *service) failTransaction(ctx context.Context, tx *Transaction, providerStatus, reason string) {
	tx.Status = payment.TxFailed
	tx.ProviderStatus = providerStatus
	tx.LastError = reason
	if err := s.store.UpdatePayment(ctx, tx); err != nil {
		s.logger.Error("could not record failed payment", "transaction_id", tx.ID, "error", err)
	}
}

func (s *service) getTransaction(ctx context.Context, customerID, id string) (*Transaction, error) {
	tid, err := uuid.Parse(id)
	if err != nil {
		return nil, errs.New(errs.ErrNotFound, "payment transaction not found")
	}
	tx, err := s.store.GetPayment(ctx, tid)
	if err != nil {
		return nil, err
	}
	if customerID != "" && tx.CustomerID.String() != customerID {
		return nil, errs.New(errs.ErrNotFound, "payment transaction not found")
	}
	return tx, nil
}

func (s *service) GetPayment(ctx context.Context, customerID, id string) (*payment.StatusResult, error) {
	tx, err := s.getTransaction(ctx, customerID, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return tx.Result(), nil
	}

	gw, ok := s.gateways[tx.Provider]
	if !ok || tx.ProviderRef == "" {
		return tx.Result(), nil
	}
	resp, err := gw.Verify(ctx, tx.ProviderRef)
	if err != nil {
		s.logger.Warn("provider verification failed", "transaction_id", tx.ID, "error", err)
		return tx.Result(), nil
	}
	if NormaliseStatus(tx.Provider, resp.ProviderStatus).Terminal() {
		tx, err = s.apply(ctx, tx.ID, resp.ProviderStatus, resp.Reason)
		if err != nil {
			return nil, err
		}
	}
	return tx.Result(), nil
}

func (s *service) HandleWebhook(ctx context.Context, provider Provider, payload WebhookPayload) (*Transaction, error) {
	tx, err := s.store.GetPaymentByProviderRef(ctx, provider, payload.ExternalRef)
	if errs.IsNotFound(err) {
		return nil, errs.Newf(errs.ErrNotFound, "no transaction found for provider_ref: %s", payload.ExternalRef)
	}
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, tx.ID, payload.Status, payload.Reason)
}

// apply records a provider status. A transaction settles at most once: later callbacks
// for a terminal transaction change nothing and publish nothing.
func (s *service) apply(ctx context.Context, id uuid.UUID, providerStatus, reason string) (*Transaction, error) {
	s.settleMu.Lock()
	defer s.settleMu.Unlock()
	tx, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return tx, nil
	}
	status := NormaliseStatus(tx.Provider, providerStatus)
	tx.ProviderStatus = providerStatus
	switch status {
	case payment.TxSuccess:
		tx.Status = payment.TxSuccess
		tx.ReceiptID = fmt.Sprintf("RCP-%s-%s", s.clock.Now().UTC().Format("20060102"),
			strings.ToUpper(uuid.NewString()[:6]))
	case payment.TxFailed:
		tx.Status = payment.TxFailed
		if reason == "" {
			reason = "The payment was declined"
		}
		tx.LastError = reason
	}
	if err := s.store.UpdatePayment(ctx, tx); err != nil {
		return nil, err
	}

	orderID := tx.OrderID.String()
	switch tx.Status {
	case payment.TxSuccess:
		s.metrics.PaymentsConfirmed.Add(1)
		s.logger.Info("payment confirmed", "transaction_id", tx.ID, "receipt_id", tx.ReceiptID)
		if _, err := s.AdvanceOrder(ctx, orderID, order.StatusApproved); err != nil {
			s.logger.Warn("could not approve paid order", "order_id", orderID, "error", err)
		}
		s.publish(realtime.EventPaymentConfirmed, orderID, realtime.PaymentConfirmed{
			OrderID:       orderID,
			TransactionID: tx.ID.String(),
			ReceiptID:     tx.ReceiptID,
			Amount:        tx.Amount,
		})
	case payment.TxFailed:
		s.metrics.PaymentsFailed.Add(1)
		s.logger.Info("payment failed", "transaction_id", tx.ID, "reason", tx.LastError)
		s.publish(realtime.EventPaymentFailed, orderID, realtime.PaymentFailed{
			OrderID:       orderID,
			TransactionID: tx.ID.String(),
			Reason:        tx.LastError,
		})
	}
	return tx, nil
}

func (s *service) SettlePayment(ctx context.Context, id string, req SettleRequest) (*payment.StatusResult, error) {
	outcome, ok := ParseOutcome(req.Outcome)
	if !ok || outcome == OutcomeIgnore {
		return nil, errs.Newf(errs.ErrValidation, "outcome must be approve or decline, got %q", req.Outcome)
	}
	tx, err := s.getTransaction(ctx, "", id)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return nil, errs.Newf(errs.ErrValidation, "payment %s is already %s", tx.ID, tx.Status)
	}
	if err := s.settler.Settle(ctx, tx, outcome, req.Reason); err != nil {
		return nil, err
	}
	return s.GetPayment(ctx, "", id)
}

func (s *service) publish(t realtime.EventType, correlationID string, payload any) {
	if s.publisher == nil {
		return
	}
	ev, err := realtime.NewEvent(t, correlationID, payload)
	if err != nil {
		s.logger.Error("could not encode event", "event", t, "error", err)
		return
	}
	s.publisher.Publish(ev)
}

func (s *service) generateOrderNumber() string {
	date := s.clock.Now().UTC().Format("20060102")
	suffix := strings.ToUpper(uuid.New().String()[:4])
	return fmt.Sprintf("ORD-%s-%s", date, suffix)
}
