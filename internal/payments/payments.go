package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"

	"github.com/travelrizz/travelrizz-backend/internal/audit"
	"github.com/travelrizz/travelrizz-backend/internal/metrics"
)

var (
	ErrNotConfigured = errors.New("payments are not configured")
	ErrMissingParams = errors.New("session ID and reference ID required")
)

// CheckoutSessions reads Stripe checkout sessions.
type CheckoutSessions interface {
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeSessions returns the Stripe API client for checkout sessions.
func NewStripeSessions(secretKey string) CheckoutSessions {
	return &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
}

// Metrics is the part of the metrics store payments update.
type Metrics interface {
	Get(ctx context.Context, clientID string) (*metrics.Metrics, error)
	SetPaymentReference(ctx context.Context, clientID, reference string) (*metrics.Metrics, error)
	MarkPaid(ctx context.Context, clientID, reference string) (*metrics.Metrics, error)
}

// Verification is the outcome of checking a checkout session.
type Verification struct {
	Verified          bool   `json:"verified"`
	ClientReferenceID string `json:"client_reference_id,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Service issues checkout references and verifies completed payments.
type Service struct {
	sessions CheckoutSessions
	metrics  Metrics
	audit    audit.Logger
	logger   *logrus.Logger
}

// NewService creates a payment service. sessions may be nil when Stripe is
// not configured; verification then fails with ErrNotConfigured.
func NewService(sessions CheckoutSessions, metricsStore Metrics, auditLog audit.Logger, logger *logrus.Logger) *Service {
	return &Service{
		sessions: sessions,
		metrics:  metricsStore,
		audit:    auditLog,
		logger:   logger,
	}
}

// NewReference creates the reference passed to checkout as
// client_reference_id and remembers it for the client.
func (s *Service) NewReference(ctx context.Context, clientID string) (string, error) {
	reference := "ref_" + uuid.New().String()
	if _, err := s.metrics.SetPaymentReference(ctx, clientID, reference); err != nil {
		return "", err
	}
	s.audit.Log(ctx, audit.NewEvent(audit.EventPaymentRef, clientID).With("reference", reference))
	return reference, nil
}

// Verify checks that the checkout session is paid and carries referenceID,
// and unlocks the premium tier when it does.
func (s *Service) Verify(ctx context.Context, clientID, sessionID, referenceID string) (*Verification, error) {
	if sessionID == "" || referenceID == "" {
		return nil, ErrMissingParams
	}
	if s.sessions == nil {
		return nil, ErrNotConfigured
	}

	m, err := s.metrics.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if m.IsPaid && m.PaymentReference == referenceID {
		return &Verification{Verified: true, ClientReferenceID: referenceID}, nil
	}
	if m.PaymentReference != "" && m.PaymentReference != referenceID {
		s.logger.WithFields(logrus.Fields{
			"client_id": clientID,
			"reference": referenceID,
		}).Warn("Payment reference does not match the client's checkout")
		return &Verification{Verified: false, Message: "reference mismatch"}, nil
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.sessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("error verifying payment: %w", err)
	}

	verified := cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid &&
		cs.ClientReferenceID == referenceID

	evt := audit.NewEvent(audit.EventPaymentVerify, clientID).
		With("checkout_session", sessionID).
		With("payment_status", string(cs.PaymentStatus))
	if verified {
		evt.Result = "paid"
	} else {
		evt.Result = "unverified"
	}
	s.audit.Log(ctx, evt)

	if !verified {
		return &Verification{Verified: false, ClientReferenceID: cs.ClientReferenceID}, nil
	}

	if _, err := s.metrics.MarkPaid(ctx, clientID, referenceID); err != nil {
		return nil, err
	}
	s.logger.WithField("client_id", clientID).Info("Payment verified")
	return &Verification{Verified: true, ClientReferenceID: cs.ClientReferenceID}, nil
}
