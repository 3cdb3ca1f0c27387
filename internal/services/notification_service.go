// Package services – NotificationService
//
// NotificationService routes payment provider webhook notifications to their
// handlers. It runs after the HTTP layer has already acknowledged the
// delivery, so every outcome is logged here; returned errors only feed the
// background task runner's metrics.
//
// A notification key ("<topic>-<resourceId>") is marked in the idempotency
// cache only after its handler succeeds, so a transient failure (provider
// down, database error) can be retried by a later redelivery. Payments still
// pending are not marked either: the provider re-notifies the same id when
// the status moves on. State-change deliveries ("*.updated") skip the cache
// lookup and always re-fetch.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/idempotency"
	"github.com/tbourn/course-platform-backend/internal/mercadopago"
)

// Topics the router understands.
const (
	TopicPayment       = "payment"
	TopicMerchantOrder = "merchant_order"
	TopicChargeback    = "chargeback"
	TopicChargebacks   = "chargebacks"
	TopicRefund        = "refund"
	TopicRefunds       = "refunds"
)

// FlexID decodes a JSON string or number into its string form.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// Notification is a decoded webhook payload.
type Notification struct {
	ID          FlexID `json:"id"`
	LiveMode    bool   `json:"live_mode"`
	Type        string `json:"type"`
	Action      string `json:"action"`
	DateCreated string `json:"date_created"`
	APIVersion  string `json:"api_version"`
	UserID      FlexID `json:"user_id"`
	Data        struct {
		ID FlexID `json:"id"`
	} `json:"data"`
}

// Topic prefers Type, falling back to the first dot-separated segment of
// Action ("payment.updated" -> "payment").
func (n Notification) Topic() string {
	if t := strings.TrimSpace(n.Type); t != "" {
		return t
	}
	if a := strings.TrimSpace(n.Action); a != "" {
		return strings.SplitN(a, ".", 2)[0]
	}
	return ""
}

// StateChange reports whether the delivery announces an update to an
// existing resource ("payment.updated").
func (n Notification) StateChange() bool {
	return strings.HasSuffix(strings.TrimSpace(n.Action), ".updated")
}

// ResourceID is data.id, falling back to the notification id.
func (n Notification) ResourceID() string {
	if n.Data.ID != "" {
		return string(n.Data.ID)
	}
	return string(n.ID)
}

// errNotFinal is returned for payments whose status can still change.
// Dispatch treats it as handled but leaves the key unmarked.
var errNotFinal = errors.New("payment not in a final state")

// PaymentFetcher loads the authoritative payment resource.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error)
}

// Granter writes and revokes entitlements for payments.
type Granter interface {
	Grant(ctx context.Context, p ConfirmedPayment) (*GrantResult, error)
	RevokeTransaction(ctx context.Context, transactionID, status string) (int64, error)
}

// NotificationService dispatches notifications by topic.
type NotificationService struct {
	Payments PaymentFetcher
	Grants   Granter
	Cache    idempotency.Cache
	Log      zerolog.Logger
}

// NewNotificationService wires the router with the global logger.
func NewNotificationService(payments PaymentFetcher, grants Granter, cache idempotency.Cache) *NotificationService {
	return &NotificationService{Payments: payments, Grants: grants, Cache: cache, Log: log.Logger}
}

// Dispatch handles one notification. Duplicates (per the cache) and unknown
// topics return nil without side effects.
func (s *NotificationService) Dispatch(ctx context.Context, n Notification) error {
	topic, resourceID := n.Topic(), n.ResourceID()

	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("webhook.topic", topic),
			attribute.String("webhook.resource_id", resourceID),
		),
	)
	defer span.End()

	lg := s.Log.With().Str("topic", topic).Str("resource_id", resourceID).Logger()
	key := idempotency.Key(topic, resourceID)

	if s.Cache != nil && !n.StateChange() {
		seen, err := s.Cache.Seen(ctx, key)
		if err != nil {
			lg.Warn().Err(err).Msg("idempotency cache lookup failed, continuing")
		} else if seen {
			lg.Info().Msg("notification already processed")
			webhookNotifications.WithLabelValues(topic, "duplicate").Inc()
			return nil
		}
	}

	var err error
	switch topic {
	case TopicPayment:
		err = s.HandlePayment(ctx, resourceID)
	case TopicMerchantOrder:
		err = s.HandleMerchantOrder(ctx, resourceID)
	case TopicChargeback, TopicChargebacks:
		err = s.HandleChargeback(ctx, resourceID)
	case TopicRefund, TopicRefunds:
		err = s.HandleRefund(ctx, resourceID)
	default:
		lg.Warn().Msg("unknown notification topic, dropping")
		webhookNotifications.WithLabelValues("unknown", "ignored").Inc()
		return nil
	}
	if errors.Is(err, errNotFinal) {
		webhookNotifications.WithLabelValues(topic, "pending").Inc()
		return nil
	}
	if err != nil {
		lg.Error().Err(err).Msg("notification handling failed")
		webhookNotifications.WithLabelValues(topic, "failed").Inc()
		return err
	}

	if s.Cache != nil {
		if err := s.Cache.Mark(ctx, key); err != nil {
			lg.Warn().Err(err).Msg("marking notification as processed failed")
		}
	}
	webhookNotifications.WithLabelValues(topic, "handled").Inc()
	return nil
}

// HandlePayment re-fetches the payment and acts on its status: approved
// grants, refunded or charged back revokes, rejected or cancelled is
// recorded. Any other status returns errNotFinal.
// Terminal problems with the payment itself (missing metadata, unknown user,
// duplicate transaction) are logged and reported as handled.
func (s *NotificationService) HandlePayment(ctx context.Context, paymentID string) error {
	lg := s.Log.With().Str("payment_id", paymentID).Logger()

	p, err := s.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	lg.Info().Str("status", p.Status).Float64("amount", p.TransactionAmount).Str("currency", p.CurrencyID).
		Msg("payment fetched")

	switch p.Status {
	case mercadopago.StatusApproved:
	case mercadopago.StatusRefunded, mercadopago.StatusChargedBack:
		return s.revokePayment(ctx, p, lg)
	case mercadopago.StatusRejected, mercadopago.StatusCancelled:
		lg.Info().Str("status", p.Status).Msg("payment not approved, nothing to grant")
		return nil
	default:
		lg.Info().Str("status", p.Status).Msg("payment still open, waiting for a status change")
		return errNotFinal
	}

	cp, err := ConfirmedFromPayment(p)
	if err != nil {
		lg.Error().Err(err).Str("external_reference", p.ExternalReference).Msg("payment cannot be granted")
		return nil
	}

	res, err := s.Grants.Grant(ctx, cp)
	switch {
	case err == nil:
		lg.Info().Int("created", len(res.Created)).Int("reused", len(res.Reused)).Msg("entitlements granted")
		return nil
	case errors.Is(err, ErrAlreadyProcessed):
		lg.Info().Msg("payment already processed")
		return nil
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrNoCategories),
		errors.Is(err, ErrMissingUser), errors.Is(err, ErrMissingCategories):
		lg.Error().Err(err).Str("user_id", cp.UserID).Strs("category_ids", cp.CategoryIDs).Msg("payment cannot be granted")
		return nil
	default:
		return err
	}
}

// HandleMerchantOrder only records the event; orders carry no access change.
func (s *NotificationService) HandleMerchantOrder(_ context.Context, orderID string) error {
	s.Log.Info().Str("merchant_order_id", orderID).Msg("merchant order notification received")
	return nil
}

// HandleChargeback revokes the payment's entitlements once the provider
// reports it charged back.
func (s *NotificationService) HandleChargeback(ctx context.Context, resourceID string) error {
	return s.revokeIfReversed(ctx, resourceID, "chargeback")
}

// HandleRefund revokes the payment's entitlements once the provider reports
// it refunded.
func (s *NotificationService) HandleRefund(ctx context.Context, resourceID string) error {
	return s.revokeIfReversed(ctx, resourceID, "refund")
}

func (s *NotificationService) revokeIfReversed(ctx context.Context, paymentID, kind string) error {
	lg := s.Log.With().Str("payment_id", paymentID).Str("kind", kind).Logger()

	p, err := s.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		var ue *mercadopago.UpstreamError
		if errors.As(err, &ue) && ue.Status == 404 {
			lg.Warn().Msg("reversal does not reference a known payment, ignoring")
			return nil
		}
		return err
	}

	switch p.Status {
	case mercadopago.StatusRefunded, mercadopago.StatusChargedBack:
		return s.revokePayment(ctx, p, lg)
	default:
		// Reversals in progress keep the key open for the final delivery.
		lg.Warn().Str("status", p.Status).Msg("reversal notification for a payment that is not reversed")
		return errNotFinal
	}
}

// revokePayment deactivates the entitlements bought with a refunded or
// charged back payment.
func (s *NotificationService) revokePayment(ctx context.Context, p *mercadopago.Payment, lg zerolog.Logger) error {
	status := domain.PaymentStatusRefunded
	if p.Status == mercadopago.StatusChargedBack {
		status = domain.PaymentStatusChargedBack
	}
	n, err := s.Grants.RevokeTransaction(ctx, p.TransactionID(), status)
	if err != nil {
		return err
	}
	lg.Warn().Int64("deactivated", n).Str("payment_status", status).Msg("entitlements revoked after reversal")
	return nil
}
