// Package consumers implements the Event Consumers named in §4.6:
// handlers subscribed to the Event Bus that react to events owned by other
// collaborators (order completion, payout processing) rather than to
// mutations this core itself performs.
package consumers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

// Consumers holds the Durable Store handle shared by every handler in this
// package; each handler is registered individually with the Event Bus so a
// failure in one never blocks another (§4.6 isolation requirement).
type Consumers struct {
	store store.Store
}

func New(st store.Store) *Consumers {
	return &Consumers{store: st}
}

// Register subscribes every handler in this package to sub.
func (c *Consumers) Register(sub eventbus.Subscriber) {
	sub.Subscribe("OrderCompleted", c.OrderCompleted)
	sub.Subscribe("PaymentPayoutProcessed", c.PaymentPayoutProcessed)
}

// OrderCompleted looks up the ACCEPTED offer for (orderId, porterId) and
// records a JOB_PAYMENT earning. Idempotent on (orderId, porterId,
// JOB_PAYMENT): a redelivered event must not double-credit the porter.
func (c *Consumers) OrderCompleted(ctx context.Context, e eventbus.Event) error {
	orderID, _ := e.Fields["orderId"].(string)
	porterID, _ := e.Fields["porterId"].(string)
	amountMinor, _ := toInt64(e.Fields["amountMinor"])
	if orderID == "" || porterID == "" {
		return fmt.Errorf("OrderCompleted event missing orderId/porterId")
	}

	offer, err := c.store.FindAcceptedOffer(ctx, orderID, porterID)
	if err != nil {
		return err
	}
	if offer == nil {
		log.Printf("consumers: OrderCompleted for %s/%s has no accepted offer on record, skipping", orderID, porterID)
		return nil
	}

	existing, err := c.store.OrderEarnings(ctx, orderID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.PorterID == porterID && e.Type == store.EarningJobPayment {
			return nil // already recorded, redelivery is a no-op.
		}
	}

	earning := &store.PorterEarning{
		EarningID: newEarningID(), PorterID: porterID, Type: store.EarningJobPayment,
		AmountMinor: amountMinor, Status: store.EarningPending, OrderID: orderID,
		Description: "job payment",
	}
	if err := c.store.RecordEarning(ctx, earning); err != nil {
		return err
	}
	if err := c.store.IncrementCompletedJobs(ctx, porterID); err != nil {
		log.Printf("consumers: OrderCompleted failed to increment completed-job count for %s: %v", porterID, err)
	}
	observability.EarningsRecorded.WithLabelValues(string(store.EarningJobPayment)).Inc()
	return nil
}

// PaymentPayoutProcessed bulk-transitions every earning tagged with
// payoutId to PAID_OUT, but only when the payout itself completed (§4.6);
// a failed or still-processing payout must leave CONFIRMED earnings alone
// so a later redelivery with status=completed can still apply.
func (c *Consumers) PaymentPayoutProcessed(ctx context.Context, e eventbus.Event) error {
	payoutID, _ := e.Fields["payoutId"].(string)
	if payoutID == "" {
		return fmt.Errorf("PaymentPayoutProcessed event missing payoutId")
	}
	status, _ := e.Fields["status"].(string)
	if status != "completed" {
		log.Printf("consumers: PaymentPayoutProcessed for payout %s has status %q, not marking earnings paid out", payoutID, status)
		return nil
	}
	n, err := c.store.BulkUpdateEarningsByPayout(ctx, payoutID, store.EarningPaidOut)
	if err != nil {
		return err
	}
	log.Printf("consumers: PaymentPayoutProcessed marked %d earnings paid out for payout %s", n, payoutID)
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func newEarningID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return "earn_" + hex.EncodeToString(b[:])
}
