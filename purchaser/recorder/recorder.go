// Package recorder writes the audit row for a successful purchase.
// A failed write is logged and counted but never fails the purchase:
// the on-chain buy already succeeded.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/observability"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "recorder").Logger()
}

const DefaultTimeout = 10 * time.Second

// Recorder appends purchase records on a best-effort basis
type Recorder struct {
	writer   datastore.PurchaseWriter
	timeout  time.Duration
	metrics  *observability.Metrics
	failures atomic.Int64
}

func New(writer datastore.PurchaseWriter, timeout time.Duration, metrics *observability.Metrics) *Recorder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Recorder{writer: writer, timeout: timeout, metrics: metrics}
}

// Record writes rec. It never returns an error.
func (r *Recorder) Record(ctx context.Context, rec models.PurchaseRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	err := r.writer.AppendPurchase(ctx, rec)
	switch {
	case err == nil:
		log.Debug().Str("tx", rec.TxHash).Str("token", rec.TokenID.Hex()).Msg("Purchase recorded")
	case errors.Is(err, datastore.ErrDuplicateKey):
		log.Debug().Str("tx", rec.TxHash).Msg("Purchase already recorded")
	default:
		wrapped := fmt.Errorf("%w: %w", models.ErrRecorderWriteFailed, err)
		r.failures.Add(1)
		r.metrics.RecorderFailure()
		log.Error().Err(wrapped).
			Str("tx", rec.TxHash).
			Str("token", rec.TokenID.Hex()).
			Str("buyer", rec.Buyer.Hex()).
			Msg("Purchase record lost, holder list may be stale")
	}
}

// Failures returns the number of records that could not be written
func (r *Recorder) Failures() int64 {
	return r.failures.Load()
}
