package datastore

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "datastore").Logger()
}

// Fanout writes to a primary store and mirrors purchases to secondary sinks.
// Only the primary's result is returned; secondary failures are logged.
type Fanout struct {
	primary     Store
	secondaries []PurchaseWriter
}

var _ Store = (*Fanout)(nil)

func NewFanout(primary Store, secondaries ...PurchaseWriter) *Fanout {
	return &Fanout{primary: primary, secondaries: secondaries}
}

func (f *Fanout) AppendPurchase(ctx context.Context, rec models.PurchaseRecord) error {
	err := f.primary.AppendPurchase(ctx, rec)
	for _, sink := range f.secondaries {
		if serr := sink.AppendPurchase(ctx, rec); serr != nil && !errors.Is(serr, ErrDuplicateKey) {
			log.Warn().Err(serr).Str("tx", rec.TxHash).Msg("Secondary purchase write failed")
		}
	}
	return err
}

func (f *Fanout) SaveTokenAddress(ctx context.Context, dep models.TokenDeployment) error {
	return f.primary.SaveTokenAddress(ctx, dep)
}
