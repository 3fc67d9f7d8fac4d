// Package confirm detects completion of swaps whose result the service cannot
// read directly. The default strategy watches the payer's balance of the
// output asset and treats the first increase as the swap's output.
package confirm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "confirm").Logger()
}

// Strategy decides when a submitted swap has produced output
type Strategy interface {
	// Snapshot records the baseline balance. Call it immediately before submitting the swap.
	Snapshot(ctx context.Context, asset models.Asset, owner common.Address) (models.BalanceSnapshot, error)
	// Await blocks until output is observed, the budget runs out, or ctx ends
	Await(ctx context.Context, baseline models.BalanceSnapshot) (*Observation, error)
}

// Observation is a confirmed positive balance change
type Observation struct {
	Delta    *uint256.Int
	Final    models.BalanceSnapshot
	Attempts int
}

// BalanceReader is the chain read the detector needs
type BalanceReader interface {
	BalanceOf(ctx context.Context, asset models.Asset, owner common.Address) (*uint256.Int, error)
}

// PollConfig bounds the detector's polling budget
type PollConfig struct {
	WarmUp      time.Duration
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollConfig waits 5s, then polls once per second for up to a minute
func DefaultPollConfig() PollConfig {
	return PollConfig{
		WarmUp:      5 * time.Second,
		Interval:    time.Second,
		MaxAttempts: 60,
	}
}

// PollHook observes each poll; used for metrics
type PollHook func(attempt int, err error)

// BalanceDiff is the balance-diff Strategy
type BalanceDiff struct {
	reader BalanceReader
	cfg    PollConfig
	onPoll PollHook
	now    func() time.Time
}

// NewBalanceDiff builds the default detector. Zero fields of cfg take defaults.
func NewBalanceDiff(reader BalanceReader, cfg PollConfig, onPoll PollHook) *BalanceDiff {
	def := DefaultPollConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.WarmUp < 0 {
		cfg.WarmUp = 0
	}
	return &BalanceDiff{reader: reader, cfg: cfg, onPoll: onPoll, now: time.Now}
}

func (b *BalanceDiff) Snapshot(ctx context.Context, asset models.Asset, owner common.Address) (models.BalanceSnapshot, error) {
	amount, err := b.reader.BalanceOf(ctx, asset, owner)
	if err != nil {
		return models.BalanceSnapshot{}, fmt.Errorf("failed to snapshot %s balance: %w", asset.Symbol, err)
	}
	return models.BalanceSnapshot{
		Asset:      asset,
		Owner:      owner,
		Amount:     amount,
		ObservedAt: b.now().UTC(),
	}, nil
}

// Await polls until balance - baseline > 0. The first positive delta is final.
// When the budget is exhausted it returns ErrSwapYieldedNoOutput once and stops.
func (b *BalanceDiff) Await(ctx context.Context, baseline models.BalanceSnapshot) (*Observation, error) {
	if baseline.Amount == nil {
		return nil, fmt.Errorf("baseline snapshot for %s has no amount", baseline.Asset.Symbol)
	}

	if err := sleep(ctx, b.cfg.WarmUp); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, b.cfg.Interval); err != nil {
				return nil, err
			}
		}

		current, err := b.reader.BalanceOf(ctx, baseline.Asset, baseline.Owner)
		if b.onPoll != nil {
			b.onPoll(attempt, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Int("attempt", attempt).Str("asset", baseline.Asset.Symbol).
				Msg("Balance poll failed")
			continue
		}

		if current.Gt(baseline.Amount) {
			delta := new(uint256.Int).Sub(current, baseline.Amount)
			log.Info().Int("attempt", attempt).Str("asset", baseline.Asset.Symbol).
				Str("delta", delta.Dec()).Msg("Swap output detected")
			return &Observation{
				Delta: delta,
				Final: models.BalanceSnapshot{
					Asset:      baseline.Asset,
					Owner:      baseline.Owner,
					Amount:     current,
					ObservedAt: b.now().UTC(),
				},
				Attempts: attempt,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w after %d polls", models.ErrSwapYieldedNoOutput, b.cfg.MaxAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
