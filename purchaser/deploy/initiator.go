// Package deploy mints a bonding curve and ownership token for a content item
// and records the new token address.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/observability"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "deploy").Logger()
}

// Options configures an Initiator
type Options struct {
	Signer       chain.Signer
	Receipts     chain.ReceiptWaiter
	Factory      *chain.Factory
	Store        datastore.TokenAddressWriter
	Precondition chain.PreconditionFunc // optional
	Metrics      *observability.Metrics
}

// Initiator runs curve deployments for the connected issuer
type Initiator struct {
	opts   Options
	tracer trace.Tracer
}

func New(opts Options) (*Initiator, error) {
	switch {
	case opts.Signer == nil:
		return nil, errors.New("deploy: signer is required")
	case opts.Receipts == nil:
		return nil, errors.New("deploy: receipt waiter is required to read the token address")
	case opts.Factory == nil:
		return nil, errors.New("deploy: factory is required")
	case opts.Store == nil:
		return nil, errors.New("deploy: token address store is required")
	}
	return &Initiator{opts: opts, tracer: otel.Tracer("purchaser/deploy")}, nil
}

// Deploy creates the curve for req and persists its token address.
//
// A mined transaction without a CurveCreated log, or a submitted one whose
// receipt never arrives, yields ErrAmbiguousDeployment: the fee may be spent
// and the address is unknown. If the address is found but
// cannot be saved, the deployment is returned together with the error so the
// caller can record it by hand.
func (i *Initiator) Deploy(ctx context.Context, req models.DeploymentRequest) (*models.TokenDeployment, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	ctx, span := i.tracer.Start(ctx, "deploy.curve", trace.WithAttributes(
		attribute.String("content.id", req.ContentID),
		attribute.String("symbol", req.Symbol),
	))
	defer span.End()

	dep, err := i.deploy(ctx, req)
	outcome := "succeeded"
	if err != nil {
		outcome = string(models.Classify(err).Code)
		if dep != nil {
			outcome = "unsaved"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	i.opts.Metrics.Deployment(outcome)
	return dep, err
}

func (i *Initiator) deploy(ctx context.Context, req models.DeploymentRequest) (*models.TokenDeployment, error) {
	issuer := i.opts.Signer.Address()
	dlog := log.With().Str("content", req.ContentID).Str("issuer", issuer.Hex()).Logger()

	if i.opts.Precondition != nil {
		if err := i.opts.Precondition.Check(ctx); err != nil {
			return nil, err
		}
	}

	tx, err := i.opts.Factory.CreateCall(issuer, req)
	if err != nil {
		return nil, err
	}
	hash, err := i.opts.Signer.SendTransaction(ctx, tx)
	if err != nil {
		dlog.Warn().Err(err).Msg("Deployment not submitted")
		return nil, err
	}
	dlog.Info().Str("tx", hash.Hex()).Msg("Deployment submitted")

	receipt, err := i.opts.Receipts.WaitReceipt(ctx, hash)
	if err != nil {
		// submitted but unconfirmed: the fee may be spent and the address is unknown
		dlog.Error().Err(err).Str("tx", hash.Hex()).Msg("Deployment receipt unavailable")
		return nil, fmt.Errorf("%w: no receipt for tx %s: %w", models.ErrAmbiguousDeployment, hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: deployment %s", models.ErrTransactionReverted, hash.Hex())
	}

	token, ok := i.opts.Factory.FindCreatedToken(receipt)
	if !ok {
		dlog.Error().Str("tx", hash.Hex()).Msg("Deployment mined without a creation event")
		return nil, fmt.Errorf("%w: tx %s", models.ErrAmbiguousDeployment, hash.Hex())
	}

	dep := &models.TokenDeployment{
		ContentID:  req.ContentID,
		Token:      token,
		Issuer:     issuer,
		TxHash:     hash.Hex(),
		DeployedAt: time.Now().UTC(),
	}
	if err := i.opts.Store.SaveTokenAddress(ctx, *dep); err != nil {
		dlog.Error().Err(err).Str("token", token.Hex()).Msg("Token deployed but address not saved")
		return dep, fmt.Errorf("token %s deployed but not saved: %w", token.Hex(), err)
	}

	dlog.Info().Str("token", token.Hex()).Msg("Curve deployed")
	return dep, nil
}

func validate(req models.DeploymentRequest) error {
	var missing []string
	if strings.TrimSpace(req.ContentID) == "" {
		missing = append(missing, "content_id")
	}
	if strings.TrimSpace(req.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(req.Symbol) == "" {
		missing = append(missing, "symbol")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", models.ErrInvalidDeployment, strings.Join(missing, ", "))
	}
	return nil
}
