package router

import (
	"context"
	"sync"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Precondition is checked before every signature request
type Precondition interface {
	Check(ctx context.Context) error
}

// Pipeline is the ordered execution of one route for one intent.
// Only the orchestrator mutates it; readers take snapshots with View.
type Pipeline struct {
	mu sync.RWMutex

	id           string
	intent       models.PaymentIntent
	route        *Route
	precondition Precondition

	steps         []models.SwapStep
	status        models.PipelineStatus
	stage         models.Stage
	failureReason string
	failureCode   models.ErrorCode
	updatedAt     time.Time

	swapSubmitted bool
	result        *models.TradeResult
	err           error
	done          chan struct{}
}

// NewPipeline creates an idle pipeline. precondition may be nil.
func NewPipeline(intent models.PaymentIntent, route *Route, precondition Precondition) *Pipeline {
	return &Pipeline{
		id:           uuid.NewString(),
		intent:       intent,
		route:        route,
		precondition: precondition,
		steps:        append([]models.SwapStep(nil), route.Steps...),
		status:       models.PipelineIdle,
		stage:        models.StageIdle,
		updatedAt:    time.Now().UTC(),
		done:         make(chan struct{}),
	}
}

func (p *Pipeline) ID() string {
	return p.id
}

func (p *Pipeline) Intent() models.PaymentIntent {
	return p.intent
}

func (p *Pipeline) Route() *Route {
	return p.route
}

// View returns an immutable snapshot of the pipeline
func (p *Pipeline) View() models.PipelineView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewLocked()
}

func (p *Pipeline) viewLocked() models.PipelineView {
	return models.PipelineView{
		ID:            p.id,
		Intent:        p.intent,
		Route:         string(p.route.Kind),
		Steps:         append([]models.SwapStep(nil), p.steps...),
		Status:        p.status,
		Stage:         p.stage,
		FailureReason: p.failureReason,
		FailureCode:   p.failureCode,
		UpdatedAt:     p.updatedAt,
	}
}

// Done is closed once the pipeline reaches a terminal status
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Result returns the outcome of a terminal pipeline
func (p *Pipeline) Result() (*models.TradeResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result, p.err
}

// Terminal reports whether the pipeline has succeeded or failed
func (p *Pipeline) Terminal() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status == models.PipelineSucceeded || p.status == models.PipelineFailed
}

// begin moves Idle to Running. A pipeline runs at most once.
func (p *Pipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != models.PipelineIdle {
		return models.ErrPipelineNotIdle
	}
	p.status = models.PipelineRunning
	p.updatedAt = time.Now().UTC()
	return nil
}

func (p *Pipeline) setStage(stage models.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
	p.updatedAt = time.Now().UTC()
}

func (p *Pipeline) stepAt(i int) models.SwapStep {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.steps[i]
}

func (p *Pipeline) markStep(i int, status models.StepStatus, txHandle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps[i].Status = status
	if txHandle != "" {
		p.steps[i].TxHandle = txHandle
	}
	p.updatedAt = time.Now().UTC()
}

// setStepAmount records the amount a step actually used
func (p *Pipeline) setStepAmount(i int, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps[i].InputAmount = amount
	p.updatedAt = time.Now().UTC()
}

// claimSwapSubmission returns true exactly once per pipeline
func (p *Pipeline) claimSwapSubmission() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.swapSubmitted {
		return false
	}
	p.swapSubmitted = true
	return true
}

func (p *Pipeline) checkPrecondition(ctx context.Context) error {
	if p.precondition == nil {
		return nil
	}
	return p.precondition.Check(ctx)
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != models.PipelineRunning {
		return
	}
	// steps run in order, so the first unconfirmed step is the one that failed
	for i := range p.steps {
		if p.steps[i].Status != models.StepConfirmed {
			p.steps[i].Status = models.StepFailed
			break
		}
	}
	p.status = models.PipelineFailed
	p.stage = models.StageFailed
	p.failureReason = err.Error()
	p.failureCode = models.Classify(err).Code
	p.err = err
	p.updatedAt = time.Now().UTC()
	close(p.done)
}

func (p *Pipeline) succeed(result *models.TradeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != models.PipelineRunning {
		return
	}
	p.status = models.PipelineSucceeded
	p.stage = models.StageSucceeded
	p.updatedAt = time.Now().UTC()
	result.Pipeline = p.viewLocked()
	p.result = result
	close(p.done)
}
