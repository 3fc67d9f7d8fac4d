package router

import (
	"sync"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
)

// DefaultRetention is how many finished pipelines stay queryable
const DefaultRetention = 1024

// Intake admits pipelines and rejects a second in-flight pipeline
// for the same (payer, token). It also serves pipeline lookups by id.
type Intake struct {
	mu        sync.Mutex
	active    map[models.IntentKey]string
	pipelines map[string]*Pipeline
	finished  []string
	retain    int
}

func NewIntake(retain int) *Intake {
	if retain <= 0 {
		retain = DefaultRetention
	}
	return &Intake{
		active:    make(map[models.IntentKey]string),
		pipelines: make(map[string]*Pipeline),
		retain:    retain,
	}
}

// Acquire registers p as the in-flight pipeline for its intent key
func (in *Intake) Acquire(p *Pipeline) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	key := p.Intent().Key()
	if id, busy := in.active[key]; busy {
		log.Warn().
			Str("payer", key.Payer.Hex()).
			Str("token", key.Token.Hex()).
			Str("pipeline", id).
			Msg("Rejected concurrent pipeline")
		return models.ErrPipelineInFlight
	}
	in.active[key] = p.ID()
	in.pipelines[p.ID()] = p
	return nil
}

// Release frees the intent key once p is terminal and keeps p for lookups
func (in *Intake) Release(p *Pipeline) {
	in.mu.Lock()
	defer in.mu.Unlock()

	key := p.Intent().Key()
	if in.active[key] == p.ID() {
		delete(in.active, key)
	}
	in.finished = append(in.finished, p.ID())
	for len(in.finished) > in.retain {
		delete(in.pipelines, in.finished[0])
		in.finished = in.finished[1:]
	}
}

// Get returns the pipeline with id
func (in *Intake) Get(id string) (*Pipeline, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	p, ok := in.pipelines[id]
	if !ok {
		return nil, models.ErrPipelineNotFound
	}
	return p, nil
}

// InFlight returns the number of running pipelines
func (in *Intake) InFlight() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.active)
}
