package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/internal/duel"
	"github.com/chess-vn/slduel/internal/hub"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

const (
	DefaultWorkers = 4
	DefaultBuffer  = 256
)

// Deliverer sends a message to a user live or through the offline queue and
// reports whether it was delivered live.
type Deliverer interface {
	Send(ctx context.Context, userId string, msg []byte) bool
}

type Pusher interface {
	PushDuelInvite(ctx context.Context, endpointArn string, event dtos.DuelEvent) error
}

type EndpointStore interface {
	GetApplicationEndpoint(ctx context.Context, userId string) (entities.ApplicationEndpoint, error)
}

type ResultRecorder interface {
	RecordDuelResult(ctx context.Context, result dtos.DuelResultEvent) error
}

type Options struct {
	// Async hands events to a worker pool instead of delivering them on the
	// publishing goroutine.
	Async   bool
	Workers int
	Buffer  int
}

type Option func(*Dispatcher)

// WithPush sends a mobile push for invites the opponent did not get live.
func WithPush(pusher Pusher, endpoints EndpointStore) Option {
	return func(d *Dispatcher) {
		d.pusher = pusher
		d.endpoints = endpoints
	}
}

func WithResultRecorder(recorder ResultRecorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// Dispatcher turns duel events into socket messages. Failures are logged and
// never reach the transition that published the event.
type Dispatcher struct {
	deliverer Deliverer
	pusher    Pusher
	endpoints EndpointStore
	recorder  ResultRecorder

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

type job struct {
	ctx   context.Context
	event duel.Event
}

func NewDispatcher(deliverer Deliverer, opts Options, deps ...Option) *Dispatcher {
	d := &Dispatcher{deliverer: deliverer}
	for _, dep := range deps {
		dep(d)
	}
	if !opts.Async {
		return d
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	d.jobs = make(chan job, opts.Buffer)
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.dispatch(j.ctx, j.event)
			}
		}()
	}
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, event duel.Event) {
	if d.jobs == nil {
		d.dispatch(ctx, event)
		return
	}
	j := job{ctx: context.WithoutCancel(ctx), event: event}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logging.Warn("dispatcher closed, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("duelId", event.Duel.Id),
		)
		return
	}
	select {
	case d.jobs <- j:
	default:
		// Pool saturated; deliver off to the side rather than stall the
		// transition.
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.dispatch(j.ctx, j.event)
		}()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	if d.jobs == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, event duel.Event) {
	msg, err := hub.Encode(string(event.Type), event.Payload)
	if err != nil {
		logging.Error("failed to encode duel event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	for _, userId := range event.Recipients {
		if d.deliverer.Send(ctx, userId, msg) {
			continue
		}
		if event.Type == duel.EventInvite {
			d.push(ctx, userId, event.Payload)
		}
	}
	if event.Decided() && d.recorder != nil {
		if err := d.recorder.RecordDuelResult(ctx, dtos.DuelResultEventFromEntity(event.Duel)); err != nil {
			logging.Error("failed to record duel result", zap.String("duelId", event.Duel.Id), zap.Error(err))
		}
	}
}

func (d *Dispatcher) push(ctx context.Context, userId string, payload dtos.DuelEvent) {
	if d.pusher == nil || d.endpoints == nil {
		return
	}
	endpoint, err := d.endpoints.GetApplicationEndpoint(ctx, userId)
	if err != nil {
		if !errors.Is(err, storage.ErrApplicationEndpointNotFound) {
			logging.Error("failed to get application endpoint", zap.String("userId", userId), zap.Error(err))
		}
		return
	}
	if err := d.pusher.PushDuelInvite(ctx, endpoint.EndpointArn, payload); err != nil {
		logging.Error("failed to push duel invite", zap.String("userId", userId), zap.Error(err))
	}
}
