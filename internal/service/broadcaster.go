package service

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"convconv/internal/entity"
)

// Connection is a live subscriber endpoint (a WebSocket in production).
type Connection interface {
	Send(payload []byte) error
	IsOpen() bool
}

// Relay mirrors every serialized event to an external channel.
type Relay interface {
	Publish(ctx context.Context, jobID string, payload []byte) error
}

// BroadcastRecorder counts delivered frames per event type.
type BroadcastRecorder interface {
	EventSent(eventType string, delivered int)
}

// Broadcaster routes job-scoped events to the connections subscribed to that job.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[Connection]struct{}

	relay   Relay
	metrics BroadcastRecorder
	log     *zap.Logger
}

type BroadcasterOption func(*Broadcaster)

func WithRelay(r Relay) BroadcasterOption {
	return func(b *Broadcaster) { b.relay = r }
}

func WithBroadcastMetrics(m BroadcastRecorder) BroadcasterOption {
	return func(b *Broadcaster) { b.metrics = m }
}

func NewBroadcaster(log *zap.Logger, opts ...BroadcasterOption) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Broadcaster{
		subs: make(map[string]map[Connection]struct{}),
		log:  log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe adds conn to jobID's set. Subscribing twice is the same as once.
func (b *Broadcaster) Subscribe(conn Connection, jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[Connection]struct{})
		b.subs[jobID] = set
	}
	set[conn] = struct{}{}
}

// Unsubscribe removes conn from jobID's set and prunes the set when it empties.
func (b *Broadcaster) Unsubscribe(conn Connection, jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[jobID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(b.subs, jobID)
	}
}

// RemoveConnection drops conn from every job it was subscribed to.
func (b *Broadcaster) RemoveConnection(conn Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for jobID, set := range b.subs {
		delete(set, conn)
		if len(set) == 0 {
			delete(b.subs, jobID)
		}
	}
}

// SubscriberCount returns the number of connections subscribed to jobID.
func (b *Broadcaster) SubscriberCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}

// Jobs returns the number of jobs with at least one subscriber.
func (b *Broadcaster) Jobs() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) BroadcastProgress(jobID string, sample entity.ProgressSample) {
	b.broadcast(entity.Event{Type: entity.EventProgress, JobID: jobID, Data: sample})
}

func (b *Broadcaster) BroadcastComplete(jobID, downloadURL string) {
	b.broadcast(entity.Event{Type: entity.EventComplete, JobID: jobID, Data: entity.CompleteData{DownloadURL: downloadURL}})
}

func (b *Broadcaster) BroadcastError(jobID, errText string) {
	b.broadcast(entity.Event{Type: entity.EventError, JobID: jobID, Data: entity.ErrorData{Error: errText}})
}

func (b *Broadcaster) broadcast(ev entity.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("marshal event", zap.String("job_id", ev.JobID), zap.Error(err))
		return
	}

	// sends happen outside the lock
	b.mu.RLock()
	set := b.subs[ev.JobID]
	conns := make([]Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if !c.IsOpen() {
			continue
		}
		if err := c.Send(payload); err != nil {
			b.log.Debug("send event", zap.String("job_id", ev.JobID), zap.Error(err))
			continue
		}
		delivered++
	}

	if b.metrics != nil {
		b.metrics.EventSent(string(ev.Type), delivered)
	}

	if b.relay != nil {
		if err := b.relay.Publish(context.Background(), ev.JobID, payload); err != nil {
			b.log.Warn("relay publish failed", zap.String("job_id", ev.JobID), zap.Error(err))
		}
	}
}
