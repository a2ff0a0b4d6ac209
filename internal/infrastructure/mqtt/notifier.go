package mqtt

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/database"
)

// DefaultNotifierBuffer is the queue length used when NewNotifier is given
// a non-positive size.
const DefaultNotifierBuffer = 256

// Publisher is the subset of Client the notifier needs.
type Publisher interface {
	PublishDefault(topic string, payload []byte) error
}

// ChangeMessage is the JSON payload published for each successful change.
type ChangeMessage struct {
	OpID         string  `json:"op_id"`
	Operation    string  `json:"operation"`
	RowsAffected int64   `json:"rows_affected"`
	DurationMS   float64 `json:"duration_ms"`
	Timestamp    string  `json:"timestamp"`
}

// Notifier publishes a message for every successful mutating operation.
//
// It implements database.Observer. ObserveStatement only enqueues; a single
// worker goroutine does the publishing, so a slow broker never stalls the
// database. When the queue is full the event is dropped with a warning.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Notifier struct {
	pub    Publisher
	topics Topics
	logger Logger

	events chan database.StatementEvent
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	now func() time.Time
}

// NewNotifier starts a notifier publishing through pub. logger may be nil.
func NewNotifier(pub Publisher, topics Topics, logger Logger, bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = DefaultNotifierBuffer
	}
	n := &Notifier{
		pub:    pub,
		topics: topics,
		logger: logger,
		events: make(chan database.StatementEvent, bufferSize),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go n.run()
	return n
}

// Notifiable reports whether ev produces a change notification: only
// successful change and create_table operations do.
func Notifiable(ev database.StatementEvent) bool {
	if ev.Code.IsError() {
		return false
	}
	return ev.Operation == database.OpChange || ev.Operation == database.OpCreateTable
}

// ObserveStatement implements database.Observer.
func (n *Notifier) ObserveStatement(ev database.StatementEvent) {
	if !Notifiable(ev) {
		return
	}
	if err := n.Notify(ev); err != nil && n.logger != nil {
		n.logger.Warn("change notification dropped",
			"op_id", ev.ID,
			"operation", ev.Operation,
			"error", err,
		)
	}
}

// Notify enqueues ev without blocking.
//
// Returns:
//   - error: ErrNotifierClosed after Close, ErrBufferFull when the queue is full
func (n *Notifier) Notify(ev database.StatementEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrNotifierClosed
	}

	select {
	case n.events <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events and waits until queued ones are published.
// Safe to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.events)
	}
	n.mu.Unlock()

	<-n.done
}

func (n *Notifier) run() {
	defer close(n.done)
	for ev := range n.events {
		n.publish(ev)
	}
}

func (n *Notifier) publish(ev database.StatementEvent) {
	payload, err := json.Marshal(changeMessage(ev, n.now()))
	if err != nil {
		return
	}

	if err := n.pub.PublishDefault(n.topics.Change(ev.Operation), payload); err != nil && n.logger != nil {
		n.logger.Error("change notification publish failed",
			"op_id", ev.ID,
			"operation", ev.Operation,
			"error", err,
		)
	}
}

func changeMessage(ev database.StatementEvent, ts time.Time) ChangeMessage {
	return ChangeMessage{
		OpID:         ev.ID,
		Operation:    ev.Operation,
		RowsAffected: ev.RowsAffected,
		DurationMS:   float64(ev.Duration) / float64(time.Millisecond),
		Timestamp:    ts.UTC().Format(time.RFC3339Nano),
	}
}
