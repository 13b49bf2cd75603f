package report

import (
	"context"
	"sync"
	"time"

	"github.com/updatectl/updatectl/api/v1alpha1"
	"github.com/updatectl/updatectl/internal/agent/client"
	"github.com/updatectl/updatectl/internal/agent/device/errors"
	"github.com/updatectl/updatectl/pkg/log"
	"github.com/updatectl/updatectl/pkg/poll"
)

// Listener observes every status entry recorded for an action. Listeners are
// supplied by the embedding application; a panicking listener is logged and
// skipped, it can not disturb the session.
type Listener interface {
	OnStatusEntry(actionID string, entry v1alpha1.StatusEntry)
}

const defaultFlushTimeout = 30 * time.Second

// Reporter accumulates the ordered, append-only status history of one action
// and flushes it to the protocol client. Entries are never removed or
// reordered after being recorded; Flush submits the not-yet-flushed tail so
// the server-visible history is exactly the production sequence.
type Reporter struct {
	actionID  string
	client    client.Protocol
	listeners []Listener
	backoff   poll.Config
	log       *log.PrefixLogger

	mu      sync.Mutex
	entries []v1alpha1.StatusEntry
	flushed int
}

func NewReporter(actionID string, client client.Protocol, listeners []Listener, log *log.PrefixLogger) *Reporter {
	return &Reporter{
		actionID:  actionID,
		client:    client,
		listeners: listeners,
		backoff: poll.Config{
			BaseDelay: 500 * time.Millisecond,
			Factor:    2,
			MaxDelay:  5 * time.Second,
			MaxSteps:  4,
		},
		log: log,
	}
}

func (r *Reporter) ActionID() string {
	return r.actionID
}

// Record appends the entry to the history. It is synchronous and
// ordering-preserving: the history order is exactly the call order.
func (r *Reporter) Record(entry v1alpha1.StatusEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	r.log.Debugf("Action %s status: %s %v", r.actionID, entry.Kind, entry.Details)
	for _, listener := range r.listeners {
		r.notify(listener, entry)
	}
}

// History returns a copy of the full recorded history in production order.
// The copy is deep: mutating a returned entry cannot reach the recorded one.
func (r *Reporter) History() []v1alpha1.StatusEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]v1alpha1.StatusEntry, len(r.entries))
	for i, entry := range r.entries {
		entry.Details = append([]string(nil), entry.Details...)
		history[i] = entry
	}
	return history
}

// Flush submits the entries recorded since the last successful flush,
// retrying transient failures with backoff bounded by the flush timeout.
// Flushing is best-effort: on persistent failure the tail stays pending for
// the next flush and the error is returned for logging only, it must never
// block a state transition indefinitely.
func (r *Reporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	tail := r.entries[r.flushed:]
	mark := len(r.entries)
	r.mu.Unlock()

	if len(tail) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultFlushTimeout)
	defer cancel()

	err := poll.BackoffWithContext(ctx, r.backoff, func(ctx context.Context) (bool, error) {
		submitErr := r.client.SubmitFeedback(ctx, r.actionID, tail)
		if submitErr == nil {
			return true, nil
		}
		if errors.IsRetryable(submitErr) {
			r.log.Warnf("Submitting status for action %s failed, will retry: %v", r.actionID, submitErr)
			return false, nil
		}
		return false, submitErr
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.flushed = mark
	r.mu.Unlock()
	return nil
}

func (r *Reporter) notify(listener Listener, entry v1alpha1.StatusEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("Status listener panicked: %v", rec)
		}
	}()
	listener.OnStatusEntry(r.actionID, entry)
}
