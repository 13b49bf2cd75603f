package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/updatectl/updatectl/api/v1alpha1"
	"github.com/updatectl/updatectl/internal/agent/client"
	"github.com/updatectl/updatectl/internal/agent/device/errors"
	"github.com/updatectl/updatectl/pkg/log"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Command is one of the lifecycle messages the manager accepts.
type Command string

const (
	Start     Command = "Start"
	Stop      Command = "Stop"
	ForcePing Command = "ForcePing"
)

// State of the manager actor. Stopped is terminal.
type State string

const (
	StateIdle    State = "Idle"
	StatePolling State = "Polling"
	StateStopped State = "Stopped"
)

// Session is the live execution handle of one in-flight action.
type Session interface {
	ActionID() string
	Run(ctx context.Context)
	Refresh()
	Done() <-chan struct{}
}

// SessionFactory creates the session for a newly discovered action.
type SessionFactory func(action *v1alpha1.Action) Session

const inboxSize = 16

// Manager owns the poll loop against the protocol client. It is an actor:
// one goroutine processes its mailbox and ticker, so its state (including
// the single live session pointer) has exactly one writer. Poll failures are
// logged and retried on the next tick, never fatal.
type Manager struct {
	client   client.Protocol
	interval time.Duration
	backoff  wait.Backoff
	factory  SessionFactory
	inbox    chan Command
	stopped  atomic.Bool
	log      *log.PrefixLogger

	// owned by the Run goroutine
	state State
	live  Session
}

func NewManager(
	client client.Protocol,
	interval time.Duration,
	backoff wait.Backoff,
	factory SessionFactory,
	log *log.PrefixLogger,
) *Manager {
	return &Manager{
		client:   client,
		interval: interval,
		backoff:  backoff,
		factory:  factory,
		inbox:    make(chan Command, inboxSize),
		state:    StateIdle,
		log:      log,
	}
}

// Send enqueues a lifecycle command. Commands sent after the manager stopped
// are dropped with a log line, never an error.
func (m *Manager) Send(cmd Command) {
	if m.stopped.Load() {
		m.log.Warnf("Connection manager is stopped, dropping %s", cmd)
		return
	}
	select {
	case m.inbox <- cmd:
	default:
		m.log.Warnf("Connection manager mailbox full, dropping %s", cmd)
	}
}

// Run processes the mailbox until a Stop command or context cancellation.
// Stop is graceful: the ticker is canceled and no new session starts, but a
// live session finishes its current step on its own goroutine.
func (m *Manager) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer m.stopped.Store(true)
	m.log.Debug("Connection manager started")

	var ticker *time.Ticker
	var tickC <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Connection manager context done")
			return
		case cmd := <-m.inbox:
			switch cmd {
			case Start:
				if m.state != StateIdle {
					m.log.Debugf("Ignoring Start in state %s", m.state)
					continue
				}
				m.state = StatePolling
				ticker = time.NewTicker(m.interval)
				tickC = ticker.C
				m.log.Infof("Polling started with interval %s", m.interval)
				m.poll(ctx)
			case ForcePing:
				if m.state != StatePolling {
					m.log.Warnf("Ignoring ForcePing in state %s", m.state)
					continue
				}
				// out-of-cycle poll, the regular ticker keeps its cadence
				m.log.Info("Forced poll requested")
				m.poll(ctx)
			case Stop:
				m.state = StateStopped
				m.log.Info("Polling stopped, letting any live session finish its current step")
				return
			}
		case <-tickC:
			m.poll(ctx)
		}
	}
}

// poll asks the server for the currently assigned action and reconciles it
// against the live session.
func (m *Manager) poll(ctx context.Context) {
	m.reapSession()

	action, err := m.fetchAction(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrNoContent) {
			m.log.Debug("No action assigned")
			return
		}
		m.log.Errorf("Polling for action failed, will retry on next tick: %v", err)
		return
	}

	if m.live != nil {
		if m.live.ActionID() == action.ID {
			// the server re-announced the in-flight action, give a pending
			// authorization the chance to resolve
			m.live.Refresh()
			return
		}
		m.log.Warnf("Action %s assigned while action %s is in flight, deferring", action.ID, m.live.ActionID())
		return
	}

	m.live = m.factory(action)
	go m.live.Run(ctx)
}

func (m *Manager) reapSession() {
	if m.live == nil {
		return
	}
	select {
	case <-m.live.Done():
		m.log.Debugf("Session for action %s completed", m.live.ActionID())
		m.live = nil
	default:
	}
}

func (m *Manager) fetchAction(ctx context.Context) (*v1alpha1.Action, error) {
	var action *v1alpha1.Action
	var lastErr error
	err := wait.ExponentialBackoff(m.backoff, func() (bool, error) {
		fetched, fetchErr := m.client.FetchAction(ctx)
		if fetchErr != nil {
			if errors.Is(fetchErr, errors.ErrNoContent) {
				return true, fetchErr
			}
			if errors.IsRetryable(fetchErr) {
				lastErr = fetchErr
				return false, nil
			}
			return false, fetchErr
		}
		if fetched == nil {
			return false, errors.ErrNilResponse
		}
		action = fetched
		return true, nil
	})
	if err != nil {
		if lastErr != nil && errors.Is(err, wait.ErrWaitTimeout) {
			return nil, lastErr
		}
		return nil, err
	}
	return action, nil
}
