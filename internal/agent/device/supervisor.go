package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/updatectl/updatectl/api/v1alpha1"
	"github.com/updatectl/updatectl/internal/agent/client"
	"github.com/updatectl/updatectl/internal/agent/device/connection"
	"github.com/updatectl/updatectl/internal/agent/device/download"
	"github.com/updatectl/updatectl/internal/agent/device/fileio"
	"github.com/updatectl/updatectl/internal/agent/device/permit"
	"github.com/updatectl/updatectl/internal/agent/device/report"
	"github.com/updatectl/updatectl/internal/agent/device/session"
	"github.com/updatectl/updatectl/internal/agent/updater"
	"github.com/updatectl/updatectl/pkg/log"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Context bundles the shared collaborators of the actor tree. It is
// immutable once the supervisor is created and freely shared without
// locking.
type Context struct {
	Client       client.Protocol
	Registry     *updater.Registry
	SoftPermit   permit.Provider
	ForcePermit  permit.Provider
	Behavior     download.Behavior
	ReadWriter   fileio.ReadWriter
	Listeners    []report.Listener
	ArtifactsDir string
	PollInterval time.Duration
	PollBackoff  wait.Backoff
}

// restartFloor is the minimum pause between supervisor restarts of the
// connection manager.
const restartFloor = 5 * time.Second

// Supervisor is the root of the actor tree. It creates the connection
// manager, routes external lifecycle commands to it, and recreates it should
// it ever fail unexpectedly.
type Supervisor struct {
	shared *Context
	log    *log.PrefixLogger

	// restartDelay is restartFloor, shortened only in tests
	restartDelay time.Duration

	mu      sync.Mutex
	manager *connection.Manager
	stopped bool
}

func NewSupervisor(shared *Context, log *log.PrefixLogger) *Supervisor {
	s := &Supervisor{
		shared:       shared,
		log:          log,
		restartDelay: restartFloor,
	}
	// the first manager exists before Run starts so that commands sent right
	// after construction land in its mailbox instead of being lost
	s.manager = s.newManager()
	return s
}

// Send routes a lifecycle command to the current connection manager. Stop is
// remembered so a crashed manager is not restarted afterwards. The manager's
// mailbox is buffered: commands sent before Run begins are processed once it
// does.
func (s *Supervisor) Send(cmd connection.Command) {
	s.mu.Lock()
	if cmd == connection.Stop {
		s.stopped = true
	}
	manager := s.manager
	s.mu.Unlock()

	manager.Send(cmd)
}

// Run supervises the connection manager until context cancellation or a
// clean stop. An abnormal termination (panic inside the actor) is logged and
// followed by a recreate, paced by the restart floor.
func (s *Supervisor) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		s.mu.Lock()
		manager := s.manager
		s.mu.Unlock()

		err := s.runMonitored(ctx, manager)
		if ctx.Err() != nil || s.isStopped() {
			s.log.Debug("Supervisor winding down")
			return
		}
		if err == nil {
			// clean stop without a Stop command routed through us
			return
		}

		s.log.Errorf("Connection manager terminated abnormally, restarting in %s: %v", s.restartDelay, err)
		select {
		case <-time.After(s.restartDelay):
		case <-ctx.Done():
			return
		}
		s.setManager(s.newManager())
	}
}

// runMonitored runs the manager actor on the supervisor goroutine, turning a
// panic into an error instead of crashing the tree.
func (s *Supervisor) runMonitored(ctx context.Context, manager *connection.Manager) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &supervisionError{cause: r}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	manager.Run(ctx, &wg)
	wg.Wait()
	return nil
}

func (s *Supervisor) newManager() *connection.Manager {
	shared := s.shared
	factory := func(action *v1alpha1.Action) connection.Session {
		reporter := report.NewReporter(action.ID, shared.Client, shared.Listeners, s.log)
		downloader := download.NewManager(shared.Client, shared.ReadWriter, shared.Behavior, s.log)
		return session.New(
			action,
			reporter,
			downloader,
			shared.Registry,
			permit.NewGate("download", shared.SoftPermit, s.log),
			permit.NewGate("update", shared.ForcePermit, s.log),
			shared.ArtifactsDir,
			s.log,
		)
	}
	return connection.NewManager(shared.Client, shared.PollInterval, shared.PollBackoff, factory, s.log)
}

func (s *Supervisor) setManager(manager *connection.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manager = manager
}

func (s *Supervisor) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type supervisionError struct {
	cause any
}

func (e *supervisionError) Error() string {
	return fmt.Sprintf("connection manager panicked: %v", e.cause)
}
