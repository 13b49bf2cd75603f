package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/updatectl/updatectl/internal/agent/client"
	"github.com/updatectl/updatectl/internal/agent/config"
	"github.com/updatectl/updatectl/internal/agent/device"
	"github.com/updatectl/updatectl/internal/agent/device/connection"
	"github.com/updatectl/updatectl/internal/agent/device/download"
	"github.com/updatectl/updatectl/internal/agent/device/fileio"
	"github.com/updatectl/updatectl/internal/agent/device/permit"
	"github.com/updatectl/updatectl/internal/agent/device/report"
	"github.com/updatectl/updatectl/internal/agent/updater"
	"github.com/updatectl/updatectl/pkg/log"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ForcePingDebounce is the minimum spacing between two forced polls reaching
// the connection manager.
const ForcePingDebounce = 30 * time.Second

// Agent is the only externally visible entry point of the update client. Its
// surface is Init, StartAsync, Stop and ForcePing; everything else happens
// inside the actor tree it supervises.
type Agent struct {
	config *config.Config
	log    *log.PrefixLogger

	// debounce is ForcePingDebounce, shortened only in tests
	debounce time.Duration

	mu          sync.Mutex
	initialized bool
	stopped     bool
	supervisor  *device.Supervisor
	pingSlot    chan struct{}
	wg          sync.WaitGroup
}

func New(log *log.PrefixLogger, cfg *config.Config) *Agent {
	return &Agent{
		config:   cfg,
		log:      log,
		debounce: ForcePingDebounce,
	}
}

// Init constructs the shared context and starts the supervision tree. It
// must be called exactly once before any other operation; a second call is
// rejected. Nil permit providers default to always-granted, a nil behavior
// to the default retry behavior, and a nil protocol client to the DDI client
// built from the config.
func (a *Agent) Init(
	ctx context.Context,
	protocol client.Protocol,
	softPermit permit.Provider,
	forcePermit permit.Provider,
	registry *updater.Registry,
	behavior download.Behavior,
	listeners ...report.Listener,
) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return fmt.Errorf("agent already initialized")
	}

	if protocol == nil {
		protocol = client.NewDDI(client.Config{
			ServerURL:    a.config.ServerURL,
			Tenant:       a.config.Tenant,
			ControllerID: a.config.ControllerID,
			GatewayToken: a.config.GatewayToken,
			TargetToken:  a.config.TargetToken,
		}, nil, a.log)
	}
	if softPermit == nil {
		softPermit = permit.AlwaysGranted{}
	}
	if forcePermit == nil {
		forcePermit = permit.AlwaysGranted{}
	}
	if behavior == nil {
		behavior = download.NewDefaultBehavior()
	}

	rw := fileio.NewReadWriter(fileio.WithTestRootDir(a.config.GetTestRootDir()))

	shared := &device.Context{
		Client:       protocol,
		Registry:     registry,
		SoftPermit:   softPermit,
		ForcePermit:  forcePermit,
		Behavior:     behavior,
		ReadWriter:   rw,
		Listeners:    listeners,
		ArtifactsDir: a.config.ArtifactsDir,
		PollInterval: time.Duration(a.config.PollInterval),
		PollBackoff: wait.Backoff{
			Steps:    3,
			Duration: time.Second,
			Factor:   2,
		},
	}

	a.supervisor = device.NewSupervisor(shared, a.log)
	a.pingSlot = make(chan struct{}, 1)

	a.wg.Add(2)
	go a.supervisor.Run(ctx, &a.wg)
	go a.drainForcePings()

	a.initialized = true
	return nil
}

// StartAsync asks the connection manager to begin polling. It returns once
// the command is accepted; it does not wait for a poll to complete. A stopped
// agent cannot be restarted.
func (a *Agent) StartAsync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return fmt.Errorf("agent not initialized")
	}
	if a.stopped {
		return fmt.Errorf("agent stopped")
	}
	a.supervisor.Send(connection.Start)
	return nil
}

// Stop winds the actor tree down: no new poll cycle begins and the force
// ping buffer is closed. An in-flight download or installer call runs to its
// own completion. Stop is idempotent and safe from any goroutine.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized || a.stopped {
		return
	}
	a.stopped = true
	a.supervisor.Send(connection.Stop)
	close(a.pingSlot)
}

// ForcePing requests an immediate out-of-cycle poll. Requests are debounced:
// at most one reaches the connection manager per ForcePingDebounce window,
// excess requests are silently dropped. After Stop this is a logged no-op.
func (a *Agent) ForcePing() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized || a.stopped {
		a.log.Warn("Agent is stopped. Cannot force ping.")
		return
	}
	select {
	case a.pingSlot <- struct{}{}:
	default:
		a.log.Debug("Force ping already pending, dropping request")
	}
}

// drainForcePings consumes the single-slot buffer, forwarding one ForcePing
// per debounce window to the supervisor.
func (a *Agent) drainForcePings() {
	defer a.wg.Done()
	for range a.pingSlot {
		a.supervisor.Send(connection.ForcePing)
		time.Sleep(a.debounce)
	}
}
