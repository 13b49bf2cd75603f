package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/updatectl/updatectl/api/v1alpha1"
	"github.com/updatectl/updatectl/internal/agent/device/permit"
	"github.com/updatectl/updatectl/internal/agent/device/report"
	"github.com/updatectl/updatectl/internal/agent/updater"
	"github.com/updatectl/updatectl/pkg/log"
)

// State is the lifecycle state of a session.
type State string

const (
	StateRetrieved                    State = "Retrieved"
	StateWaitingDownloadAuthorization State = "WaitingDownloadAuthorization"
	StateDownloading                  State = "Downloading"
	StateWaitingUpdateAuthorization   State = "WaitingUpdateAuthorization"
	StateApplying                     State = "Applying"
	StateFinished                     State = "Finished"
	StateError                        State = "Error"
)

// Status entry texts. These are server-visible and order-significant, tests
// assert them verbatim.
const (
	MessageRetrieved          = "Target retrieved update action and should start now the download."
	MessageAssignmentInitiate = "Assignment initiated"
	MessageWaitingDownload    = "Waiting authorization to download"
	MessageDownloadGranted    = "Authorization granted for downloading files"
	MessageWaitingUpdate      = "Waiting authorization to update"
	MessageUpdateGranted      = "Authorization granted for update"
)

// Downloader is the download manager surface the session drives.
type Downloader interface {
	DownloadAction(ctx context.Context, action *v1alpha1.Action, destDir string, record func(v1alpha1.StatusEntry)) ([]updater.ModuleWithPath, error)
}

// Session drives exactly one action through the update lifecycle:
// Retrieved, WaitingDownloadAuthorization, Downloading,
// WaitingUpdateAuthorization, Applying, then Finished or Error. Any failure
// of a collaborator becomes an error-kind status entry and the Error state;
// nothing escapes Run.
type Session struct {
	action       *v1alpha1.Action
	reporter     *report.Reporter
	downloader   Downloader
	registry     *updater.Registry
	softGate     *permit.Gate
	forceGate    *permit.Gate
	artifactsDir string
	log          *log.PrefixLogger

	refresh chan struct{}
	done    chan struct{}

	mu    sync.Mutex
	state State
}

func New(
	action *v1alpha1.Action,
	reporter *report.Reporter,
	downloader Downloader,
	registry *updater.Registry,
	softGate *permit.Gate,
	forceGate *permit.Gate,
	artifactsDir string,
	log *log.PrefixLogger,
) *Session {
	return &Session{
		action:       action,
		reporter:     reporter,
		downloader:   downloader,
		registry:     registry,
		softGate:     softGate,
		forceGate:    forceGate,
		artifactsDir: artifactsDir,
		log:          log,
		refresh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
		state:        StateRetrieved,
	}
}

func (s *Session) ActionID() string {
	return s.action.ID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session has reached a terminal state and flushed
// its history.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Refresh signals the session that the server re-announced its action, which
// re-evaluates a pending authorization. Never blocks; redundant signals
// collapse into one.
func (s *Session) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Run drives the session to a terminal state. It never returns an error and
// never panics: collaborator failures end in StateError with an error-kind
// status entry.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Session for action %s panicked: %v", s.action.ID, r)
			s.fail(ctx, fmt.Sprintf("Unexpected failure: %v", r))
		}
	}()

	s.log.Infof("Starting update session for action %s with %d modules", s.action.ID, len(s.action.Modules))
	s.reporter.Record(v1alpha1.NewRetrievedEntry(MessageRetrieved))
	s.reporter.Record(v1alpha1.NewRunningEntry(MessageAssignmentInitiate))
	s.flush(ctx)

	if !s.waitForPermit(ctx, s.softGate, StateWaitingDownloadAuthorization, MessageWaitingDownload, MessageDownloadGranted) {
		return
	}

	s.setState(StateDownloading)
	modules, err := s.downloader.DownloadAction(ctx, s.action, s.artifactsDir, s.reporter.Record)
	if err != nil {
		s.fail(ctx, fmt.Sprintf("Download failed: %v", err))
		return
	}
	s.flush(ctx)

	if !s.waitForPermit(ctx, s.forceGate, StateWaitingUpdateAuthorization, MessageWaitingUpdate, MessageUpdateGranted) {
		return
	}

	s.setState(StateApplying)
	result := s.registry.Apply(ctx, modules, &serverMessenger{ctx: ctx, session: s})

	details := append([]string{"Details:"}, result.Details...)
	if result.Success {
		s.reporter.Record(v1alpha1.NewFinishedEntry(details...))
		s.setState(StateFinished)
		s.log.Infof("Action %s finished successfully", s.action.ID)
	} else {
		s.reporter.Record(v1alpha1.NewErrorEntry(details...))
		s.setState(StateError)
		s.log.Errorf("Action %s failed during apply", s.action.ID)
	}
	s.flush(ctx)
}

// waitForPermit gates progress on the given authorization. Pending answers
// append a waiting entry and suspend until the next refresh signal; Denied
// ends the session. Returns true only on a grant.
func (s *Session) waitForPermit(ctx context.Context, gate *permit.Gate, state State, waitingMsg, grantedMsg string) bool {
	s.setState(state)
	for {
		decision, err := gate.Evaluate()
		if err != nil {
			s.fail(ctx, err.Error())
			return false
		}
		switch decision.Result {
		case permit.Granted:
			s.reporter.Record(v1alpha1.NewRunningEntry(grantedMsg))
			s.flush(ctx)
			return true
		case permit.Denied:
			detail := fmt.Sprintf("Authorization denied for %s", gate.Name())
			if decision.Reason != "" {
				detail = fmt.Sprintf("%s: %s", detail, decision.Reason)
			}
			s.fail(ctx, detail)
			return false
		default:
			s.reporter.Record(v1alpha1.NewRunningEntry(waitingMsg))
			s.flush(ctx)
			select {
			case <-s.refresh:
				s.log.Debugf("Re-evaluating %s permit for action %s", gate.Name(), s.action.ID)
			case <-ctx.Done():
				s.log.Warnf("Context done while waiting for %s permit", gate.Name())
				s.fail(ctx, fmt.Sprintf("Aborted while waiting for %s authorization", gate.Name()))
				return false
			}
		}
	}
}

// fail records an error entry, moves the session to its terminal Error state
// and flushes best-effort.
func (s *Session) fail(ctx context.Context, detail string) {
	s.reporter.Record(v1alpha1.NewErrorEntry(detail))
	s.setState(StateError)
	s.flush(ctx)
}

func (s *Session) flush(ctx context.Context) {
	if err := s.reporter.Flush(ctx); err != nil {
		s.log.Errorf("Flushing status for action %s: %v", s.action.ID, err)
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	previous := s.state
	s.state = state
	s.mu.Unlock()
	s.log.Debugf("Action %s: %s -> %s", s.action.ID, previous, state)
}

// serverMessenger forwards updater progress messages to the server while the
// apply phase is still running.
type serverMessenger struct {
	ctx     context.Context
	session *Session
}

var _ updater.Messenger = (*serverMessenger)(nil)

func (m *serverMessenger) SendMessageToServer(messages ...string) {
	for _, message := range messages {
		m.session.reporter.Record(v1alpha1.NewRunningEntry(message))
	}
	// flush immediately so messages are visible before Apply returns
	m.session.flush(m.ctx)
}
