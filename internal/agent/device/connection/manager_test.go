package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/updatectl/updatectl/api/v1alpha1"
	"github.com/updatectl/updatectl/internal/agent/client"
	"github.com/updatectl/updatectl/internal/agent/device/errors"
	"github.com/updatectl/updatectl/pkg/log"
	"go.uber.org/mock/gomock"
	"k8s.io/apimachinery/pkg/util/wait"
)

type fakeSession struct {
	id        string
	ran       atomic.Bool
	refreshes atomic.Int32
	done      chan struct{}
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, done: make(chan struct{})}
}

func (s *fakeSession) ActionID() string { return s.id }

func (s *fakeSession) Run(ctx context.Context) { s.ran.Store(true) }

func (s *fakeSession) Refresh() { s.refreshes.Add(1) }

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) finish() { close(s.done) }

type vars struct {
	assertions *require.Assertions
	ctrl       *gomock.Controller
	mockClient *client.MockProtocol
	manager    *Manager
	spawned    []*fakeSession
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func setup(t *testing.T) *vars {
	ctrl := gomock.NewController(t)
	ctx, cancel := context.WithCancel(context.Background())
	v := &vars{
		assertions: require.New(t),
		ctrl:       ctrl,
		mockClient: client.NewMockProtocol(ctrl),
		ctx:        ctx,
		cancel:     cancel,
	}
	factory := func(action *v1alpha1.Action) Session {
		v.mu.Lock()
		defer v.mu.Unlock()
		s := newFakeSession(action.ID)
		v.spawned = append(v.spawned, s)
		return s
	}
	// interval long enough that only explicit commands trigger polls
	v.manager = NewManager(v.mockClient, time.Hour, wait.Backoff{Steps: 1}, factory, log.NewPrefixLogger(""))
	return v
}

func (v *vars) run() {
	v.wg.Add(1)
	go v.manager.Run(v.ctx, &v.wg)
}

func (v *vars) finish() {
	v.cancel()
	v.wg.Wait()
	v.ctrl.Finish()
}

func (v *vars) sessions() []*fakeSession {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*fakeSession, len(v.spawned))
	copy(out, v.spawned)
	return out
}

func action(id string) *v1alpha1.Action {
	return &v1alpha1.Action{ID: id, Modules: []v1alpha1.SoftwareModule{{ID: "m", Name: "m"}}}
}

func TestStartSpawnsSessionForAssignedAction(t *testing.T) {
	v := setup(t)
	defer v.finish()

	v.mockClient.EXPECT().FetchAction(gomock.Any()).Return(action("1"), nil)

	v.run()
	v.manager.Send(Start)

	v.assertions.Eventually(func() bool {
		sessions := v.sessions()
		return len(sessions) == 1 && sessions[0].ran.Load()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNoContentIsNoOp(t *testing.T) {
	v := setup(t)
	defer v.finish()

	fetched := make(chan struct{})
	v.mockClient.EXPECT().FetchAction(gomock.Any()).DoAndReturn(
		func(context.Context) (*v1alpha1.Action, error) {
			close(fetched)
			return nil, errors.ErrNoContent
		})

	v.run()
	v.manager.Send(Start)

	select {
	case <-fetched:
	case <-time.After(5 * time.Second):
		t.Fatal("poll never happened")
	}
	v.assertions.Empty(v.sessions())
}

func TestForcePingTriggersImmediatePoll(t *testing.T) {
	v := setup(t)
	defer v.finish()

	polls := make(chan struct{}, 4)
	v.mockClient.EXPECT().FetchAction(gomock.Any()).DoAndReturn(
		func(context.Context) (*v1alpha1.Action, error) {
			polls <- struct{}{}
			return nil, errors.ErrNoContent
		}).Times(2)

	v.run()
	v.manager.Send(Start)
	<-polls
	v.manager.Send(ForcePing)

	select {
	case <-polls:
	case <-time.After(5 * time.Second):
		t.Fatal("forced poll never happened")
	}
}

func TestReAnnouncedActionRefreshesLiveSession(t *testing.T) {
	v := setup(t)
	defer v.finish()

	v.mockClient.EXPECT().FetchAction(gomock.Any()).Return(action("1"), nil).Times(2)

	v.run()
	v.manager.Send(Start)
	v.assertions.Eventually(func() bool {
		return len(v.sessions()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	v.manager.Send(ForcePing)
	v.assertions.Eventually(func() bool {
		return v.sessions()[0].refreshes.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	v.assertions.Len(v.sessions(), 1)
}

func TestDifferentActionDeferredWhileSessionLive(t *testing.T) {
	v := setup(t)
	defer v.finish()

	gomock.InOrder(
		v.mockClient.EXPECT().FetchAction(gomock.Any()).Return(action("1"), nil),
		v.mockClient.EXPECT().FetchAction(gomock.Any()).Return(action("2"), nil),
		v.mockClient.EXPECT().FetchAction(gomock.Any()).Return(action("2"), nil),
	)

	v.run()
	v.manager.Send(Start)
	v.assertions.Eventually(func() bool {
		return len(v.sessions()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// a different action shows up while the first session is live
	v.manager.Send(ForcePing)
	time.Sleep(50 * time.Millisecond)
	v.assertions.Len(v.sessions(), 1)

	// once the first session completes, the next poll picks the new one up
	v.sessions()[0].finish()
	v.manager.Send(ForcePing)
	v.assertions.Eventually(func() bool {
		sessions := v.sessions()
		return len(sessions) == 2 && sessions[1].ActionID() == "2"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPollFailureIsRetriedNextTick(t *testing.T) {
	v := setup(t)
	defer v.finish()

	gomock.InOrder(
		v.mockClient.EXPECT().FetchAction(gomock.Any()).
			Return(nil, errors.Newf("%w: connection refused", errors.ErrNetwork)),
		v.mockClient.EXPECT().FetchAction(gomock.Any()).Return(action("1"), nil),
	)

	v.run()
	v.manager.Send(Start)
	time.Sleep(50 * time.Millisecond)
	v.assertions.Empty(v.sessions())

	// the failure was not fatal, the next (forced) tick succeeds
	v.manager.Send(ForcePing)
	v.assertions.Eventually(func() bool {
		return len(v.sessions()) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopIsGracefulAndTerminal(t *testing.T) {
	v := setup(t)
	defer v.finish()

	v.mockClient.EXPECT().FetchAction(gomock.Any()).Return(nil, errors.ErrNoContent).AnyTimes()

	v.run()
	v.manager.Send(Start)
	v.manager.Send(Stop)
	v.wg.Wait()

	// commands after stop are dropped without panicking
	v.manager.Send(ForcePing)
	v.manager.Send(Stop)
}
