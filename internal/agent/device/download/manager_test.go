package download

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/updatectl/updatectl/api/v1alpha1"
	"github.com/updatectl/updatectl/internal/agent/client"
	"github.com/updatectl/updatectl/internal/agent/device/errors"
	"github.com/updatectl/updatectl/internal/agent/device/fileio"
	"github.com/updatectl/updatectl/pkg/log"
	"go.uber.org/mock/gomock"
)

const (
	test1Content = "test1 content"
	test1Md5     = "3ea6e7c53f9c4c08cb1afd2a853ddc77"
	test2Content = "test2 content"
	test2Md5     = "ba5a035cd0f14e82d70d0c7911f0d292"
)

type vars struct {
	assertions *require.Assertions
	ctrl       *gomock.Controller
	mockClient *client.MockProtocol
	rw         fileio.ReadWriter
	entries    []v1alpha1.StatusEntry
	ctx        context.Context
}

func setup(t *testing.T) *vars {
	ctrl := gomock.NewController(t)
	rw := fileio.NewReadWriter(fileio.WithTestRootDir(t.TempDir()))
	return &vars{
		assertions: require.New(t),
		ctrl:       ctrl,
		mockClient: client.NewMockProtocol(ctrl),
		rw:         rw,
		ctx:        context.Background(),
	}
}

func (v *vars) record(entry v1alpha1.StatusEntry) {
	v.entries = append(v.entries, entry)
}

func (v *vars) manager(behavior Behavior) *Manager {
	return NewManager(v.mockClient, v.rw, behavior, log.NewPrefixLogger(""))
}

func (v *vars) details() []string {
	details := make([]string, 0, len(v.entries))
	for _, entry := range v.entries {
		details = append(details, entry.Details[0])
	}
	return details
}

// scriptedBehavior replays a fixed list of retry decisions and records the
// attempt numbers it was consulted with.
type scriptedBehavior struct {
	tries    []Try
	consults []int
}

func (b *scriptedBehavior) OnAttempt(attempt int, artifactID string, prevErr error) Try {
	b.consults = append(b.consults, attempt)
	if attempt > len(b.tries) {
		return TryStop()
	}
	return b.tries[attempt-1]
}

func testAction(artifacts ...v1alpha1.Artifact) *v1alpha1.Action {
	return &v1alpha1.Action{
		ID: "42",
		Modules: []v1alpha1.SoftwareModule{
			{
				ID:        "module-1",
				Type:      "application",
				Name:      "app",
				Artifacts: artifacts,
			},
		},
	}
}

func test1Artifact() v1alpha1.Artifact {
	return v1alpha1.Artifact{
		Name:        "test1",
		Hashes:      v1alpha1.Hashes{Md5: test1Md5},
		Size:        int64(len(test1Content)),
		DownloadURL: "http://server/artifacts/test1",
	}
}

func stream(content string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(content))
}

func TestDownloadActionSuccess(t *testing.T) {
	v := setup(t)
	defer v.ctrl.Finish()

	v.mockClient.EXPECT().
		OpenArtifact(gomock.Any(), "http://server/artifacts/test1").
		Return(stream(test1Content), int64(len(test1Content)), nil)

	modules, err := v.manager(NewDefaultBehavior()).DownloadAction(v.ctx, testAction(test1Artifact()), "artifacts", v.record)
	v.assertions.NoError(err)

	v.assertions.Equal([]string{
		"Start downloading 1 files",
		"Successfully downloaded file with md5 " + test1Md5,
		"Successfully downloaded all files",
	}, v.details())

	v.assertions.Len(modules, 1)
	path, ok := modules[0].Paths["test1"]
	v.assertions.True(ok)
	content, err := v.rw.ReadFile("artifacts/42/test1")
	v.assertions.NoError(err)
	v.assertions.Equal(test1Content, string(content))
	v.assertions.Equal(v.rw.PathFor("artifacts/42/test1"), path)
}

func TestDownloadActionOrdering(t *testing.T) {
	v := setup(t)
	defer v.ctrl.Finish()

	second := v1alpha1.Artifact{
		Name:        "test2",
		Hashes:      v1alpha1.Hashes{Md5: test2Md5},
		Size:        int64(len(test2Content)),
		DownloadURL: "http://server/artifacts/test2",
	}

	v.mockClient.EXPECT().
		OpenArtifact(gomock.Any(), "http://server/artifacts/test1").
		Return(stream(test1Content), int64(len(test1Content)), nil)
	v.mockClient.EXPECT().
		OpenArtifact(gomock.Any(), "http://server/artifacts/test2").
		Return(stream(test2Content), int64(len(test2Content)), nil)

	_, err := v.manager(NewDefaultBehavior()).DownloadAction(v.ctx, testAction(test1Artifact(), second), "artifacts", v.record)
	v.assertions.NoError(err)

	v.assertions.Equal([]string{
		"Start downloading 2 files",
		"Successfully downloaded file with md5 " + test1Md5,
		"Successfully downloaded file with md5 " + test2Md5,
		"Successfully downloaded all files",
	}, v.details())
}

func TestDownloadRetryExhaustion(t *testing.T) {
	v := setup(t)
	defer v.ctrl.Finish()

	// first attempt fails on transport, the behavior allows one immediate
	// retry, the second attempt fails on integrity, then the behavior stops
	behavior := &scriptedBehavior{tries: []Try{TryAfter(0), TryStop()}}

	gomock.InOrder(
		v.mockClient.EXPECT().
			OpenArtifact(gomock.Any(), "http://server/artifacts/test1").
			Return(nil, int64(0), errors.Newf("%w: connection reset", errors.ErrNetwork)),
		v.mockClient.EXPECT().
			OpenArtifact(gomock.Any(), "http://server/artifacts/test1").
			Return(stream("corrupted bytes"), int64(15), nil),
	)

	_, err := v.manager(behavior).DownloadAction(v.ctx, testAction(test1Artifact()), "artifacts", v.record)
	v.assertions.ErrorIs(err, errors.ErrDownloadAbandoned)
	v.assertions.ErrorIs(err, errors.ErrIntegrity)
	v.assertions.Equal([]int{1, 2}, behavior.consults)

	// a partial batch never emits per-file or aggregate entries
	v.assertions.Equal([]string{"Start downloading 1 files"}, v.details())

	// the corrupt file must not survive under its final name
	exists, err := v.rw.FileExists("artifacts/42/test1")
	v.assertions.NoError(err)
	v.assertions.False(exists)
}

func TestDownloadSkipsVerifiedExisting(t *testing.T) {
	v := setup(t)
	defer v.ctrl.Finish()

	// file already on disk with matching md5, no transfer expected
	v.assertions.NoError(v.rw.WriteFile("artifacts/42/test1", []byte(test1Content), fileio.DefaultFilePermissions))

	modules, err := v.manager(NewDefaultBehavior()).DownloadAction(v.ctx, testAction(test1Artifact()), "artifacts", v.record)
	v.assertions.NoError(err)
	v.assertions.Len(modules, 1)
	v.assertions.Equal([]string{
		"Start downloading 1 files",
		"Successfully downloaded file with md5 " + test1Md5,
		"Successfully downloaded all files",
	}, v.details())
}

func TestDownloadContextCanceledDuringDelay(t *testing.T) {
	v := setup(t)
	defer v.ctrl.Finish()

	behavior := &scriptedBehavior{tries: []Try{TryAfter(time.Hour)}}
	ctx, cancel := context.WithCancel(context.Background())

	v.mockClient.EXPECT().
		OpenArtifact(gomock.Any(), "http://server/artifacts/test1").
		DoAndReturn(func(context.Context, string) (io.ReadCloser, int64, error) {
			cancel()
			return nil, int64(0), errors.Newf("%w: connection reset", errors.ErrNetwork)
		})

	_, err := v.manager(behavior).DownloadAction(ctx, testAction(test1Artifact()), "artifacts", v.record)
	v.assertions.Error(err)
}
