package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/updatectl/updatectl/api/v1alpha1"
	"github.com/updatectl/updatectl/internal/agent/client"
	"github.com/updatectl/updatectl/internal/agent/device/errors"
	"github.com/updatectl/updatectl/internal/agent/device/fileio"
	"github.com/updatectl/updatectl/internal/agent/updater"
	"github.com/updatectl/updatectl/pkg/log"
)

// Manager fetches the artifacts of an action, verifying each against its
// declared md5 and applying the retry behavior on failure. Artifacts are
// transferred one at a time so the per-file status entries land in a
// deterministic order.
type Manager struct {
	client   client.Protocol
	rw       fileio.ReadWriter
	behavior Behavior
	log      *log.PrefixLogger
}

func NewManager(
	client client.Protocol,
	rw fileio.ReadWriter,
	behavior Behavior,
	log *log.PrefixLogger,
) *Manager {
	return &Manager{
		client:   client,
		rw:       rw,
		behavior: behavior,
		log:      log,
	}
}

// DownloadAction downloads and verifies every artifact of every module of
// the action into destDir, emitting status entries through record in the
// batch order: one start entry, one per verified file, one aggregate entry
// after the last artifact. A partial batch never emits the aggregate entry.
func (m *Manager) DownloadAction(
	ctx context.Context,
	action *v1alpha1.Action,
	destDir string,
	record func(v1alpha1.StatusEntry),
) ([]updater.ModuleWithPath, error) {
	total := 0
	for _, module := range action.Modules {
		total += len(module.Artifacts)
	}

	record(v1alpha1.NewRunningEntry(fmt.Sprintf("Start downloading %d files", total)))

	modules := make([]updater.ModuleWithPath, 0, len(action.Modules))
	for i := range action.Modules {
		module := &action.Modules[i]
		withPath := updater.ModuleWithPath{
			Module: module,
			Paths:  make(map[string]string, len(module.Artifacts)),
		}
		for _, artifact := range module.Artifacts {
			dest := filepath.Join(destDir, action.ID, artifact.Name)
			if err := m.downloadArtifact(ctx, artifact, dest); err != nil {
				return nil, err
			}
			record(v1alpha1.NewRunningEntry(fmt.Sprintf("Successfully downloaded file with md5 %s", artifact.Hashes.Md5)))
			withPath.Paths[artifact.Name] = m.rw.PathFor(dest)
		}
		modules = append(modules, withPath)
	}

	record(v1alpha1.NewRunningEntry("Successfully downloaded all files"))
	return modules, nil
}

// downloadArtifact transfers one artifact, retrying per the behavior until it
// verifies or the behavior says stop.
func (m *Manager) downloadArtifact(ctx context.Context, artifact v1alpha1.Artifact, dest string) error {
	verified, err := m.verifyExisting(artifact, dest)
	if err == nil && verified {
		m.log.Infof("Artifact %q already on disk and verified, skipping download", artifact.Name)
		return nil
	}

	attempt := 0
	for {
		err := m.transfer(ctx, artifact, dest)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		attempt++
		try := m.behavior.OnAttempt(attempt, artifact.Name, err)
		if try.Stop {
			return fmt.Errorf("%w: artifact %q after %d attempts: %w", errors.ErrDownloadAbandoned, artifact.Name, attempt, err)
		}

		m.log.Warnf("Downloading artifact %q failed (attempt %d), retrying in %s: %v", artifact.Name, attempt, try.After, err)
		select {
		case <-time.After(try.After):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// transfer streams the artifact to dest, computing the md5 incrementally.
// The file only replaces dest once the full stream is on disk, and the
// checksum mismatch removes it again so a bad artifact never survives.
func (m *Manager) transfer(ctx context.Context, artifact v1alpha1.Artifact, dest string) error {
	stream, size, err := m.client.OpenArtifact(ctx, artifact.DownloadURL)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	hash := md5.New()
	written, err := m.rw.WriteStream(dest, io.TeeReader(stream, hash), fileio.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("%w: transferring artifact %q: %w", errors.ErrNetwork, artifact.Name, err)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	if sum != artifact.Hashes.Md5 {
		if removeErr := m.rw.RemoveFile(dest); removeErr != nil {
			m.log.Errorf("Removing corrupt artifact %q: %v", artifact.Name, removeErr)
		}
		return fmt.Errorf("%w: artifact %q has md5 %s, expected %s", errors.ErrIntegrity, artifact.Name, sum, artifact.Hashes.Md5)
	}

	m.log.Infof("Downloaded artifact %q (%s of %s declared)", artifact.Name, humanize.Bytes(uint64(written)), humanize.Bytes(uint64(size)))
	return nil
}

// verifyExisting reports whether dest already holds content matching the
// declared md5.
func (m *Manager) verifyExisting(artifact v1alpha1.Artifact, dest string) (bool, error) {
	exists, err := m.rw.FileExists(dest)
	if err != nil || !exists {
		return false, err
	}

	file, err := os.Open(m.rw.PathFor(dest))
	if err != nil {
		return false, err
	}
	defer func() { _ = file.Close() }()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return false, err
	}
	return hex.EncodeToString(hash.Sum(nil)) == artifact.Hashes.Md5, nil
}
