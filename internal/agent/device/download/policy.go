package download

import (
	"time"

	"github.com/updatectl/updatectl/pkg/poll"
)

// Try is a retry decision: either wait After and attempt the download again,
// or Stop and abandon the artifact.
type Try struct {
	Stop  bool
	After time.Duration
}

func TryAfter(delay time.Duration) Try {
	return Try{After: delay}
}

func TryStop() Try {
	return Try{Stop: true}
}

// Behavior decides, after a failed download attempt, whether the artifact is
// retried. It is consulted with the number of attempts made so far (starting
// at 1) and the error that failed the last one. Implementations are supplied
// by the embedding application; must be a pure function of its arguments.
type Behavior interface {
	OnAttempt(attempt int, artifactID string, prevErr error) Try
}

const (
	// DefaultRetrySteps is how many attempts the default behavior allows per
	// artifact.
	DefaultRetrySteps = 6

	defaultRetryBaseDelay = 10 * time.Second
	defaultRetryMaxDelay  = 5 * time.Minute
)

type exponentialBehavior struct {
	cfg         poll.Config
	maxAttempts int
}

// NewExponentialBehavior returns a Behavior that backs off exponentially
// between attempts and abandons the artifact once maxAttempts have failed. A
// maxAttempts of 0 retries forever.
func NewExponentialBehavior(cfg poll.Config, maxAttempts int) Behavior {
	return &exponentialBehavior{cfg: cfg, maxAttempts: maxAttempts}
}

// NewDefaultBehavior returns the behavior used when the embedding application
// supplies none.
func NewDefaultBehavior() Behavior {
	return NewExponentialBehavior(poll.Config{
		BaseDelay: defaultRetryBaseDelay,
		Factor:    2,
		MaxDelay:  defaultRetryMaxDelay,
	}, DefaultRetrySteps)
}

func (b *exponentialBehavior) OnAttempt(attempt int, artifactID string, prevErr error) Try {
	if b.maxAttempts > 0 && attempt >= b.maxAttempts {
		return TryStop()
	}
	return TryAfter(poll.CalculateBackoffDelay(&b.cfg, attempt))
}
