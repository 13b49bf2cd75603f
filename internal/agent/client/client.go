package client

import (
	"context"
	"io"

	"github.com/updatectl/updatectl/api/v1alpha1"
)

//go:generate mockgen -source=client.go -destination=mock_client.go -package=client

// Protocol is the wire-level client the agent consumes. Implementations talk
// a polling update-management protocol (DDI style): the agent asks for the
// action currently assigned to the device, streams artifact bytes, and posts
// status feedback. All failures are returned as errors; transient transport
// failures wrap errors.ErrNetwork.
type Protocol interface {
	// FetchAction returns the action currently assigned to the device, or
	// errors.ErrNoContent when none is assigned.
	FetchAction(ctx context.Context) (*v1alpha1.Action, error)
	// OpenArtifact opens the byte stream of an artifact by its download
	// locator, returning the stream and the declared content length. The
	// caller owns closing the stream.
	OpenArtifact(ctx context.Context, url string) (io.ReadCloser, int64, error)
	// SubmitFeedback posts the given status entries for the action, in order.
	SubmitFeedback(ctx context.Context, actionID string, entries []v1alpha1.StatusEntry) error
}
