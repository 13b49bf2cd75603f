package updater

import (
	"context"

	"github.com/updatectl/updatectl/api/v1alpha1"
)

// Messenger lets an updater push human-readable progress lines to the server
// while Apply is still running. Every message becomes a running-kind status
// entry visible to the server before Apply returns.
type Messenger interface {
	SendMessageToServer(messages ...string)
}

// ModuleWithPath pairs a software module with the local paths of its
// downloaded, verified artifacts, keyed by artifact name.
type ModuleWithPath struct {
	Module *v1alpha1.SoftwareModule
	Paths  map[string]string
}

// Updater applies downloaded software modules to the device. Implementations
// are supplied by the embedding application; the agent only invokes them and
// interprets the result. An updater is only ever invoked once every artifact
// of the action has verified successfully.
type Updater interface {
	// Handles reports whether this updater is responsible for the module.
	Handles(module *v1alpha1.SoftwareModule) bool
	// Apply installs the modules. The messenger may be used any number of
	// times during the call.
	Apply(ctx context.Context, modules []ModuleWithPath, messenger Messenger) v1alpha1.UpdateResult
}
