package updater

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/updatectl/updatectl/api/v1alpha1"
)

// Registry routes software modules to the updaters that declare them.
// Updaters are consulted in registration order, the first match wins.
type Registry struct {
	updaters []Updater
}

func NewRegistry(updaters ...Updater) *Registry {
	return &Registry{updaters: updaters}
}

// Assignment groups the modules routed to one updater, preserving the
// registration order of the updaters.
type Assignment struct {
	Updater Updater
	Modules []ModuleWithPath
}

// Route assigns each module to the first updater that handles it. Modules no
// updater claims are returned separately so the caller can fail the action.
func (r *Registry) Route(modules []ModuleWithPath) (assignments []Assignment, unclaimed []ModuleWithPath) {
	byUpdater := make(map[Updater][]ModuleWithPath, len(r.updaters))
	for _, module := range modules {
		claimed := false
		for _, u := range r.updaters {
			if u.Handles(module.Module) {
				byUpdater[u] = append(byUpdater[u], module)
				claimed = true
				break
			}
		}
		if !claimed {
			unclaimed = append(unclaimed, module)
		}
	}

	for _, u := range r.updaters {
		if routed, ok := byUpdater[u]; ok {
			assignments = append(assignments, Assignment{Updater: u, Modules: routed})
		}
	}
	return assignments, unclaimed
}

// Apply routes the modules and invokes each responsible updater in order.
// The aggregate result is successful only if every updater succeeded; detail
// lines are concatenated in invocation order.
func (r *Registry) Apply(ctx context.Context, modules []ModuleWithPath, messenger Messenger) v1alpha1.UpdateResult {
	assignments, unclaimed := r.Route(modules)
	if len(unclaimed) > 0 {
		names := lo.Map(unclaimed, func(m ModuleWithPath, _ int) string {
			return m.Module.Name
		})
		return v1alpha1.UpdateResult{
			Success: false,
			Details: []string{fmt.Sprintf("No updater registered for modules %v", names)},
		}
	}

	result := v1alpha1.UpdateResult{Success: true}
	for _, assignment := range assignments {
		partial := assignment.Updater.Apply(ctx, assignment.Modules, messenger)
		result.Details = append(result.Details, partial.Details...)
		if !partial.Success {
			result.Success = false
		}
	}
	return result
}
