package engine

import (
	"context"

	"github.com/syssam/objectcore/tenancy"
)

// tenancyPlugin adapts tenancy.Plugin (spec §4.7) to the engine.Plugin
// interface: Install registers the resolver/filter-injector/mutation-guard
// hooks against every object the registry knows about at Start time, onto
// MandatoryHooks rather than the skippable user Hooks manager, so tenancy
// isolation is never bypassed by a request's IgnoreTriggers flag (spec §9
// Open Question).
type tenancyPlugin struct {
	p *tenancy.Plugin
}

// UseTenancy wraps p as an engine.Plugin for Engine.Use. Call this instead
// of registering tenancy.Plugin's hooks by hand.
func UseTenancy(p *tenancy.Plugin) Plugin {
	return &tenancyPlugin{p: p}
}

func (t *tenancyPlugin) Name() string { return t.p.Name() }

func (t *tenancyPlugin) Install(eng *Engine) error {
	mgr := eng.MandatoryHooks()
	for _, obj := range eng.Registry().Objects() {
		t.p.RegisterFor(obj.ID, mgr)
	}
	return nil
}

var _ StopHook = (*tenancyPlugin)(nil)

// OnStop is a no-op; the retention sweeper (if the host started one) owns
// its own lifecycle independent of the tenancy plugin's install step.
func (t *tenancyPlugin) OnStop(ctx context.Context) error { return nil }
