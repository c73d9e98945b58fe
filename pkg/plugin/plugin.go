// Package plugin flattens a plugin list, dependencies first, and folds each
// plugin's config transform, override layers and route handlers in that
// order.
package plugin

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aussiebroadwan/tabsession/pkg/framework"
)

// AppInfo describes the host application.
type AppInfo struct {
	AppName       string
	APIDomain     string
	WebsiteDomain string
	APIBasePath   string
}

// RouteHandler is an extra endpoint a plugin mounts under the API base path.
type RouteHandler struct {
	Method  string
	Path    string
	Handler framework.Handler
}

// Plugin extends the SDK. C is the SDK config type.
type Plugin[C any] struct {
	ID      string
	Version string

	// CompatibleSDKVersions are semver ranges; the running SDK must satisfy
	// at least one. Empty means any version.
	CompatibleSDKVersions []string

	// Dependencies returns plugins that must be resolved before this one.
	// An error aborts startup.
	Dependencies func(cfg C, app AppInfo, sdkVersion string) ([]*Plugin[C], error)

	// Config transforms the SDK config; later plugins see the result.
	Config func(cfg C) C

	// OverrideMap holds override layers keyed by recipe id. Each recipe
	// documents the value type it expects.
	OverrideMap map[string]any

	RouteHandlers []RouteHandler

	// Init runs once every recipe has been constructed.
	Init func(cfg C, app AppInfo, sdkVersion string) error
}

// Resolve expands dependencies depth first, each before its dependant.
// A dependency whose id is already resolved, or still being expanded, is
// skipped. Distinct top-level plugins sharing an id survive resolution and
// are reported together as a ConfigError.
func Resolve[C any](plugins []*Plugin[C], cfg C, app AppInfo, sdkVersion string) ([]*Plugin[C], error) {
	var (
		out  []*Plugin[C]
		seen = make(map[string]bool)
	)

	var expand func(p *Plugin[C]) error
	expand = func(p *Plugin[C]) error {
		seen[p.ID] = true
		if p.Dependencies != nil {
			deps, err := p.Dependencies(cfg, app, sdkVersion)
			if err != nil {
				return &ConfigError{Message: fmt.Sprintf("plugin %q dependencies", p.ID), Err: err}
			}
			for _, dep := range deps {
				if dep == nil || seen[dep.ID] {
					continue
				}
				if err := expand(dep); err != nil {
					return err
				}
			}
		}
		out = append(out, p)
		return nil
	}

	for _, p := range plugins {
		if p == nil || slices.Contains(out, p) {
			continue
		}
		if p.ID == "" {
			return nil, NewConfigError("plugin without an id")
		}
		if err := expand(p); err != nil {
			return nil, err
		}
	}

	if dups := duplicateIDs(out); len(dups) > 0 {
		return nil, NewConfigError("duplicate plugin ids: %s", strings.Join(dups, ", "))
	}

	for _, p := range out {
		if err := CheckVersion(p.ID, p.CompatibleSDKVersions, sdkVersion); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// duplicateIDs lists every id that occurs more than once, in first-seen order.
func duplicateIDs[C any](plugins []*Plugin[C]) []string {
	count := make(map[string]int, len(plugins))
	var order []string
	for _, p := range plugins {
		if count[p.ID] == 0 {
			order = append(order, p.ID)
		}
		count[p.ID]++
	}

	var dups []string
	for _, id := range order {
		if count[id] > 1 {
			dups = append(dups, id)
		}
	}
	return dups
}

// Applied is the folded contribution of a resolved plugin list.
type Applied[C any] struct {
	Plugins       []*Plugin[C]
	Config        C
	RouteHandlers []RouteHandler

	overrides map[string][]any
}

// Overrides returns the layers contributed for recipeID in resolution order.
// Recipes add the user's own layer after these.
func (a *Applied[C]) Overrides(recipeID string) []any {
	return a.overrides[recipeID]
}

// Apply folds config transforms, override layers and route handlers in
// resolution order.
func Apply[C any](resolved []*Plugin[C], cfg C) *Applied[C] {
	a := &Applied[C]{
		Plugins:   resolved,
		Config:    cfg,
		overrides: make(map[string][]any),
	}
	for _, p := range resolved {
		if p.Config != nil {
			a.Config = p.Config(a.Config)
		}
		for recipeID, layer := range p.OverrideMap {
			if layer != nil {
				a.overrides[recipeID] = append(a.overrides[recipeID], layer)
			}
		}
		a.RouteHandlers = append(a.RouteHandlers, p.RouteHandlers...)
	}
	return a
}

// LayersOf picks the layers of type L out of an Applied override list,
// ignoring anything else a plugin put under the recipe id.
func LayersOf[L any](layers []any) []L {
	out := make([]L, 0, len(layers))
	for _, l := range layers {
		if typed, ok := l.(L); ok {
			out = append(out, typed)
		}
	}
	return out
}
