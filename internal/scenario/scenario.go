// Package scenario holds the static Scenario declaration and the builder
// used to construct one. Scenarios are declared once at program start and
// never mutated afterwards (spec.md §3's lifecycle summary). Grounded on
// the original implementation's Scenario pydantic model
// (_examples/original_source/cicadad/core/scenario.py) and its decorator
// stack (_examples/original_source/cicadad/core/decorators.py); the
// decorator stack does not translate to idiomatic Go, so it is replaced
// here by a fluent Builder, per the design note in spec.md §9.
package scenario

import (
	"cicadad/internal/backend"
	"cicadad/internal/loadmodel"
	"cicadad/internal/runtime"
	"cicadad/internal/userloop"
	"cicadad/internal/userrunner"
)

// DefaultUsersPerInstance matches the original's default.
const DefaultUsersPerInstance = 50

// ConsoleMetricDisplay renders a metric series' derived statistics into a
// human-readable string for the batch console report (internal/console).
type ConsoleMetricDisplay func(stats backend.MetricStatistics) string

// Scenario is the static, immutable declaration of one load test scenario.
type Scenario struct {
	Name      string
	Fn        userrunner.ScenarioFunc
	UserLoop  userloop.Policy
	LoadModel loadmodel.Fn

	Dependencies []*Scenario

	ResultAggregator  runtime.ResultAggregator
	ResultVerifier    runtime.ResultVerifier
	OutputTransformer runtime.OutputTransformer

	UsersPerInstance int
	RaiseException   bool

	MetricCollectors      []runtime.MetricCollector
	ConsoleMetricDisplays map[string]ConsoleMetricDisplay

	Tags []string
}

// Builder constructs a Scenario fluently, replacing the original's
// decorator stack (@scenario, @user_loop, @users_per_instance, @load_model,
// @dependency, @result_aggregator, ...) with chained calls on one value.
type Builder struct {
	scenario Scenario
}

// NewBuilder starts building a scenario named name that runs fn.
func NewBuilder(name string, fn userrunner.ScenarioFunc) *Builder {
	return &Builder{
		scenario: Scenario{
			Name:                  name,
			Fn:                    fn,
			UsersPerInstance:      DefaultUsersPerInstance,
			RaiseException:        true,
			ConsoleMetricDisplays: make(map[string]ConsoleMetricDisplay),
		},
	}
}

// WithUserLoop sets the User Loop policy run per user (spec.md §4.3).
func (b *Builder) WithUserLoop(policy userloop.Policy) *Builder {
	b.scenario.UserLoop = policy
	return b
}

// WithLoadModel sets the Load Model driving this scenario (spec.md §4.7).
func (b *Builder) WithLoadModel(fn loadmodel.Fn) *Builder {
	b.scenario.LoadModel = fn
	return b
}

// WithUsersPerInstance overrides the default users-per-manager sharding.
func (b *Builder) WithUsersPerInstance(n int) *Builder {
	b.scenario.UsersPerInstance = n
	return b
}

// WithRaiseException controls whether accumulated verifier errors with no
// output propagate as a fatal scenario exception (true, the default) or
// are merely recorded.
func (b *Builder) WithRaiseException(raise bool) *Builder {
	b.scenario.RaiseException = raise
	return b
}

// DependsOn declares upstream scenarios that must finish before this one
// starts, feeding the Test Runner's dependency DAG.
func (b *Builder) DependsOn(deps ...*Scenario) *Builder {
	b.scenario.Dependencies = append(b.scenario.Dependencies, deps...)
	return b
}

// WithResultAggregator sets the per-poll result aggregation step.
func (b *Builder) WithResultAggregator(agg runtime.ResultAggregator) *Builder {
	b.scenario.ResultAggregator = agg
	return b
}

// WithResultVerifier sets the per-poll result verification step.
func (b *Builder) WithResultVerifier(verify runtime.ResultVerifier) *Builder {
	b.scenario.ResultVerifier = verify
	return b
}

// WithOutputTransformer sets the function that produces the scenario's
// final output value from its aggregated state.
func (b *Builder) WithOutputTransformer(transform runtime.OutputTransformer) *Builder {
	b.scenario.OutputTransformer = transform
	return b
}

// WithMetricCollector registers one more metric collector.
func (b *Builder) WithMetricCollector(collector runtime.MetricCollector) *Builder {
	b.scenario.MetricCollectors = append(b.scenario.MetricCollectors, collector)
	return b
}

// WithConsoleMetricDisplay registers a named console rendering for a
// metric series.
func (b *Builder) WithConsoleMetricDisplay(name string, display ConsoleMetricDisplay) *Builder {
	b.scenario.ConsoleMetricDisplays[name] = display
	return b
}

// WithTags attaches tags used for selective scenario execution (run
// --tag).
func (b *Builder) WithTags(tags ...string) *Builder {
	b.scenario.Tags = append(b.scenario.Tags, tags...)
	return b
}

// Build finalizes and returns the immutable Scenario.
func (b *Builder) Build() *Scenario {
	s := b.scenario
	return &s
}

// HasTag reports whether the scenario carries tag.
func (s *Scenario) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
