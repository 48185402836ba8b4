package resolve

import (
	"fmt"
	"strings"

	"github.com/fks-ops/fks-entrypoint/pkg/descriptor"
	"github.com/fks-ops/fks-entrypoint/pkg/errors"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
)

// ResolvedCommand is a concrete runnable command produced by resolution.
// It is consumed exactly once, by the supervisor spawning the main process.
type ResolvedCommand struct {
	Executable         string
	Args               []string
	WorkingDirectory   string
	EnvironmentOverlay map[string]string

	// Source names the strategy that produced the command, for diagnostics
	Source string
}

// Strategy is one candidate method of turning a descriptor into a runnable
// command. Returning (nil, nil) means the strategy does not apply; the chain
// moves on. Strategies record every candidate they inspect on the trace.
type Strategy interface {
	Name() string
	Resolve(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error)
}

// Attempt records one inspected candidate during resolution
type Attempt struct {
	Strategy  string
	Candidate string
	Reason    string
}

// AttemptTrace accumulates every strategy/candidate consulted during a single
// Resolve call, so misconfiguration is diagnosable from the log alone.
type AttemptTrace struct {
	attempts []Attempt
}

func (t *AttemptTrace) Record(strategy, candidate, reason string) {
	t.attempts = append(t.attempts, Attempt{Strategy: strategy, Candidate: candidate, Reason: reason})
}

func (t *AttemptTrace) Attempts() []Attempt {
	out := make([]Attempt, len(t.attempts))
	copy(out, t.attempts)
	return out
}

func (t *AttemptTrace) Summary() string {
	if len(t.attempts) == 0 {
		return "no candidates inspected"
	}
	lines := make([]string, 0, len(t.attempts))
	for _, a := range t.attempts {
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", a.Strategy, a.Candidate, a.Reason))
	}
	return strings.Join(lines, "; ")
}

// Options configures the default strategy chain
type Options struct {
	// ServiceRoot is the directory the service is deployed under, typically /app
	ServiceRoot string

	// PythonCommand runs python workloads; defaults to python3
	PythonCommand string

	// DispatcherModule is the unified dispatcher python module; defaults to fks.main
	DispatcherModule string

	// FallbackPort is used by the emergency fallback server when the
	// descriptor declares no port
	FallbackPort int
}

func (o *Options) setDefaults() {
	if o.ServiceRoot == "" {
		o.ServiceRoot = "/app"
	}
	if o.PythonCommand == "" {
		o.PythonCommand = "python3"
	}
	if o.DispatcherModule == "" {
		o.DispatcherModule = "fks.main"
	}
	if o.FallbackPort == 0 {
		o.FallbackPort = 8000
	}
}

// Resolver evaluates an ordered strategy chain; the first strategy that
// yields a command wins.
type Resolver struct {
	strategies []Strategy
	logger     logging.Logger
}

// NewResolver builds a resolver with the default strategy chain, highest
// priority first. The final strategy always succeeds, so resolution of a
// valid descriptor cannot fail.
func NewResolver(options Options, logger logging.Logger) *Resolver {
	options.setDefaults()
	return &Resolver{
		strategies: []Strategy{
			&EnhancedLauncherStrategy{ServiceRoot: options.ServiceRoot},
			&RuntimeLauncherStrategy{ServiceRoot: options.ServiceRoot},
			&UnifiedDispatcherStrategy{
				ServiceRoot:   options.ServiceRoot,
				PythonCommand: options.PythonCommand,
				Module:        options.DispatcherModule,
			},
			&RuntimeConventionStrategy{ServiceRoot: options.ServiceRoot, PythonCommand: options.PythonCommand},
			&BinarySearchPathStrategy{ServiceRoot: options.ServiceRoot},
			&ServiceModuleStrategy{ServiceRoot: options.ServiceRoot, PythonCommand: options.PythonCommand},
			&FallbackStrategy{Port: options.FallbackPort},
		},
		logger: logger,
	}
}

// NewResolverWithStrategies builds a resolver from an explicit chain
func NewResolverWithStrategies(strategies []Strategy, logger logging.Logger) *Resolver {
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve evaluates the chain for the descriptor and returns the first
// command produced. The descriptor's declared fields are always merged into
// the winning command's environment overlay, so no configuration is dropped
// between the environment and the child process.
func (r *Resolver) Resolve(desc descriptor.ServiceDescriptor) (*ResolvedCommand, error) {
	if err := desc.Validate(); err != nil {
		return nil, errors.NewValidationError("invalid service descriptor", err).
			WithContext("service_kind", desc.ServiceKind).
			WithContext("runtime", string(desc.Runtime))
	}

	trace := &AttemptTrace{}

	for _, strategy := range r.strategies {
		cmd, err := strategy.Resolve(desc, trace)
		if err != nil {
			// Strategy-internal errors are not fatal to the chain
			r.logger.Warnf("Resolution strategy failed, strategy: %s, error: %v", strategy.Name(), err)
			trace.Record(strategy.Name(), "-", fmt.Sprintf("error: %v", err))
			continue
		}
		if cmd == nil {
			continue
		}

		cmd.Source = strategy.Name()
		r.mergeOverlay(cmd, desc)
		if _, isFallback := strategy.(*FallbackStrategy); !isFallback {
			// Extra args belong to the real workload, not the fallback server
			cmd.Args = append(cmd.Args, desc.ExtraArgs...)
		}

		r.logger.Infof("Command resolved, strategy: %s, executable: %s, args: %v, %s",
			strategy.Name(), cmd.Executable, cmd.Args, desc)
		r.logger.Debugf("Resolution trace: %s", trace.Summary())

		return cmd, nil
	}

	// Unreachable with the default chain: the fallback strategy always matches
	r.logger.Errorf("No resolution strategy matched, %s, attempted: %s", desc, trace.Summary())
	return nil, errors.NewNotFoundError("no resolution strategy matched", nil).
		WithContext("service_kind", desc.ServiceKind).
		WithContext("attempts", trace.Summary())
}

// mergeOverlay layers the descriptor overlay under any strategy-specific
// entries, keeping strategy values on key collisions.
func (r *Resolver) mergeOverlay(cmd *ResolvedCommand, desc descriptor.ServiceDescriptor) {
	merged := desc.EnvironmentOverlay()
	for key, value := range cmd.EnvironmentOverlay {
		merged[key] = value
	}
	cmd.EnvironmentOverlay = merged
}
