package resolve

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fks-ops/fks-entrypoint/pkg/descriptor"
	"github.com/fks-ops/fks-entrypoint/pkg/errors"
)

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0111 != 0
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// EnhancedLauncherStrategy prefers a project-provided launcher script over
// anything the supervisor could infer. Highest priority: when a deployment
// ships its own start script, it knows best.
type EnhancedLauncherStrategy struct {
	ServiceRoot string
}

func (s *EnhancedLauncherStrategy) Name() string { return "enhanced-launcher" }

func (s *EnhancedLauncherStrategy) candidates() []string {
	return []string{
		filepath.Join(s.ServiceRoot, "start-enhanced.sh"),
		filepath.Join(s.ServiceRoot, "scripts", "start-enhanced.sh"),
		filepath.Join(s.ServiceRoot, "start.sh"),
	}
}

func (s *EnhancedLauncherStrategy) Resolve(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	for _, candidate := range s.candidates() {
		if isExecutableFile(candidate) {
			trace.Record(s.Name(), candidate, "selected")
			return &ResolvedCommand{
				Executable:       candidate,
				Args:             []string{desc.ServiceKind},
				WorkingDirectory: s.ServiceRoot,
			}, nil
		}
		trace.Record(s.Name(), candidate, "not executable")
	}
	return nil, nil
}

// RuntimeLauncherStrategy looks for a launcher script dedicated to the
// declared runtime.
type RuntimeLauncherStrategy struct {
	ServiceRoot string
}

func (s *RuntimeLauncherStrategy) Name() string { return "runtime-launcher" }

func (s *RuntimeLauncherStrategy) candidates(runtime descriptor.Runtime) []string {
	names := map[descriptor.Runtime][]string{
		descriptor.RuntimePython: {"python-entrypoint.sh"},
		descriptor.RuntimeRust:   {"rust-entrypoint.sh"},
		descriptor.RuntimeNode:   {"node-entrypoint.sh"},
		descriptor.RuntimeDotNet: {"dotnet-entrypoint.sh"},
		descriptor.RuntimeHybrid: {"hybrid-entrypoint.sh", "python-entrypoint.sh"},
	}

	var out []string
	for _, name := range names[runtime] {
		out = append(out,
			filepath.Join(s.ServiceRoot, "scripts", name),
			filepath.Join(s.ServiceRoot, "entrypoints", name),
		)
	}
	return out
}

func (s *RuntimeLauncherStrategy) Resolve(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	for _, candidate := range s.candidates(desc.Runtime) {
		if isExecutableFile(candidate) {
			trace.Record(s.Name(), candidate, "selected")
			return &ResolvedCommand{
				Executable:       candidate,
				Args:             []string{desc.ServiceKind},
				WorkingDirectory: s.ServiceRoot,
			}, nil
		}
		trace.Record(s.Name(), candidate, "not executable")
	}
	return nil, nil
}

// UnifiedDispatcherStrategy runs the python dispatcher module with the
// service kind as its argument. All python services share this entry point.
type UnifiedDispatcherStrategy struct {
	ServiceRoot   string
	PythonCommand string
	Module        string
}

func (s *UnifiedDispatcherStrategy) Name() string { return "unified-dispatcher" }

func (s *UnifiedDispatcherStrategy) Resolve(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	if desc.Runtime != descriptor.RuntimePython && desc.Runtime != descriptor.RuntimeHybrid {
		return nil, nil
	}

	// The dispatcher package must actually be deployed under src/
	modulePath := filepath.Join(s.ServiceRoot, "src", filepath.FromSlash(strings.ReplaceAll(s.Module, ".", "/")))
	moduleCandidates := []string{
		modulePath + ".py",
		filepath.Join(modulePath, "__main__.py"),
	}

	found := false
	for _, candidate := range moduleCandidates {
		if fileExists(candidate) {
			trace.Record(s.Name(), candidate, "selected")
			found = true
			break
		}
		trace.Record(s.Name(), candidate, "missing")
	}
	if !found {
		return nil, nil
	}

	python, err := exec.LookPath(s.PythonCommand)
	if err != nil {
		trace.Record(s.Name(), s.PythonCommand, "interpreter not on PATH")
		return nil, nil
	}

	return &ResolvedCommand{
		Executable:       python,
		Args:             []string{"-m", s.Module, desc.ServiceKind},
		WorkingDirectory: s.ServiceRoot,
		EnvironmentOverlay: map[string]string{
			"PYTHONPATH": filepath.Join(s.ServiceRoot, "src"),
		},
	}, nil
}

// RuntimeConventionStrategy applies each runtime's own startup conventions:
// a package.json start script for node, a dotnet deployment dll, or the
// well-known python entry-file precedence list.
type RuntimeConventionStrategy struct {
	ServiceRoot   string
	PythonCommand string
}

func (s *RuntimeConventionStrategy) Name() string { return "runtime-convention" }

func (s *RuntimeConventionStrategy) Resolve(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	switch desc.Runtime {
	case descriptor.RuntimeNode:
		return s.resolveNode(desc, trace)
	case descriptor.RuntimeDotNet:
		return s.resolveDotNet(desc, trace)
	case descriptor.RuntimePython, descriptor.RuntimeHybrid:
		return s.resolvePythonEntryFiles(desc, trace)
	default:
		return nil, nil
	}
}

func (s *RuntimeConventionStrategy) resolveNode(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	manifest := filepath.Join(s.ServiceRoot, "package.json")
	if !fileExists(manifest) {
		trace.Record(s.Name(), manifest, "missing")
		return nil, nil
	}

	data, err := os.ReadFile(manifest)
	if err != nil {
		return nil, errors.NewIOError("failed to read package.json", err).WithContext("path", manifest)
	}

	var pkg struct {
		Main    string            `json:"main"`
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, errors.NewValidationError("failed to parse package.json", err).WithContext("path", manifest)
	}

	node, lookErr := exec.LookPath("node")

	if _, ok := pkg.Scripts["start"]; ok {
		npm, err := exec.LookPath("npm")
		if err == nil {
			trace.Record(s.Name(), manifest, "selected scripts.start")
			return &ResolvedCommand{
				Executable:       npm,
				Args:             []string{"run", "start"},
				WorkingDirectory: s.ServiceRoot,
			}, nil
		}
		trace.Record(s.Name(), "npm", "not on PATH")
	}

	if pkg.Main != "" && lookErr == nil {
		entry := filepath.Join(s.ServiceRoot, pkg.Main)
		if fileExists(entry) {
			trace.Record(s.Name(), entry, "selected main")
			return &ResolvedCommand{
				Executable:       node,
				Args:             []string{entry},
				WorkingDirectory: s.ServiceRoot,
			}, nil
		}
		trace.Record(s.Name(), entry, "missing")
	}

	return nil, nil
}

func (s *RuntimeConventionStrategy) resolveDotNet(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	candidates := []string{
		filepath.Join(s.ServiceRoot, fmt.Sprintf("fks_%s.dll", desc.ServiceKind)),
		filepath.Join(s.ServiceRoot, "app.dll"),
	}
	for _, candidate := range candidates {
		if !fileExists(candidate) {
			trace.Record(s.Name(), candidate, "missing")
			continue
		}
		dotnet, err := exec.LookPath("dotnet")
		if err != nil {
			trace.Record(s.Name(), "dotnet", "not on PATH")
			return nil, nil
		}
		trace.Record(s.Name(), candidate, "selected")
		return &ResolvedCommand{
			Executable:       dotnet,
			Args:             []string{candidate},
			WorkingDirectory: s.ServiceRoot,
		}, nil
	}
	return nil, nil
}

func (s *RuntimeConventionStrategy) resolvePythonEntryFiles(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	// Fixed precedence order; first existing entry file wins
	candidates := []string{
		filepath.Join(s.ServiceRoot, "main.py"),
		filepath.Join(s.ServiceRoot, "app.py"),
		filepath.Join(s.ServiceRoot, "src", "main.py"),
		filepath.Join(s.ServiceRoot, "src", "app.py"),
	}
	for _, candidate := range candidates {
		if !fileExists(candidate) {
			trace.Record(s.Name(), candidate, "missing")
			continue
		}
		python, err := exec.LookPath(s.PythonCommand)
		if err != nil {
			trace.Record(s.Name(), s.PythonCommand, "interpreter not on PATH")
			return nil, nil
		}
		trace.Record(s.Name(), candidate, "selected")
		return &ResolvedCommand{
			Executable:       python,
			Args:             []string{candidate},
			WorkingDirectory: s.ServiceRoot,
		}, nil
	}
	return nil, nil
}

// BinarySearchPathStrategy executes a prebuilt service binary located by a
// fixed per-runtime search path list.
type BinarySearchPathStrategy struct {
	ServiceRoot string

	// ExtraPaths are consulted after the built-in list, in order
	ExtraPaths []string
}

func (s *BinarySearchPathStrategy) Name() string { return "binary-search-path" }

func (s *BinarySearchPathStrategy) candidates(desc descriptor.ServiceDescriptor) []string {
	binary := "fks_" + desc.ServiceKind

	paths := []string{
		filepath.Join(s.ServiceRoot, "bin", binary),
		filepath.Join("/usr/local/bin", binary),
	}
	if desc.Runtime == descriptor.RuntimeRust || desc.Runtime == descriptor.RuntimeHybrid {
		paths = append(paths, filepath.Join(s.ServiceRoot, "target", "release", binary))
	}
	for _, extra := range s.ExtraPaths {
		paths = append(paths, filepath.Join(extra, binary))
	}
	return paths
}

func (s *BinarySearchPathStrategy) Resolve(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	for _, candidate := range s.candidates(desc) {
		if isExecutableFile(candidate) {
			trace.Record(s.Name(), candidate, "selected")
			return &ResolvedCommand{
				Executable:       candidate,
				WorkingDirectory: s.ServiceRoot,
			}, nil
		}
		trace.Record(s.Name(), candidate, "not executable")
	}
	return nil, nil
}

// ServiceModuleStrategy runs a python module scoped by the service kind,
// fks.<kind>, when such a module is deployed under src/.
type ServiceModuleStrategy struct {
	ServiceRoot   string
	PythonCommand string
}

func (s *ServiceModuleStrategy) Name() string { return "service-module" }

func (s *ServiceModuleStrategy) Resolve(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	if desc.Runtime != descriptor.RuntimePython && desc.Runtime != descriptor.RuntimeHybrid {
		return nil, nil
	}

	module := "fks." + desc.ServiceKind
	base := filepath.Join(s.ServiceRoot, "src", "fks", desc.ServiceKind)
	candidates := []string{
		base + ".py",
		filepath.Join(base, "__main__.py"),
	}

	found := false
	for _, candidate := range candidates {
		if fileExists(candidate) {
			trace.Record(s.Name(), candidate, "selected")
			found = true
			break
		}
		trace.Record(s.Name(), candidate, "missing")
	}
	if !found {
		return nil, nil
	}

	python, err := exec.LookPath(s.PythonCommand)
	if err != nil {
		trace.Record(s.Name(), s.PythonCommand, "interpreter not on PATH")
		return nil, nil
	}

	return &ResolvedCommand{
		Executable:       python,
		Args:             []string{"-m", module},
		WorkingDirectory: s.ServiceRoot,
		EnvironmentOverlay: map[string]string{
			"PYTHONPATH": filepath.Join(s.ServiceRoot, "src"),
		},
	}, nil
}

// FallbackStrategy always succeeds: it re-execs the supervisor binary in
// fallback server mode, which exposes a liveness endpoint. A degraded but
// probeable container beats a crash loop.
type FallbackStrategy struct {
	Port int

	// Executable overrides the self-executable lookup; used by tests
	Executable string
}

func (s *FallbackStrategy) Name() string { return "emergency-fallback" }

func (s *FallbackStrategy) Resolve(desc descriptor.ServiceDescriptor, trace *AttemptTrace) (*ResolvedCommand, error) {
	exe := s.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, errors.NewInternalError("failed to locate own executable for fallback", err)
		}
	}

	port := desc.Port
	if port == 0 {
		port = s.Port
	}

	trace.Record(s.Name(), exe, "selected")

	return &ResolvedCommand{
		Executable: exe,
		Args:       []string{"--fallback-server", "--port", strconv.Itoa(port)},
	}, nil
}
