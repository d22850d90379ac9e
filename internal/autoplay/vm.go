// Package autoplay drives discrete-choice games with sandboxed JavaScript
// strategies. A strategy defines choose(view) and returns an option index.
package autoplay

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

var (
	// ErrScript wraps failures raised while running strategy code.
	ErrScript = errors.New("autoplay: script error")
	// ErrNoChoose is returned when a script does not define choose().
	ErrNoChoose = errors.New("autoplay: script must define a choose(view) function")
	// ErrTimeout is returned when a script call runs past its budget.
	ErrTimeout = errors.New("autoplay: script timed out")
	// ErrBadChoice is returned when choose() does not return an integer.
	ErrBadChoice = errors.New("autoplay: choose() must return an option index")
)

// LogEntry is a single log line written by a strategy.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Prompt is what a strategy sees of the current challenge.
type Prompt struct {
	Game    string   `json:"game"`
	Index   int      `json:"index"`
	Total   int      `json:"total"`
	Prompt  string   `json:"prompt"`
	Emoji   string   `json:"emoji"`
	Options []string `json:"options"`
	Score   int      `json:"score"`
	Combo   int      `json:"combo"`
	Record  int      `json:"record"`
}

// VM wraps a goja runtime with the sandbox and the strategy globals.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	initTimeout time.Duration
	callTimeout time.Duration

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int

	stopRequested bool
}

// NewVM creates a sandboxed runtime. callTimeout bounds every choose() call.
func NewVM(callTimeout time.Duration) *VM {
	if callTimeout <= 0 {
		callTimeout = 250 * time.Millisecond
	}
	vm := &VM{
		runtime:     goja.New(),
		initTimeout: 2 * time.Second,
		callTimeout: callTimeout,
		maxLogs:     200,
	}
	vm.runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	vm.injectGlobals()
	return vm
}

func (vm *VM) injectGlobals() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.logsMu.Lock()
		if len(vm.logs) >= vm.maxLogs {
			vm.logs = vm.logs[1:]
		}
		vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: strings.Join(parts, " ")})
		vm.logsMu.Unlock()
		return goja.Undefined()
	})
	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	// stop() ends the run after the current move.
	vm.runtime.Set("stop", func(goja.FunctionCall) goja.Value {
		vm.stopRequested = true
		return goja.Undefined()
	})

	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		vm.runtime.Set(name, goja.Undefined())
	}
}

// Execute runs the strategy source once and checks that choose() exists.
func (vm *VM) Execute(source string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, err := vm.guard(vm.initTimeout, func() (goja.Value, error) {
		return vm.runtime.RunString(source)
	}); err != nil {
		return fmt.Errorf("%w: execution: %w", ErrScript, err)
	}
	if _, ok := goja.AssertFunction(vm.runtime.Get("choose")); !ok {
		return ErrNoChoose
	}
	return nil
}

// Choose asks the strategy for an option index.
func (vm *VM) Choose(p Prompt) (int, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	fn, ok := goja.AssertFunction(vm.runtime.Get("choose"))
	if !ok {
		return 0, ErrNoChoose
	}
	arg := vm.runtime.ToValue(p)
	v, err := vm.guard(vm.callTimeout, func() (goja.Value, error) {
		return fn(goja.Undefined(), arg)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: choose(): %w", ErrScript, err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, ErrBadChoice
	}
	f := v.ToFloat()
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%w: got %v", ErrBadChoice, v)
	}
	return int(f), nil
}

// guard runs fn and interrupts the runtime if it exceeds timeout.
func (vm *VM) guard(timeout time.Duration, fn func() (goja.Value, error)) (goja.Value, error) {
	t := time.AfterFunc(timeout, func() { vm.runtime.Interrupt("timeout") })
	v, err := fn()
	t.Stop()
	vm.runtime.ClearInterrupt()
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, ErrTimeout
	}
	return v, err
}

// StopRequested reports whether the strategy called stop().
func (vm *VM) StopRequested() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stopRequested
}

// Logs returns a copy of the strategy's log buffer.
func (vm *VM) Logs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}
