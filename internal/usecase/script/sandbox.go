// Package script evaluates untrusted user scripts in a goja sandbox. Every
// evaluation gets a fresh runtime, a hard wall-clock timeout and access only
// to the native modules and the git-backed module snapshot.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"polybot/internal/domain"
)

const DefaultTimeout = 10 * time.Second

// ModuleSource resolves require() names to script sources. Implemented by
// ModuleStorage; tests supply a map-backed fake.
type ModuleSource interface {
	Module(name string) (string, bool)
}

type Evaluator struct {
	modules ModuleSource
	store   domain.Store
	timeout time.Duration
	log     *zap.Logger
}

func NewEvaluator(modules ModuleSource, store domain.Store, timeout time.Duration, log *zap.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Evaluator{modules: modules, store: store, timeout: timeout, log: log}
}

// Eval runs source and returns its completion value rendered as text.
// channelID scopes the db module; 0 means the channel is not persisted and
// db access throws.
func (e *Evaluator) Eval(ctx context.Context, source string, channelID int64) (string, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stop := context.AfterFunc(evalCtx, func() {
		vm.Interrupt("evaluation timed out")
	})
	defer stop()

	requireCache := make(map[string]goja.Value)
	err := vm.Set("require", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		mod, err := e.require(evalCtx, vm, name, channelID, requireCache)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return mod
	})
	if err != nil {
		return "", fmt.Errorf("script: %w", err)
	}

	value, err := vm.RunString(source)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return "", fmt.Errorf("script: timed out after %s", e.timeout)
		}
		return "", fmt.Errorf("script: %w", err)
	}

	return renderValue(value), nil
}

func (e *Evaluator) require(ctx context.Context, vm *goja.Runtime, name string, channelID int64, cache map[string]goja.Value) (goja.Value, error) {
	if cached, ok := cache[name]; ok {
		return cached, nil
	}

	var mod goja.Value
	var err error
	switch name {
	case "http":
		mod = e.httpModule(ctx, vm)
	case "utils":
		mod = e.utilsModule(ctx, vm)
	case "db":
		mod = e.dbModule(ctx, vm, channelID)
	default:
		mod, err = e.loadStoredModule(ctx, vm, name, channelID, cache)
		if err != nil {
			return nil, err
		}
	}
	cache[name] = mod
	return mod, nil
}

// loadStoredModule compiles a module from the snapshot with the CommonJS
// module/exports wrapper.
func (e *Evaluator) loadStoredModule(ctx context.Context, vm *goja.Runtime, name string, channelID int64, cache map[string]goja.Value) (goja.Value, error) {
	if e.modules == nil {
		return nil, fmt.Errorf("module storage is not configured")
	}
	src, ok := e.modules.Module(name)
	if !ok {
		return nil, fmt.Errorf("unknown module %q", name)
	}

	wrapped := "(function(module, exports) {\n" + src + "\nreturn module.exports;\n})"
	value, err := vm.RunString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("module %q: wrapper is not a function", name)
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	result, err := fn(goja.Undefined(), module, exports)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	return result, nil
}

func renderValue(value goja.Value) string {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return ""
	}
	exported := value.Export()
	switch v := exported.(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return formatNumber(v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		encoded, err := json.Marshal(exported)
		if err != nil {
			return fmt.Sprint(exported)
		}
		return string(encoded)
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
