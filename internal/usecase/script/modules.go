package script

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const (
	maxFetchBytes = 256 * 1024
	maxSleep      = 5 * time.Second
)

func throw(vm *goja.Runtime, format string, args ...any) {
	panic(vm.ToValue(fmt.Sprintf(format, args...)))
}

// httpModule exposes fetch(url, options). Options: method (default GET) and
// format ("text" or "json", default text).
func (e *Evaluator) httpModule(ctx context.Context, vm *goja.Runtime) goja.Value {
	mod := vm.NewObject()

	_ = mod.Set("fetch", func(call goja.FunctionCall) goja.Value {
		rawURL := call.Argument(0).String()
		method := http.MethodGet
		format := "text"
		var body io.Reader

		if opts, ok := call.Argument(1).(*goja.Object); ok {
			if v := opts.Get("method"); v != nil && !goja.IsUndefined(v) {
				method = strings.ToUpper(v.String())
			}
			if v := opts.Get("format"); v != nil && !goja.IsUndefined(v) {
				format = strings.ToLower(v.String())
			}
			if v := opts.Get("body"); v != nil && !goja.IsUndefined(v) {
				body = strings.NewReader(v.String())
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			throw(vm, "http: %v", err)
		}
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			throw(vm, "http: %v", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			throw(vm, "http: %v", err)
		}

		result := vm.NewObject()
		_ = result.Set("status", resp.StatusCode)
		if format == "json" {
			var parsed interface{}
			if err := json.Unmarshal(data, &parsed); err != nil {
				throw(vm, "http: invalid json response: %v", err)
			}
			_ = result.Set("body", vm.ToValue(parsed))
		} else {
			_ = result.Set("body", string(data))
		}
		return result
	})

	return mod
}

// utilsModule exposes format, int and sleep.
func (e *Evaluator) utilsModule(ctx context.Context, vm *goja.Runtime) goja.Value {
	mod := vm.NewObject()

	// format("a {} b {}", x, y) substitutes placeholders left to right.
	_ = mod.Set("format", func(call goja.FunctionCall) goja.Value {
		out := call.Argument(0).String()
		for _, arg := range call.Arguments[1:] {
			out = strings.Replace(out, "{}", arg.String(), 1)
		}
		return vm.ToValue(out)
	})

	_ = mod.Set("int", func(call goja.FunctionCall) goja.Value {
		s := strings.TrimSpace(call.Argument(0).String())
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			throw(vm, "utils.int: %q is not an integer", s)
		}
		return vm.ToValue(n)
	})

	_ = mod.Set("sleep", func(call goja.FunctionCall) goja.Value {
		secs := call.Argument(0).ToFloat()
		d := time.Duration(secs * float64(time.Second))
		if d < 0 {
			d = 0
		}
		if d > maxSleep {
			d = maxSleep
		}
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
		return goja.Undefined()
	})

	return mod
}

// dbModule exposes channel-scoped scratch storage: get, set, remove.
func (e *Evaluator) dbModule(ctx context.Context, vm *goja.Runtime, channelID int64) goja.Value {
	mod := vm.NewObject()

	requireChannel := func() {
		if channelID == 0 {
			throw(vm, "db: channel is not persisted")
		}
	}

	_ = mod.Set("get", func(call goja.FunctionCall) goja.Value {
		requireChannel()
		value, err := e.store.GetChannelData(ctx, channelID, call.Argument(0).String())
		if err != nil {
			throw(vm, "db.get: %v", err)
		}
		if value == "" {
			return goja.Null()
		}
		return vm.ToValue(value)
	})

	_ = mod.Set("set", func(call goja.FunctionCall) goja.Value {
		requireChannel()
		key := call.Argument(0).String()
		value := call.Argument(1).String()
		if err := e.store.SetChannelData(ctx, channelID, key, value); err != nil {
			throw(vm, "db.set: %v", err)
		}
		return goja.Undefined()
	})

	_ = mod.Set("remove", func(call goja.FunctionCall) goja.Value {
		requireChannel()
		if err := e.store.RemoveChannelData(ctx, channelID, call.Argument(0).String()); err != nil {
			throw(vm, "db.remove: %v", err)
		}
		return goja.Undefined()
	})

	return mod
}
