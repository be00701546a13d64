package script

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"polybot/internal/domain"
)

type fakeModules map[string]string

func (f fakeModules) Module(name string) (string, bool) {
	src, ok := f[name]
	return src, ok
}

type fakeStore struct {
	domain.Store
	channelData map[string]string
}

func (f *fakeStore) GetChannelData(_ context.Context, _ int64, key string) (string, error) {
	return f.channelData[key], nil
}

func (f *fakeStore) SetChannelData(_ context.Context, _ int64, key, value string) error {
	f.channelData[key] = value
	return nil
}

func (f *fakeStore) RemoveChannelData(_ context.Context, _ int64, key string) error {
	delete(f.channelData, key)
	return nil
}

func newTestEvaluator(modules ModuleSource, timeout time.Duration) *Evaluator {
	return NewEvaluator(modules, &fakeStore{channelData: map[string]string{}}, timeout, zap.NewNop())
}

func TestEvalSimpleExpression(t *testing.T) {
	e := newTestEvaluator(nil, 0)

	got, err := e.Eval(context.Background(), "1 + 1", 0)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "2" {
		t.Fatalf("got %q", got)
	}
}

func TestEvalStringResult(t *testing.T) {
	e := newTestEvaluator(nil, 0)

	got, err := e.Eval(context.Background(), `"a" + "b"`, 0)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "ab" {
		t.Fatalf("got %q", got)
	}
}

func TestEvalTimeout(t *testing.T) {
	e := newTestEvaluator(nil, 100*time.Millisecond)

	start := time.Now()
	_, err := e.Eval(context.Background(), "for (;;) {}", 0)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("interrupt took too long: %s", elapsed)
	}
}

func TestEvalFreshRuntimePerCall(t *testing.T) {
	e := newTestEvaluator(nil, 0)

	if _, err := e.Eval(context.Background(), "var leaked = 42; leaked", 0); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if _, err := e.Eval(context.Background(), "leaked", 0); err == nil {
		t.Fatal("state leaked between evaluations")
	}
}

func TestRequireStoredModule(t *testing.T) {
	modules := fakeModules{
		"greet": `module.exports = { hello: function(name) { return "hi " + name; } };`,
	}
	e := newTestEvaluator(modules, 0)

	got, err := e.Eval(context.Background(), `require("greet").hello("world")`, 0)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "hi world" {
		t.Fatalf("got %q", got)
	}
}

func TestRequireUnknownModule(t *testing.T) {
	e := newTestEvaluator(fakeModules{}, 0)

	if _, err := e.Eval(context.Background(), `require("missing")`, 0); err == nil {
		t.Fatal("expected unknown module error")
	}
}

func TestUtilsModule(t *testing.T) {
	e := newTestEvaluator(nil, 0)

	got, err := e.Eval(context.Background(), `var u = require("utils"); u.format("{} and {}", "a", "b")`, 0)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "a and b" {
		t.Fatalf("got %q", got)
	}

	got, err = e.Eval(context.Background(), `require("utils").int(" 7 ") + 1`, 0)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "8" {
		t.Fatalf("got %q", got)
	}
}

func TestDBModule(t *testing.T) {
	store := &fakeStore{channelData: map[string]string{}}
	e := NewEvaluator(nil, store, 0, zap.NewNop())

	if _, err := e.Eval(context.Background(), `require("db").set("counter", "3")`, 42); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if store.channelData["counter"] != "3" {
		t.Fatalf("store = %v", store.channelData)
	}

	got, err := e.Eval(context.Background(), `require("db").get("counter")`, 42)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "3" {
		t.Fatalf("got %q", got)
	}
}

func TestDBModuleRejectsAnonymousChannel(t *testing.T) {
	e := newTestEvaluator(nil, 0)

	if _, err := e.Eval(context.Background(), `require("db").get("x")`, 0); err == nil {
		t.Fatal("expected error for anonymous channel")
	}
}
