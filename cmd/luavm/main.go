// Command luavm is a small demonstration host: it assembles a script
// through internal/asm (standing in for the out-of-scope compiler), runs
// it to a host call boundary, serializes the suspended execution
// context, discards the in-memory closure entirely, rehydrates it from
// the serialized bytes, and resumes it to completion — the end-to-end
// walk spec section 6 describes for a host embedding this engine.
package main

import (
	"fmt"
	"log/slog"
	"os"

	luavm "github.com/continuable/luavm"
	"github.com/continuable/luavm/internal/asm"
	"github.com/continuable/luavm/internal/config"
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
)

func buildGreetScript() *proto.Prototype {
	// return "hello, " .. fetch_name() .. "!"
	b := asm.New("greet").MaxStack(3)
	fetchName := b.K(value.Str("fetch_name"))
	hello := b.K(value.Str("hello, "))
	bang := b.K(value.Str("!"))

	b.ABC(proto.OP_GETTABUP, 1, 0, asm.RK(fetchName))
	b.ABC(proto.OP_CALL, 1, 1, 2)
	b.ABx(proto.OP_LOADK, 0, hello)
	b.ABx(proto.OP_LOADK, 2, bang)
	b.ABC(proto.OP_CONCAT, 0, 0, 2)
	b.ABC(proto.OP_RETURN, 0, 2, 0)
	return b.Build()
}

func main() {
	cfgPath := ""
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	logger := newLogger(cfg.Log)

	engine := luavm.NewEngine(cfg)
	globals := luavm.NewGlobals()
	luavm.BindSuspendingHostFunc(globals, "fetch_name", func(stack *luavm.ExecutionStack, args luavm.Varargs) (luavm.Varargs, bool, error) {
		logger.Info("fetch_name suspended the runtime")
		return luavm.Varargs{}, true, nil
	})

	cl := engine.Load(buildGreetScript(), globals)

	_, yielded, err := luavm.SuspendableCall(cl)
	if err != nil {
		logger.Error("run failed", "err", err)
		os.Exit(1)
	}
	if !yielded {
		logger.Error("expected the script to suspend at fetch_name")
		os.Exit(1)
	}
	logger.Info("suspended at host call boundary, serializing")

	snapshot, err := luavm.SerializeExecutionContext(cl)
	if err != nil {
		logger.Error("serialize failed", "err", err)
		os.Exit(1)
	}
	logger.Info("serialized execution context", "bytes", len(snapshot))

	// Simulate a fresh process: the only thing carried forward is the
	// snapshot bytes. cl is deliberately not referenced again below.
	restored, err := luavm.DeserializeExecutionContext(snapshot)
	if err != nil {
		logger.Error("deserialize failed", "err", err)
		os.Exit(1)
	}

	result, yielded, err := luavm.Resume(restored, value.Str("World"))
	if err != nil {
		logger.Error("resume failed", "err", err)
		os.Exit(1)
	}
	if yielded {
		logger.Error("did not expect a second suspension")
		os.Exit(1)
	}

	fmt.Println(result.First().String())
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
