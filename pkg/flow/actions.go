package flow

import (
	"context"
	"fmt"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/document"
)

// registerCoreHandlers installs the built-in action kinds every
// document can rely on. Domain kinds (the runtime's plan verb,
// game-specific effects) are registered by the owner on top of these.
func registerCoreHandlers(r *Registry) {
	core := map[string]HandlerFunc{
		// set writes args.value at args.key.
		"set": func(ctx context.Context, sc *Scope, a *document.Action) error {
			key := document.ArgString(a.Args, "key")
			if key == "" {
				return fmt.Errorf("set: missing key arg")
			}
			value, ok := a.Args["value"]
			if !ok {
				return fmt.Errorf("set: missing value arg")
			}
			sc.Set(key, normalizeValue(value))
			return nil
		},

		// incr adds args.by (default 1) to the number at args.key,
		// treating a missing or non-numeric slot as zero.
		"incr": func(ctx context.Context, sc *Scope, a *document.Action) error {
			key := document.ArgString(a.Args, "key")
			if key == "" {
				return fmt.Errorf("incr: missing key arg")
			}
			by := 1.0
			if n, ok := document.ArgNumber(a.Args, "by"); ok {
				by = n
			}
			cur, _ := sc.Number(key)
			sc.Set(key, cur+by)
			return nil
		},

		// clear removes args.key from the scope.
		"clear": func(ctx context.Context, sc *Scope, a *document.Action) error {
			key := document.ArgString(a.Args, "key")
			if key == "" {
				return fmt.Errorf("clear: missing key arg")
			}
			sc.Delete(key)
			return nil
		},

		// log emits args.message through the package logger.
		"log": func(ctx context.Context, sc *Scope, a *document.Action) error {
			msg := document.ArgString(a.Args, "message")
			if msg == "" {
				return fmt.Errorf("log: missing message arg")
			}
			switch document.ArgString(a.Args, "level") {
			case "debug":
				log.Debug(msg)
			case "warning":
				log.Warning(msg)
			default:
				log.Info(msg)
			}
			return nil
		},
	}

	for kind, fn := range core {
		r.handlers[kind] = fn
	}
}

// normalizeValue widens integer values to float64 so numbers compare
// the same whether they arrived from YAML, a snapshot, or a handler.
func normalizeValue(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}
