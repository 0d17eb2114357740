package flow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const defaultCondCacheSize = 256

// condCache compiles condition expressions and caches the compiled
// programs. A document reuses a small set of conditions across many
// runs, so a bounded map with a whole-cache flush on overflow is
// enough here.
type condCache struct {
	mu    sync.Mutex
	progs map[string]*vm.Program
	max   int
}

func newCondCache(max int) *condCache {
	if max < 1 {
		max = defaultCondCacheSize
	}
	return &condCache{
		progs: make(map[string]*vm.Program),
		max:   max,
	}
}

func (c *condCache) compile(src string) (*vm.Program, error) {
	c.mu.Lock()
	prog, ok := c.progs[src]
	c.mu.Unlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.progs) >= c.max {
		c.progs = make(map[string]*vm.Program, c.max)
	}
	c.progs[src] = prog
	c.mu.Unlock()
	return prog, nil
}

// eval compiles src (cached) and runs it against env. Compile errors,
// runtime errors, and non-boolean results all come back as errors for
// the caller to degrade on.
func (c *condCache) eval(src string, env map[string]interface{}) (bool, error) {
	prog, err := c.compile(src)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", src, err)
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q evaluated to %T, want bool", src, out)
	}
	return b, nil
}

func (c *condCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.progs)
}
