package flow

import (
	"strings"
	"testing"
)

func TestCondEvalMemberAccess(t *testing.T) {
	c := newCondCache(0)
	env := map[string]interface{}{
		"feeling": map[string]interface{}{"fear": 0.8},
	}

	pass, err := c.eval("feeling.fear > 0.5", env)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if !pass {
		t.Error("Expected feeling.fear > 0.5 to pass")
	}

	pass, err = c.eval("feeling.fear > 0.9", env)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if pass {
		t.Error("Expected feeling.fear > 0.9 to fail")
	}
}

func TestCondEvalCompileError(t *testing.T) {
	c := newCondCache(0)
	if _, err := c.eval(">>>", map[string]interface{}{}); err == nil {
		t.Fatal("Expected compile error, got nil")
	} else if !strings.Contains(err.Error(), "condition") {
		t.Errorf("Expected condition context in error, got %v", err)
	}
}

func TestCondCacheReuse(t *testing.T) {
	c := newCondCache(0)
	env := map[string]interface{}{"x": 1.0}

	for i := 0; i < 3; i++ {
		if _, err := c.eval("x < 2", env); err != nil {
			t.Fatalf("eval %d failed: %v", i, err)
		}
	}
	if got := c.size(); got != 1 {
		t.Errorf("Expected 1 cached program, got %d", got)
	}
}

func TestCondCacheFlushOnOverflow(t *testing.T) {
	c := newCondCache(2)
	env := map[string]interface{}{"x": 1.0}

	for _, src := range []string{"x < 1", "x < 2", "x < 3"} {
		if _, err := c.eval(src, env); err != nil {
			t.Fatalf("eval %q failed: %v", src, err)
		}
	}
	// Third insert flushes the full cache first.
	if got := c.size(); got != 1 {
		t.Errorf("Expected cache flushed to 1 entry, got %d", got)
	}
}
