// bbmdump - behavior model inspector
//
// Verifies and disassembles compiled .bbm behavior models. Models that
// fail verification are still disassembled so the fault can be located.
//
// Build: go build ./cmd/bbmdump
// Usage:
//   bbmdump npc/guard.bbm          # disassemble + verify
//   bbmdump --check models/*.bbm   # verify only, exit 1 on any failure
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
)

var (
	check   = flag.Bool("check", false, "verify only; one line per model, exit 1 on any failure")
	version = flag.Bool("version", false, "print version and exit")
)

const versionStr = "0.3.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "bbmdump - behavior model inspector\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  bbmdump [options] model.bbm [model.bbm ...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *version {
		fmt.Printf("bbmdump version %s\n", versionStr)
		os.Exit(0)
	}

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	failed := false
	for i, path := range files {
		if i > 0 && !*check {
			fmt.Println()
		}
		if err := dump(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func dump(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	model, err := bytecode.Deserialize(data)
	if err != nil {
		return err
	}
	verifyErr := bytecode.Verify(model)

	if *check {
		if verifyErr != nil {
			return verifyErr
		}
		fmt.Printf("%s: ok (%d instructions)\n", path, model.InstructionCount())
		return nil
	}

	fmt.Print(model.DisassembleWithName(filepath.Base(path)))
	if verifyErr != nil {
		fmt.Printf("\n; VERIFY FAILED: %v\n", verifyErr)
		return verifyErr
	}
	return nil
}
