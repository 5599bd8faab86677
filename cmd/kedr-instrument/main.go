// Command kedr-instrument runs the full pipeline against an ELF target:
// discover candidate functions, transform and deploy each one, and print
// every function the session skipped to stdout. Its EventHandler embeds
// kedr.BaseEventHandler and reports no events.
// It exists to exercise kedr.Session end to end outside of a real
// kernel-module host, the same role cmd/wasm-run plays for the teacher's
// interpreter.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/euspectre/kedr-go"
	"github.com/euspectre/kedr-go/internal/discover/dwarfsrc"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kedr-instrument [options] target.ko

options:
`)
		flag.PrintDefaults()
		os.Exit(1)
	}
}

var flagConfig = flag.String("config", "", "path to a TOML config file (see kedr.Config)")

func main() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	fs := flag.NewFlagSet("kedr-instrument", flag.ExitOnError)
	section := fs.String("section", ".text", "section to scan for candidate functions")
	mode32 := fs.Bool("m32", false, "treat the target as x86-32 rather than x86-64")

	cfg, err := kedr.LoadConfig(*flagConfig, fs, os.Args[1:])
	if err != nil {
		log.Fatalf("kedr-instrument: %v", err)
	}
	if fs.NArg() != 1 {
		flag.Usage()
	}

	src, err := dwarfsrc.Open(fs.Arg(0), *section)
	if err != nil {
		log.Fatalf("kedr-instrument: %v", err)
	}
	defer src.Close()

	mode := kedr.Mode64
	if *mode32 {
		mode = kedr.Mode32
	}

	areas := src.TextAreas()
	if len(areas) == 0 {
		log.Fatalf("kedr-instrument: no %q section found in %s", *section, fs.Arg(0))
	}

	sess := kedr.NewSession(cfg, mode, areas[0].Start).WithHandler(&loggingHandler{})

	if err := sess.InstrumentTarget(src, src); err != nil {
		log.Fatalf("kedr-instrument: %v", err)
	}

	for name, err := range sess.SkippedFuncs {
		fmt.Printf("skipped %s: %v\n", name, err)
	}
}

// loggingHandler is the minimal EventHandler a standalone binary needs: it
// satisfies the interface by embedding kedr.BaseEventHandler and overrides
// nothing, so every instrumented function deploys but reports through the
// no-op defaults. A real host installs its own handler instead.
type loggingHandler struct {
	kedr.BaseEventHandler
}
