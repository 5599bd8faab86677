// Command kedr-dump discovers candidate functions in an ELF target and
// disassembles them, the read-only diagnostic counterpart to
// kedr-instrument — useful for checking what the pipeline would see
// before actually deploying anything.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/euspectre/kedr-go/internal/discover"
	"github.com/euspectre/kedr-go/internal/discover/dwarfsrc"
	"github.com/euspectre/kedr-go/internal/insn"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kedr-dump [options] target.ko

options:
`)
		flag.PrintDefaults()
		os.Exit(1)
	}
}

var (
	flagSection = flag.String("section", ".text", "comma-separated section names to scan for functions")
	flagMode32  = flag.Bool("m32", false, "decode as x86-32 rather than x86-64")
	flagFunc    = flag.String("func", "", "only disassemble the named function")
)

func main() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}

	src, err := dwarfsrc.Open(flag.Arg(0), strings.Split(*flagSection, ",")...)
	if err != nil {
		log.Fatalf("kedr-dump: %v", err)
	}
	defer src.Close()

	mode := insn.Mode64
	if *flagMode32 {
		mode = insn.Mode32
	}

	logger := log.WithField("cmd", "kedr-dump")
	candidates := discover.Discover(src, src, mode, logger)

	for _, c := range candidates {
		if *flagFunc != "" && c.Name != *flagFunc {
			continue
		}
		fmt.Printf("%s: addr=0x%x size=%d\n", c.Name, c.Addr, c.Size)
		code := make([]byte, c.Size)
		if err := src.ReadMem(c.Addr, code); err != nil {
			fmt.Printf("  <read error: %v>\n", err)
			continue
		}
		disassemble(code, c.Addr, mode)
	}
}

func disassemble(code []byte, base uint64, mode insn.Mode) {
	pos := 0
	for pos < len(code) {
		in, err := insn.Decode(code[pos:], base+uint64(pos), mode)
		if err != nil {
			fmt.Printf("  %06x: <decode error: %v>\n", pos, err)
			return
		}
		raw := in.Bytes()
		fmt.Printf("  %06x: % -24x %s\n", pos, raw, in.Mnemonic)
		pos += in.Len
	}
}
