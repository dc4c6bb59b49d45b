// mcc CLI - compiles and runs C-subset programs on the bytecode VM
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/mcc/compiler"
	"github.com/chazu/mcc/diag"
	"github.com/chazu/mcc/manifest"
	"github.com/chazu/mcc/vm"
	"github.com/chazu/mcc/vm/image"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	os.Exit(run())
}

func run() int {
	dump := flag.Bool("s", false, "Dump tokens and disassembly instead of executing")
	trace := flag.Bool("d", false, "Trace each executed instruction")
	output := flag.String("o", "", "Write the compiled image to this .mcb file")
	verbose := flag.Bool("v", false, "Verbose output")
	stackSize := flag.Int("stack", 0, "Stack size in bytes (overrides mcc.toml)")
	heapSize := flag.Int("heap", 0, "Heap size in bytes (overrides mcc.toml)")
	cycleLimit := flag.Int64("cycles", 0, "Abort after this many instructions (overrides mcc.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mcc [options] file.c|file.mcb [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles a C-subset source file to bytecode and executes it, or\n")
		fmt.Fprintf(os.Stderr, "executes a previously compiled .mcb image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mcc hello.c              # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  mcc -s hello.c           # Show tokens and disassembly\n")
		fmt.Fprintf(os.Stderr, "  mcc -o hello.mcb hello.c # Compile to an image file\n")
		fmt.Fprintf(os.Stderr, "  mcc hello.mcb            # Run a compiled image\n")
		fmt.Fprintf(os.Stderr, "  mcc -d fib.c 10          # Run with an execution trace\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)
	log := commonlog.GetLogger("mcc")

	if flag.NArg() < 1 {
		flag.Usage()
		return 1
	}
	path := flag.Arg(0)

	m, err := manifest.FindAndLoad(filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if m == nil {
		m = manifest.Default()
	} else {
		log.Infof("using manifest in %s", m.Dir)
	}

	cfg := vm.Config{
		StackSize:  int(m.VM.StackSize),
		HeapSize:   int(m.VM.HeapSize),
		CycleLimit: m.VM.CycleLimit,
		Args:       flag.Args(),
		Trace:      *trace,
		TraceOut:   os.Stderr,
	}
	if *stackSize > 0 {
		cfg.StackSize = *stackSize
	}
	if *heapSize > 0 {
		cfg.HeapSize = *heapSize
	}
	if *cycleLimit > 0 {
		cfg.CycleLimit = *cycleLimit
	}

	var prog *vm.Program
	var source string

	if strings.HasSuffix(path, ".mcb") {
		prog, err = image.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		log.Infof("loaded image %s (%d instructions)", path, len(prog.Code))
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		source = string(data)

		if *dump {
			if code := dumpSource(source); code != 0 {
				return code
			}
		}

		prog, err = compiler.Compile(source)
		if err != nil {
			printDiagnostic(err, source)
			return 1
		}
		log.Infof("compiled %s: %d instructions, %d data bytes", path, len(prog.Code), len(prog.Data))
	}

	if *dump || m.Build.DumpCode {
		fmt.Print(prog.Disassemble())
	}

	out := *output
	if out == "" {
		out = m.OutputPath()
	}
	if out != "" {
		if err := image.WriteFile(out, prog); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		log.Infof("wrote image %s", out)
	}
	// -s and -o are compile-only modes
	if *dump || *output != "" {
		return 0
	}

	status, err := vm.NewMachine(prog, cfg).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return int(status)
}

// dumpSource prints the token stream for -s mode.
func dumpSource(source string) int {
	toks, err := compiler.Tokenize(source)
	if err != nil {
		printDiagnostic(err, source)
		return 1
	}
	for _, t := range toks {
		fmt.Printf("%4d:%-3d %s\n", t.Pos.Line, t.Pos.Column, t)
	}
	fmt.Println()
	return 0
}

// printDiagnostic shows a compile error with its source context when
// position information is available.
func printDiagnostic(err error, source string) {
	var d *diag.Diagnostic
	if errors.As(err, &d) {
		fmt.Fprintln(os.Stderr, d.Render(source))
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
