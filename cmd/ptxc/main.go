// Command ptxc compiles PTX kernel modules to SPIR-V.
//
// Usage:
//
//	ptxc parse kernel.ptx              # Parse and resolve only
//	ptxc compile kernel.ptx            # Compile to kernel.spv
//
// An optional ptxc.toml in the working directory configures the
// compiler:
//
//	debug = true          # emit OpName debug names
//	output_dir = "build"  # directory for .spv outputs
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pterm/pterm"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	zluda "github.com/akavasis/ZLUDA"
	"github.com/akavasis/ZLUDA/ptx"
)

var (
	errStyle = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	okColor  = pterm.FgLightGreen
)

// config is the optional ptxc.toml file.
type config struct {
	Debug     bool   `toml:"debug"`
	OutputDir string `toml:"output_dir"`
}

func main() {
	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "parse and resolve PTX files without generating code",
		Action:      parseAct,
		Args:        cli.Args{},
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile PTX files to SPIR-V",
		Action:      compileAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "ptxc",
		Description: "ptxc compiles PTX kernel modules to SPIR-V",
		Commands: []*cli.Command{
			parseCmd,
			compileCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func loadConfig() (cfg config, err error) {
	cfg = config{Debug: true}

	data, err := os.ReadFile("ptxc.toml")
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err = toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

func parseAct(c *cli.Command) error {
	if len(c.Args) == 0 {
		return errors.New("no input files")
	}

	for _, a := range c.Args {
		source, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		ast, err := zluda.Parse(string(source))
		if err != nil {
			printDiagnostics(a, err)
			return errors.New("parse %v failed", a)
		}
		if _, errs := ptx.Resolve(ast); errs.HasErrors() {
			printDiagnostics(a, errs)
			return errors.New("resolve %v failed", a)
		}

		kernels := 0
		for _, fn := range ast.Functions {
			if fn.Kernel && !fn.Declared {
				kernels++
			}
		}
		okColor.Printfln("%s: ok (%d functions, %d kernels)", a, len(ast.Functions), kernels)
	}

	return nil
}

func compileAct(c *cli.Command) error {
	if len(c.Args) == 0 {
		return errors.New("no input files")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	opts := zluda.DefaultOptions()
	opts.Debug = cfg.Debug

	for _, a := range c.Args {
		source, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		mod, err := zluda.CompileWithOptions(ctx, string(source), opts)
		if err != nil {
			printDiagnostics(a, err)
			return errors.New("compile %v failed", a)
		}

		out := outputPath(a, cfg.OutputDir)
		if err := os.WriteFile(out, mod.Binary, 0o644); err != nil {
			return errors.Wrap(err, "write %v", out)
		}

		okColor.Printfln("%s -> %s (%d bytes, %d kernels)", a, out, len(mod.Binary), len(mod.Kernels))
		if mod.BuildOptions != "" {
			fmt.Printf("  build options: %s\n", mod.BuildOptions)
		}
		if mod.LinkSupportLibrary {
			fmt.Println("  requires support library")
		}
	}

	return nil
}

// outputPath derives the .spv path from the input path and the
// configured output directory.
func outputPath(input, dir string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".spv"
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base)
}

// printDiagnostics renders compilation errors. Source diagnostics get
// their caret context; other errors print as a single line.
func printDiagnostics(file string, err error) {
	errStyle.Print(" Error ")
	fmt.Printf(" %s\n", file)

	var srcErrs ptx.SourceErrors
	if errors.As(err, &srcErrs) {
		fmt.Println(srcErrs.FormatAll())
		return
	}
	fmt.Println(err.Error())
}
