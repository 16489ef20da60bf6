// Package zluda compiles NVIDIA PTX kernel modules to SPIR-V.
//
// The output is OpenCL-flavor SPIR-V (Kernel capability, Physical64
// addressing) suitable for Intel Level Zero and OpenCL drivers. The
// compilation pipeline is:
//  1. Parse PTX source to AST
//  2. Resolve symbols (registers, parameters, labels, globals)
//  3. Translate the AST to a SPIR-V binary
//
// Example usage:
//
//	mod, err := zluda.Compile(ptxSource)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// mod.Binary is the SPIR-V blob; mod.BuildOptions carries the
//	// driver build flags it must be compiled with.
//
// For more control, use the individual Parse/Translate functions or
// the ptx and translate packages directly.
package zluda

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/akavasis/ZLUDA/ptx"
	"github.com/akavasis/ZLUDA/spirv"
	"github.com/akavasis/ZLUDA/translate"
)

// CompileOptions configures PTX compilation.
type CompileOptions struct {
	// SPIRVVersion is the target SPIR-V version (default: 1.3)
	SPIRVVersion spirv.Version

	// Debug enables debug names in the output (OpName)
	Debug bool
}

// DefaultOptions returns sensible default options.
func DefaultOptions() CompileOptions {
	return CompileOptions{
		SPIRVVersion: spirv.Version1_3,
		Debug:        true,
	}
}

// Compile compiles PTX source to a SPIR-V module using default
// options.
//
// This is the simplest way to compile a kernel module. For more
// control use CompileWithOptions or the individual Parse/Translate
// functions.
func Compile(source string) (*translate.Module, error) {
	return CompileWithOptions(context.Background(), source, DefaultOptions())
}

// CompileWithOptions compiles PTX source to a SPIR-V module with
// custom options.
//
// Compilation is all-or-nothing: any parse, resolution or translation
// error fails the whole module and no artifact is returned.
func CompileWithOptions(ctx context.Context, source string, opts CompileOptions) (*translate.Module, error) {
	tr := tlog.SpanFromContext(ctx)

	ast, err := Parse(source)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}
	tr.Printw("parsed", "functions", len(ast.Functions), "globals", len(ast.Variables))

	mod, err := Translate(ast, opts)
	if err != nil {
		return nil, errors.Wrap(err, "translate")
	}
	tr.Printw("translated",
		"kernels", len(mod.Kernels),
		"binary_bytes", len(mod.Binary),
		"link_support", mod.LinkSupportLibrary)

	return mod, nil
}

// CompileFile compiles a PTX file to a SPIR-V module using default
// options.
func CompileFile(path string) (*translate.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read %v", path)
	}
	return Compile(string(data))
}

// Parse parses PTX source code to an AST.
//
// Parsing recovers at statement boundaries and accumulates errors;
// the returned error is a ptx.SourceErrors listing every diagnostic,
// and the AST is withheld whenever the list is non-empty.
func Parse(source string) (*ptx.Module, error) {
	ast, errs := ptx.Parse(source)
	if errs.HasErrors() {
		return nil, errs
	}
	return ast, nil
}

// Translate translates a parsed PTX module to a SPIR-V module
// artifact. Symbol resolution runs first; its errors terminate the
// translation.
func Translate(ast *ptx.Module, opts CompileOptions) (*translate.Module, error) {
	return translate.Translate(ast, spirv.Options{
		Version:    opts.SPIRVVersion,
		DebugNames: opts.Debug,
	})
}
