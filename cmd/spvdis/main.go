// Command spvdis disassembles SPIR-V binaries produced by ptxc.
//
// Usage:
//
//	spvdis kernel.spv
package main

import (
	"fmt"
	"os"

	"github.com/akavasis/ZLUDA/spirv"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: spvdis <file.spv>")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	text, err := spirv.Disassemble(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(text)
}
