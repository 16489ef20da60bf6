// Package translate lowers a resolved PTX module to a SPIR-V module
// artifact.
package translate

// KernelInfo is the per-kernel metadata the runtime needs at launch.
type KernelInfo struct {
	// UsesSharedMem is true when the kernel references dynamically
	// sized extern shared memory, directly or through a callee. Such
	// kernels carry a trailing hidden workgroup pointer parameter the
	// runtime binds to the launch-time shared allocation.
	UsesSharedMem bool
}

// Module is the translation artifact handed to the runtime.
type Module struct {
	// Binary is the SPIR-V word stream, little endian.
	Binary []byte

	// Kernels maps kernel name to its metadata.
	Kernels map[string]KernelInfo

	// BuildOptions carries flags for the downstream device compiler,
	// derived from the precision requirements of the translated code.
	BuildOptions string

	// LinkSupportLibrary is set when the module declares support
	// routines (assertion failure and friends) with import linkage;
	// the loader must link the precompiled support binary.
	LinkSupportLibrary bool
}
