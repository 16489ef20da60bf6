package spirv

import (
	"strings"
	"testing"
)

func TestDisassemble(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)
	builder.AddCapability(CapabilityKernel)
	builder.SetMemoryModel(AddressingPhysical64, MemoryModelOpenCL)
	builder.AddExtInstImport(OpenCLStd)

	voidType := builder.AddTypeVoid()
	fnType := builder.AddTypeFunction(voidType)
	fn := builder.AddFunction(fnType, voidType, FunctionControlNone)
	builder.AddLabel()
	builder.AddReturn()
	builder.AddFunctionEnd()
	builder.AddEntryPoint(ExecutionModelKernel, fn, "noop", nil)
	builder.AddName(fn, "noop")

	text, err := Disassemble(builder.Build())
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}

	for _, want := range []string{
		"OpCapability Kernel",
		"OpMemoryModel Physical64 OpenCL",
		`OpExtInstImport "OpenCL.std"`,
		`OpEntryPoint Kernel`,
		`"noop"`,
		"OpTypeVoid",
		"OpFunction",
		"OpReturn",
		"OpFunctionEnd",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, text)
		}
	}
}

func TestDisassemble_BadInput(t *testing.T) {
	if _, err := Disassemble([]byte{1, 2, 3, 4}); err == nil {
		t.Error("Expected error for garbage input")
	}
}
