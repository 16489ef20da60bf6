package spirv

import (
	"testing"
)

// buildAddKernel builds a trivial kernel module; the shift parameter
// offsets every allocated id so two builds disagree on numbering while
// staying structurally identical.
func buildAddKernel(t *testing.T, shift int) *ParsedModule {
	t.Helper()

	builder := NewModuleBuilder(Version1_3)
	for i := 0; i < shift; i++ {
		builder.AllocID()
	}

	builder.AddCapability(CapabilityKernel)
	builder.AddCapability(CapabilityAddresses)
	builder.SetMemoryModel(AddressingPhysical64, MemoryModelOpenCL)

	voidType := builder.AddTypeVoid()
	u32 := builder.AddTypeInt(32, 0)
	fnType := builder.AddTypeFunction(voidType, u32)

	fn := builder.AddFunction(fnType, voidType, FunctionControlNone)
	param := builder.AddFunctionParameter(u32)
	builder.AddLabel()
	one := builder.AddConstantUint32(u32, 1)
	builder.AddBinaryOp(OpIAdd, u32, param, one)
	builder.AddReturn()
	builder.AddFunctionEnd()
	builder.AddEntryPoint(ExecutionModelKernel, fn, "add_one", nil)

	module, err := Parse(builder.Build())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return module
}

func TestModulesEqual_RenamedIDs(t *testing.T) {
	a := buildAddKernel(t, 0)
	b := buildAddKernel(t, 17)

	if a.Bound == b.Bound {
		t.Fatal("Shift did not change the id space; test is vacuous")
	}
	if err := ModulesEqual(a, b); err != nil {
		t.Errorf("Renamed modules should be equal: %v", err)
	}
}

func TestModulesEqual_LiteralDiffers(t *testing.T) {
	build := func(value uint32) *ParsedModule {
		builder := NewModuleBuilder(Version1_3)
		u32 := builder.AddTypeInt(32, 0)
		builder.AddConstantUint32(u32, value)
		module, err := Parse(builder.Build())
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		return module
	}

	if err := ModulesEqual(build(5), build(6)); err == nil {
		t.Error("Modules with different constant literals should be unequal")
	}
}

func TestModulesEqual_BijectionContradiction(t *testing.T) {
	// a references two distinct types from its pointers; b references
	// one type twice. Counts and literals agree everywhere, so only the
	// two-sided id mapping can tell them apart. The builder interns
	// types, so the modules are laid out by hand.
	fnStorage := uint32(StorageFunction)
	a := &ParsedModule{
		Globals: []ParsedInstruction{
			{Opcode: OpTypeInt, Words: []uint32{1, 32, 0}},
			{Opcode: OpTypeInt, Words: []uint32{2, 64, 0}},
			{Opcode: OpTypePointer, Words: []uint32{3, fnStorage, 1}},
			{Opcode: OpTypePointer, Words: []uint32{4, fnStorage, 2}},
		},
	}
	b := &ParsedModule{
		Globals: []ParsedInstruction{
			{Opcode: OpTypeInt, Words: []uint32{1, 32, 0}},
			{Opcode: OpTypeInt, Words: []uint32{2, 64, 0}},
			{Opcode: OpTypePointer, Words: []uint32{3, fnStorage, 1}},
			{Opcode: OpTypePointer, Words: []uint32{4, fnStorage, 1}},
		},
	}

	if err := ModulesEqual(a, b); err == nil {
		t.Error("Pointer aliasing difference should break the id bijection")
	}
	if err := ModulesEqual(a, a); err != nil {
		t.Errorf("Module should equal itself: %v", err)
	}
}

func TestModulesEqual_OpcodeDiffers(t *testing.T) {
	build := func(op OpCode) *ParsedModule {
		builder := NewModuleBuilder(Version1_3)
		voidType := builder.AddTypeVoid()
		fnType := builder.AddTypeFunction(voidType)
		u32 := builder.AddTypeInt(32, 0)
		builder.AddFunction(fnType, voidType, FunctionControlNone)
		builder.AddLabel()
		a := builder.AddConstantUint32(u32, 1)
		c := builder.AddConstantUint32(u32, 2)
		builder.AddBinaryOp(op, u32, a, c)
		builder.AddReturn()
		builder.AddFunctionEnd()
		module, err := Parse(builder.Build())
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		return module
	}

	if err := ModulesEqual(build(OpIAdd), build(OpISub)); err == nil {
		t.Error("Different opcodes should be unequal")
	}
}

func TestFunctionsEqual_IndependentRenaming(t *testing.T) {
	a := buildAddKernel(t, 0)
	b := buildAddKernel(t, 5)

	if err := FunctionsEqual(a.Functions[0], b.Functions[0]); err != nil {
		t.Errorf("Function bodies should be equal under fresh renaming: %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unaligned", []byte{1, 2, 3}},
		{"short header", make([]byte, 16)},
		{"bad magic", make([]byte, 20)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.data); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestParse_TruncatedInstruction(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)
	builder.AddCapability(CapabilityKernel)
	builder.SetMemoryModel(AddressingPhysical64, MemoryModelOpenCL)
	data := builder.Build()

	// Chop off the trailing word of the last instruction.
	if _, err := Parse(data[:len(data)-4]); err == nil {
		t.Error("Expected error for truncated instruction stream")
	}
}
