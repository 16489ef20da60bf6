package spirv

import (
	"encoding/binary"
	"testing"
)

func TestModuleBuilder_MinimalModule(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)

	builder.AddCapability(CapabilityKernel)
	builder.SetMemoryModel(AddressingPhysical64, MemoryModelOpenCL)

	data := builder.Build()

	if len(data) < 20 {
		t.Fatalf("Module too small: got %d bytes, want at least 20", len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicNumber {
		t.Errorf("Invalid magic number: got 0x%08X, want 0x%08X", magic, MagicNumber)
	}

	version := binary.LittleEndian.Uint32(data[4:8])
	expectedVersion := uint32(1<<16 | 3<<8)
	if version != expectedVersion {
		t.Errorf("Invalid version: got 0x%08X, want 0x%08X", version, expectedVersion)
	}

	generator := binary.LittleEndian.Uint32(data[8:12])
	if generator != GeneratorID {
		t.Errorf("Invalid generator: got 0x%08X, want 0x%08X", generator, GeneratorID)
	}

	bound := binary.LittleEndian.Uint32(data[12:16])
	if bound == 0 {
		t.Error("Bound should be > 0")
	}

	schema := binary.LittleEndian.Uint32(data[16:20])
	if schema != 0 {
		t.Errorf("Schema should be 0, got %d", schema)
	}
}

func TestModuleBuilder_TypeDeduplication(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)

	u32a := builder.AddTypeInt(32, 0)
	u32b := builder.AddTypeInt(32, 0)
	if u32a != u32b {
		t.Errorf("Same int type got two ids: %d and %d", u32a, u32b)
	}

	s32 := builder.AddTypeInt(32, 1)
	if s32 == u32a {
		t.Error("Signed and unsigned 32-bit types should have distinct ids")
	}

	f32a := builder.AddTypeFloat(32)
	f32b := builder.AddTypeFloat(32)
	if f32a != f32b {
		t.Errorf("Same float type got two ids: %d and %d", f32a, f32b)
	}

	ptrA := builder.AddTypePointer(StorageFunction, u32a)
	ptrB := builder.AddTypePointer(StorageFunction, u32a)
	if ptrA != ptrB {
		t.Errorf("Same pointer type got two ids: %d and %d", ptrA, ptrB)
	}
	ptrC := builder.AddTypePointer(StorageCrossWorkgroup, u32a)
	if ptrC == ptrA {
		t.Error("Pointer types in different storage classes should differ")
	}

	module, err := Parse(builder.Build())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	intTypes := 0
	for _, inst := range module.Globals {
		if inst.Opcode == OpTypeInt && inst.Words[1] == 32 && inst.Words[2] == 0 {
			intTypes++
		}
	}
	if intTypes != 1 {
		t.Errorf("Expected exactly one unsigned 32-bit OpTypeInt, got %d", intTypes)
	}
}

func TestModuleBuilder_ConstantDeduplication(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)

	u32 := builder.AddTypeInt(32, 0)
	a := builder.AddConstantUint32(u32, 42)
	b := builder.AddConstantUint32(u32, 42)
	if a != b {
		t.Errorf("Same constant got two ids: %d and %d", a, b)
	}
	c := builder.AddConstantUint32(u32, 43)
	if c == a {
		t.Error("Different constants should have distinct ids")
	}

	u64 := builder.AddTypeInt(64, 0)
	big := builder.AddConstantUint64(u64, 0x1_0000_0001)
	big2 := builder.AddConstantUint64(u64, 0x1_0000_0001)
	if big != big2 {
		t.Errorf("Same 64-bit constant got two ids: %d and %d", big, big2)
	}
}

func TestModuleBuilder_CapabilityDeduplication(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)

	builder.AddCapability(CapabilityKernel)
	builder.AddCapability(CapabilityKernel)
	builder.AddCapability(CapabilityAddresses)
	builder.SetMemoryModel(AddressingPhysical64, MemoryModelOpenCL)

	module, err := Parse(builder.Build())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	caps := 0
	for _, inst := range module.Globals {
		if inst.Opcode == OpCapability {
			caps++
		}
	}
	if caps != 2 {
		t.Errorf("Expected 2 capability instructions, got %d", caps)
	}
}

func TestModuleBuilder_SectionOrdering(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)

	// Deliberately interleave sections; Build must order them.
	u32 := builder.AddTypeInt(32, 0)
	builder.AddCapability(CapabilityKernel)
	fnType := builder.AddTypeFunction(builder.AddTypeVoid())
	fn := builder.AddFunction(fnType, builder.AddTypeVoid(), FunctionControlNone)
	builder.AddLabel()
	builder.AddReturn()
	builder.AddFunctionEnd()
	builder.AddEntryPoint(ExecutionModelKernel, fn, "k", nil)
	builder.AddExecutionMode(fn, ExecutionModeContractionOff)
	builder.SetMemoryModel(AddressingPhysical64, MemoryModelOpenCL)
	builder.AddConstantUint32(u32, 7)

	module, err := Parse(builder.Build())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	order := map[OpCode]int{
		OpCapability:    0,
		OpMemoryModel:   1,
		OpEntryPoint:    2,
		OpExecutionMode: 3,
		OpTypeInt:       4,
		OpConstant:      4,
	}
	last := -1
	for _, inst := range module.Globals {
		rank, ok := order[inst.Opcode]
		if !ok {
			continue
		}
		if rank < last {
			t.Fatalf("Section out of order: opcode %d after rank %d", inst.Opcode, last)
		}
		last = rank
	}
	if len(module.Functions) != 1 {
		t.Fatalf("Expected 1 function, got %d", len(module.Functions))
	}
}

func TestModuleBuilder_FunctionBody(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)
	builder.AddCapability(CapabilityKernel)
	builder.SetMemoryModel(AddressingPhysical64, MemoryModelOpenCL)

	voidType := builder.AddTypeVoid()
	u32 := builder.AddTypeInt(32, 0)
	fnType := builder.AddTypeFunction(voidType, u32)

	fn := builder.AddFunction(fnType, voidType, FunctionControlNone)
	if fn == 0 {
		t.Fatal("AddFunction returned zero id")
	}
	param := builder.AddFunctionParameter(u32)
	builder.AddLabel()
	sum := builder.AddBinaryOp(OpIAdd, u32, param, builder.AddConstantUint32(u32, 1))
	if sum == 0 {
		t.Error("AddBinaryOp returned zero id")
	}
	builder.AddReturn()
	builder.AddFunctionEnd()

	module, err := Parse(builder.Build())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(module.Functions) != 1 {
		t.Fatalf("Expected 1 function, got %d", len(module.Functions))
	}
	body := module.Functions[0].Instructions
	if body[0].Opcode != OpFunction {
		t.Errorf("Body should start with OpFunction, got %d", body[0].Opcode)
	}
	if body[len(body)-1].Opcode != OpFunctionEnd {
		t.Errorf("Body should end with OpFunctionEnd, got %d", body[len(body)-1].Opcode)
	}

	found := false
	for _, inst := range body {
		if inst.Opcode == OpIAdd {
			found = true
		}
	}
	if !found {
		t.Error("OpIAdd missing from function body")
	}
}
