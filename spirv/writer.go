package spirv

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// Instruction represents a SPIR-V instruction.
type Instruction struct {
	Opcode OpCode
	Words  []uint32 // result type ID, result ID, operands
}

// InstructionBuilder builds SPIR-V instructions.
type InstructionBuilder struct {
	words []uint32
}

// NewInstructionBuilder creates a new instruction builder.
func NewInstructionBuilder() *InstructionBuilder {
	return &InstructionBuilder{
		words: make([]uint32, 0, 8),
	}
}

// AddWord adds a word to the instruction.
func (b *InstructionBuilder) AddWord(word uint32) {
	b.words = append(b.words, word)
}

// AddString adds a null-terminated UTF-8 string.
func (b *InstructionBuilder) AddString(s string) {
	bytes := []byte(s)
	// Add null terminator if not present
	if len(bytes) == 0 || bytes[len(bytes)-1] != 0 {
		bytes = append(bytes, 0)
	}

	// Pad to word boundary
	for len(bytes)%4 != 0 {
		bytes = append(bytes, 0)
	}

	// Convert to words
	for i := 0; i < len(bytes); i += 4 {
		word := uint32(bytes[i]) |
			uint32(bytes[i+1])<<8 |
			uint32(bytes[i+2])<<16 |
			uint32(bytes[i+3])<<24
		b.words = append(b.words, word)
	}
}

// Build builds the instruction with the given opcode.
func (b *InstructionBuilder) Build(opcode OpCode) Instruction {
	return Instruction{
		Opcode: opcode,
		Words:  b.words,
	}
}

// Encode encodes the instruction to binary.
func (i Instruction) Encode() []uint32 {
	wordCount := uint32(len(i.Words) + 1) // +1 for opcode word
	result := make([]uint32, 0, wordCount)
	result = append(result, (wordCount<<16)|uint32(i.Opcode))
	result = append(result, i.Words...)
	return result
}

// ModuleBuilder builds complete SPIR-V modules.
//
// Types and constants are interned structurally: requesting the same
// type or constant twice returns the id of the first emission, so the
// types section never carries duplicates.
type ModuleBuilder struct {
	// Header
	version   Version
	generator uint32
	bound     uint32 // max ID + 1
	schema    uint32

	// Sections (ordered per SPIR-V spec)
	capabilities   []Instruction
	extensions     []Instruction
	extInstImports []Instruction
	memoryModel    *Instruction
	entryPoints    []Instruction
	executionModes []Instruction
	debugNames     []Instruction // OpName, OpMemberName
	annotations    []Instruction // OpDecorate, OpMemberDecorate
	types          []Instruction // OpType*, OpConstant*
	globalVars     []Instruction // OpVariable (module scope)
	functions      []Instruction // OpFunction...OpFunctionEnd

	// Interning keys: opcode plus every operand except the result id.
	typeIDs      map[string]uint32
	capSeen map[Capability]bool

	// ID allocation
	nextID uint32
}

// NewModuleBuilder creates a new SPIR-V module builder.
func NewModuleBuilder(version Version) *ModuleBuilder {
	return &ModuleBuilder{
		version:       version,
		generator:     GeneratorID,
		schema:        0,
		typeIDs:       make(map[string]uint32),
		capSeen: make(map[Capability]bool),
		nextID:        1,
	}
}

// AllocID allocates a new SPIR-V ID.
func (b *ModuleBuilder) AllocID() uint32 {
	id := b.nextID
	b.nextID++
	return id
}

// Bound returns the current id bound (max allocated id + 1).
func (b *ModuleBuilder) Bound() uint32 {
	return b.nextID
}

// AddCapability adds a capability; duplicates are dropped.
func (b *ModuleBuilder) AddCapability(capability Capability) {
	if b.capSeen[capability] {
		return
	}
	b.capSeen[capability] = true
	builder := NewInstructionBuilder()
	builder.AddWord(uint32(capability))
	b.capabilities = append(b.capabilities, builder.Build(OpCapability))
}

// AddExtension adds an extension.
func (b *ModuleBuilder) AddExtension(name string) {
	builder := NewInstructionBuilder()
	builder.AddString(name)
	b.extensions = append(b.extensions, builder.Build(OpExtension))
}

// AddExtInstImport imports an extended instruction set.
func (b *ModuleBuilder) AddExtInstImport(name string) uint32 {
	id := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(id)
	builder.AddString(name)
	b.extInstImports = append(b.extInstImports, builder.Build(OpExtInstImport))
	return id
}

// SetMemoryModel sets the memory model.
func (b *ModuleBuilder) SetMemoryModel(addressing AddressingModel, memory MemoryModel) {
	builder := NewInstructionBuilder()
	builder.AddWord(uint32(addressing))
	builder.AddWord(uint32(memory))
	inst := builder.Build(OpMemoryModel)
	b.memoryModel = &inst
}

// AddEntryPoint adds an entry point.
func (b *ModuleBuilder) AddEntryPoint(execModel ExecutionModel, funcID uint32, name string, interfaces []uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(uint32(execModel))
	builder.AddWord(funcID)
	builder.AddString(name)
	for _, iface := range interfaces {
		builder.AddWord(iface)
	}
	b.entryPoints = append(b.entryPoints, builder.Build(OpEntryPoint))
}

// AddExecutionMode adds an execution mode.
func (b *ModuleBuilder) AddExecutionMode(entryPoint uint32, mode ExecutionMode, params ...uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(entryPoint)
	builder.AddWord(uint32(mode))
	for _, param := range params {
		builder.AddWord(param)
	}
	b.executionModes = append(b.executionModes, builder.Build(OpExecutionMode))
}

// AddName adds a debug name.
func (b *ModuleBuilder) AddName(id uint32, name string) {
	builder := NewInstructionBuilder()
	builder.AddWord(id)
	builder.AddString(name)
	b.debugNames = append(b.debugNames, builder.Build(OpName))
}

// AddDecorate adds a decoration.
func (b *ModuleBuilder) AddDecorate(id uint32, decoration Decoration, params ...uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(id)
	builder.AddWord(uint32(decoration))
	for _, param := range params {
		builder.AddWord(param)
	}
	b.annotations = append(b.annotations, builder.Build(OpDecorate))
}

// AddDecorateString adds a decoration whose first operand is a string
// literal (LinkageAttributes carries the symbol name inline).
func (b *ModuleBuilder) AddDecorateString(id uint32, decoration Decoration, name string, params ...uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(id)
	builder.AddWord(uint32(decoration))
	builder.AddString(name)
	for _, param := range params {
		builder.AddWord(param)
	}
	b.annotations = append(b.annotations, builder.Build(OpDecorate))
}

// internType returns the id of the structurally identical type or
// constant already in the types section, emitting it on first use.
// The key is the opcode plus every operand excluding the result id.
func (b *ModuleBuilder) internType(opcode OpCode, emit func(id uint32) Instruction, keyWords ...uint32) uint32 {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(opcode)))
	for _, w := range keyWords {
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatUint(uint64(w), 16))
	}
	key := sb.String()

	if id, ok := b.typeIDs[key]; ok {
		return id
	}
	id := b.AllocID()
	b.typeIDs[key] = id
	b.types = append(b.types, emit(id))
	return id
}

// AddTypeVoid adds OpTypeVoid.
func (b *ModuleBuilder) AddTypeVoid() uint32 {
	return b.internType(OpTypeVoid, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(id)
		return builder.Build(OpTypeVoid)
	})
}

// AddTypeBool adds OpTypeBool.
func (b *ModuleBuilder) AddTypeBool() uint32 {
	return b.internType(OpTypeBool, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(id)
		return builder.Build(OpTypeBool)
	})
}

// AddTypeInt adds OpTypeInt. OpenCL-flavor modules use signedness 0
// for every integer; sign lives in the operations, not the types.
func (b *ModuleBuilder) AddTypeInt(width uint32, signedness uint32) uint32 {
	return b.internType(OpTypeInt, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(id)
		builder.AddWord(width)
		builder.AddWord(signedness)
		return builder.Build(OpTypeInt)
	}, width, signedness)
}

// AddTypeFloat adds OpTypeFloat.
func (b *ModuleBuilder) AddTypeFloat(width uint32) uint32 {
	return b.internType(OpTypeFloat, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(id)
		builder.AddWord(width)
		return builder.Build(OpTypeFloat)
	}, width)
}

// AddTypeVector adds OpTypeVector.
func (b *ModuleBuilder) AddTypeVector(componentType uint32, count uint32) uint32 {
	return b.internType(OpTypeVector, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(id)
		builder.AddWord(componentType)
		builder.AddWord(count)
		return builder.Build(OpTypeVector)
	}, componentType, count)
}

// AddTypeArray adds OpTypeArray. The length is a constant id.
func (b *ModuleBuilder) AddTypeArray(elementType uint32, lengthID uint32) uint32 {
	return b.internType(OpTypeArray, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(id)
		builder.AddWord(elementType)
		builder.AddWord(lengthID)
		return builder.Build(OpTypeArray)
	}, elementType, lengthID)
}

// AddTypePointer adds OpTypePointer.
func (b *ModuleBuilder) AddTypePointer(storageClass StorageClass, baseType uint32) uint32 {
	return b.internType(OpTypePointer, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(id)
		builder.AddWord(uint32(storageClass))
		builder.AddWord(baseType)
		return builder.Build(OpTypePointer)
	}, uint32(storageClass), baseType)
}

// AddTypeFunction adds OpTypeFunction.
func (b *ModuleBuilder) AddTypeFunction(returnType uint32, paramTypes ...uint32) uint32 {
	key := append([]uint32{returnType}, paramTypes...)
	return b.internType(OpTypeFunction, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(id)
		builder.AddWord(returnType)
		for _, paramType := range paramTypes {
			builder.AddWord(paramType)
		}
		return builder.Build(OpTypeFunction)
	}, key...)
}

// AddConstant adds OpConstant; the value words follow the literal
// encoding of the type (one word up to 32 bits, low word first for 64).
func (b *ModuleBuilder) AddConstant(typeID uint32, values ...uint32) uint32 {
	key := append([]uint32{typeID}, values...)
	return b.internType(OpConstant, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(typeID)
		builder.AddWord(id)
		for _, value := range values {
			builder.AddWord(value)
		}
		return builder.Build(OpConstant)
	}, key...)
}

// AddConstantUint32 adds a constant of a 32-bit-or-narrower int type.
func (b *ModuleBuilder) AddConstantUint32(typeID uint32, value uint32) uint32 {
	return b.AddConstant(typeID, value)
}

// AddConstantUint64 adds a 64-bit integer constant, low word first.
func (b *ModuleBuilder) AddConstantUint64(typeID uint32, value uint64) uint32 {
	return b.AddConstant(typeID, uint32(value&0xFFFFFFFF), uint32(value>>32))
}

// AddConstantFloat32 adds a 32-bit float constant.
func (b *ModuleBuilder) AddConstantFloat32(typeID uint32, value float32) uint32 {
	bits := math.Float32bits(value)
	return b.AddConstant(typeID, bits)
}

// AddConstantFloat64 adds a 64-bit float constant.
func (b *ModuleBuilder) AddConstantFloat64(typeID uint32, value float64) uint32 {
	bits := math.Float64bits(value)
	return b.AddConstant(typeID, uint32(bits&0xFFFFFFFF), uint32(bits>>32))
}

// AddConstantNull adds OpConstantNull.
func (b *ModuleBuilder) AddConstantNull(typeID uint32) uint32 {
	return b.internType(OpConstantNull, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(typeID)
		builder.AddWord(id)
		return builder.Build(OpConstantNull)
	}, typeID)
}

// AddConstantBool adds OpConstantTrue or OpConstantFalse.
func (b *ModuleBuilder) AddConstantBool(typeID uint32, value bool) uint32 {
	opcode := OpConstantFalse
	if value {
		opcode = OpConstantTrue
	}
	return b.internType(opcode, func(id uint32) Instruction {
		builder := NewInstructionBuilder()
		builder.AddWord(typeID)
		builder.AddWord(id)
		return builder.Build(opcode)
	}, typeID)
}

// AddGlobalVariable adds a module-scope OpVariable. initID 0 omits the
// initializer.
func (b *ModuleBuilder) AddGlobalVariable(pointerType uint32, storageClass StorageClass, initID uint32) uint32 {
	id := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(pointerType)
	builder.AddWord(id)
	builder.AddWord(uint32(storageClass))
	if initID != 0 {
		builder.AddWord(initID)
	}
	b.globalVars = append(b.globalVars, builder.Build(OpVariable))
	return id
}

// AddFunction adds a function definition header.
func (b *ModuleBuilder) AddFunction(funcType uint32, returnType uint32, control FunctionControl) uint32 {
	id := b.AllocID()
	b.AddFunctionWithID(id, funcType, returnType, control)
	return id
}

// AddFunctionWithID adds a function definition header with a result id
// allocated in advance, so call sites can reference functions defined
// later in the module.
func (b *ModuleBuilder) AddFunctionWithID(id, funcType, returnType uint32, control FunctionControl) {
	builder := NewInstructionBuilder()
	builder.AddWord(returnType)
	builder.AddWord(id)
	builder.AddWord(uint32(control))
	builder.AddWord(funcType)
	b.functions = append(b.functions, builder.Build(OpFunction))
}

// AddFunctionParameter adds a function parameter.
func (b *ModuleBuilder) AddFunctionParameter(typeID uint32) uint32 {
	id := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(typeID)
	builder.AddWord(id)
	b.functions = append(b.functions, builder.Build(OpFunctionParameter))
	return id
}

// AddFunctionEnd adds OpFunctionEnd.
func (b *ModuleBuilder) AddFunctionEnd() {
	builder := NewInstructionBuilder()
	b.functions = append(b.functions, builder.Build(OpFunctionEnd))
}

// AddLabel adds a label with a fresh id.
func (b *ModuleBuilder) AddLabel() uint32 {
	id := b.AllocID()
	b.AddLabelWithID(id)
	return id
}

// AddLabelWithID adds a label whose id was allocated in advance, for
// forward branches.
func (b *ModuleBuilder) AddLabelWithID(id uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(id)
	b.functions = append(b.functions, builder.Build(OpLabel))
}

// AddLocalVariable adds a function-scope OpVariable. Callers must emit
// these directly after the first label of the function.
func (b *ModuleBuilder) AddLocalVariable(pointerType uint32) uint32 {
	id := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(pointerType)
	builder.AddWord(id)
	builder.AddWord(uint32(StorageFunction))
	b.functions = append(b.functions, builder.Build(OpVariable))
	return id
}

// AddReturn adds OpReturn.
func (b *ModuleBuilder) AddReturn() {
	builder := NewInstructionBuilder()
	b.functions = append(b.functions, builder.Build(OpReturn))
}

// AddReturnValue adds OpReturnValue.
func (b *ModuleBuilder) AddReturnValue(valueID uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(valueID)
	b.functions = append(b.functions, builder.Build(OpReturnValue))
}

// AddUnreachable adds OpUnreachable.
func (b *ModuleBuilder) AddUnreachable() {
	builder := NewInstructionBuilder()
	b.functions = append(b.functions, builder.Build(OpUnreachable))
}

// AddBinaryOp adds a binary operation instruction.
func (b *ModuleBuilder) AddBinaryOp(opcode OpCode, resultType uint32, left uint32, right uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(left)
	builder.AddWord(right)
	b.functions = append(b.functions, builder.Build(opcode))
	return resultID
}

// AddUnaryOp adds a unary operation instruction.
func (b *ModuleBuilder) AddUnaryOp(opcode OpCode, resultType uint32, operand uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(operand)
	b.functions = append(b.functions, builder.Build(opcode))
	return resultID
}

// AddOp adds a result-producing instruction with arbitrary operands.
func (b *ModuleBuilder) AddOp(opcode OpCode, resultType uint32, operands ...uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	for _, op := range operands {
		builder.AddWord(op)
	}
	b.functions = append(b.functions, builder.Build(opcode))
	return resultID
}

// AddLoad adds OpLoad.
func (b *ModuleBuilder) AddLoad(resultType uint32, pointer uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(pointer)
	b.functions = append(b.functions, builder.Build(OpLoad))
	return resultID
}

// AddAlignedLoad adds OpLoad with the Aligned memory operand mask.
func (b *ModuleBuilder) AddAlignedLoad(resultType uint32, pointer uint32, align uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(pointer)
	builder.AddWord(0x2) // Aligned
	builder.AddWord(align)
	b.functions = append(b.functions, builder.Build(OpLoad))
	return resultID
}

// AddStore adds OpStore.
func (b *ModuleBuilder) AddStore(pointer uint32, value uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(pointer)
	builder.AddWord(value)
	b.functions = append(b.functions, builder.Build(OpStore))
}

// AddAlignedStore adds OpStore with the Aligned memory operand mask.
func (b *ModuleBuilder) AddAlignedStore(pointer uint32, value uint32, align uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(pointer)
	builder.AddWord(value)
	builder.AddWord(0x2) // Aligned
	builder.AddWord(align)
	b.functions = append(b.functions, builder.Build(OpStore))
}

// AddAccessChain adds OpAccessChain.
func (b *ModuleBuilder) AddAccessChain(resultType uint32, base uint32, indices ...uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(base)
	for _, index := range indices {
		builder.AddWord(index)
	}
	b.functions = append(b.functions, builder.Build(OpAccessChain))
	return resultID
}

// AddPtrAccessChain adds OpPtrAccessChain (element-indexed pointer
// arithmetic; requires the Addresses capability).
func (b *ModuleBuilder) AddPtrAccessChain(resultType uint32, base uint32, element uint32, indices ...uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(base)
	builder.AddWord(element)
	for _, index := range indices {
		builder.AddWord(index)
	}
	b.functions = append(b.functions, builder.Build(OpPtrAccessChain))
	return resultID
}

// AddCompositeConstruct adds OpCompositeConstruct.
func (b *ModuleBuilder) AddCompositeConstruct(resultType uint32, constituents ...uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	for _, constituent := range constituents {
		builder.AddWord(constituent)
	}
	b.functions = append(b.functions, builder.Build(OpCompositeConstruct))
	return resultID
}

// AddCompositeExtract adds OpCompositeExtract with literal indices.
func (b *ModuleBuilder) AddCompositeExtract(resultType uint32, composite uint32, indices ...uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(composite)
	for _, index := range indices {
		builder.AddWord(index)
	}
	b.functions = append(b.functions, builder.Build(OpCompositeExtract))
	return resultID
}

// AddCopyObject adds OpCopyObject.
func (b *ModuleBuilder) AddCopyObject(resultType uint32, operand uint32) uint32 {
	return b.AddUnaryOp(OpCopyObject, resultType, operand)
}

// AddSelect adds OpSelect.
func (b *ModuleBuilder) AddSelect(resultType uint32, condition uint32, accept uint32, reject uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(condition)
	builder.AddWord(accept)
	builder.AddWord(reject)
	b.functions = append(b.functions, builder.Build(OpSelect))
	return resultID
}

// AddSelectionMerge adds OpSelectionMerge.
func (b *ModuleBuilder) AddSelectionMerge(mergeLabel uint32, control SelectionControl) {
	builder := NewInstructionBuilder()
	builder.AddWord(mergeLabel)
	builder.AddWord(uint32(control))
	b.functions = append(b.functions, builder.Build(OpSelectionMerge))
}

// AddBranch adds OpBranch.
func (b *ModuleBuilder) AddBranch(targetLabel uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(targetLabel)
	b.functions = append(b.functions, builder.Build(OpBranch))
}

// AddBranchConditional adds OpBranchConditional.
func (b *ModuleBuilder) AddBranchConditional(condition uint32, trueLabel uint32, falseLabel uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(condition)
	builder.AddWord(trueLabel)
	builder.AddWord(falseLabel)
	b.functions = append(b.functions, builder.Build(OpBranchConditional))
}

// AddFunctionCall adds OpFunctionCall.
func (b *ModuleBuilder) AddFunctionCall(resultType uint32, function uint32, args ...uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(function)
	for _, arg := range args {
		builder.AddWord(arg)
	}
	b.functions = append(b.functions, builder.Build(OpFunctionCall))
	return resultID
}

// AddExtInst adds OpExtInst (extended instruction).
func (b *ModuleBuilder) AddExtInst(resultType uint32, extSet uint32, instruction uint32, operands ...uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(extSet)
	builder.AddWord(instruction)
	for _, operand := range operands {
		builder.AddWord(operand)
	}
	b.functions = append(b.functions, builder.Build(OpExtInst))
	return resultID
}

// AddControlBarrier adds OpControlBarrier. Scopes and semantics are
// constant ids, not literals.
func (b *ModuleBuilder) AddControlBarrier(execScope, memScope, semantics uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(execScope)
	builder.AddWord(memScope)
	builder.AddWord(semantics)
	b.functions = append(b.functions, builder.Build(OpControlBarrier))
}

// AddAtomicRMW adds a read-modify-write atomic (exchange, add, min,
// max, and, or, xor) taking pointer, scope id, semantics id, value.
func (b *ModuleBuilder) AddAtomicRMW(opcode OpCode, resultType, pointer, scope, semantics, value uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(pointer)
	builder.AddWord(scope)
	builder.AddWord(semantics)
	builder.AddWord(value)
	b.functions = append(b.functions, builder.Build(opcode))
	return resultID
}

// AddAtomicNullary adds an operand-less atomic (increment, decrement).
func (b *ModuleBuilder) AddAtomicNullary(opcode OpCode, resultType, pointer, scope, semantics uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(pointer)
	builder.AddWord(scope)
	builder.AddWord(semantics)
	b.functions = append(b.functions, builder.Build(opcode))
	return resultID
}

// AddAtomicCompareExchange adds OpAtomicCompareExchange.
func (b *ModuleBuilder) AddAtomicCompareExchange(resultType, pointer, scope, eqSemantics, neqSemantics, value, comparator uint32) uint32 {
	resultID := b.AllocID()
	builder := NewInstructionBuilder()
	builder.AddWord(resultType)
	builder.AddWord(resultID)
	builder.AddWord(pointer)
	builder.AddWord(scope)
	builder.AddWord(eqSemantics)
	builder.AddWord(neqSemantics)
	builder.AddWord(value)
	builder.AddWord(comparator)
	b.functions = append(b.functions, builder.Build(OpAtomicCompareExchange))
	return resultID
}

// Build generates the final SPIR-V binary.
func (b *ModuleBuilder) Build() []byte {
	// Update bound to max ID
	b.bound = b.nextID

	// Calculate total size
	totalWords := 5 // header
	totalWords += countWords(b.capabilities)
	totalWords += countWords(b.extensions)
	totalWords += countWords(b.extInstImports)
	if b.memoryModel != nil {
		totalWords += len(b.memoryModel.Encode())
	}
	totalWords += countWords(b.entryPoints)
	totalWords += countWords(b.executionModes)
	totalWords += countWords(b.debugNames)
	totalWords += countWords(b.annotations)
	totalWords += countWords(b.types)
	totalWords += countWords(b.globalVars)
	totalWords += countWords(b.functions)

	// Allocate buffer
	buffer := make([]byte, totalWords*4)
	offset := 0

	// Write header
	binary.LittleEndian.PutUint32(buffer[offset:], MagicNumber)
	offset += 4
	binary.LittleEndian.PutUint32(buffer[offset:], versionToWord(b.version))
	offset += 4
	binary.LittleEndian.PutUint32(buffer[offset:], b.generator)
	offset += 4
	binary.LittleEndian.PutUint32(buffer[offset:], b.bound)
	offset += 4
	binary.LittleEndian.PutUint32(buffer[offset:], b.schema)
	offset += 4

	// Write sections in order
	offset = writeInstructions(buffer, offset, b.capabilities)
	offset = writeInstructions(buffer, offset, b.extensions)
	offset = writeInstructions(buffer, offset, b.extInstImports)
	if b.memoryModel != nil {
		offset = writeInstruction(buffer, offset, *b.memoryModel)
	}
	offset = writeInstructions(buffer, offset, b.entryPoints)
	offset = writeInstructions(buffer, offset, b.executionModes)
	offset = writeInstructions(buffer, offset, b.debugNames)
	offset = writeInstructions(buffer, offset, b.annotations)
	offset = writeInstructions(buffer, offset, b.types)
	offset = writeInstructions(buffer, offset, b.globalVars)
	_ = writeInstructions(buffer, offset, b.functions)

	return buffer
}

// countWords counts total words in instructions.
func countWords(instructions []Instruction) int {
	count := 0
	for _, inst := range instructions {
		count += len(inst.Encode())
	}
	return count
}

// writeInstructions writes instructions to buffer.
func writeInstructions(buffer []byte, offset int, instructions []Instruction) int {
	for _, inst := range instructions {
		offset = writeInstruction(buffer, offset, inst)
	}
	return offset
}

// writeInstruction writes a single instruction to buffer.
func writeInstruction(buffer []byte, offset int, inst Instruction) int {
	words := inst.Encode()
	for _, word := range words {
		binary.LittleEndian.PutUint32(buffer[offset:], word)
		offset += 4
	}
	return offset
}

// versionToWord converts Version to SPIR-V word format.
func versionToWord(v Version) uint32 {
	return (uint32(v.Major) << 16) | (uint32(v.Minor) << 8)
}
