// Package spirv provides SPIR-V module construction, binary parsing
// and structural comparison.
//
// SPIR-V is the standard intermediate language for GPU kernels and
// shaders, used by Vulkan, OpenCL, and other APIs. The modules built
// here use the OpenCL flavor: Kernel capability, Physical64 addressing
// and the OpenCL.std extended instruction set.
package spirv

// Version represents a SPIR-V version.
type Version struct {
	Major uint8
	Minor uint8
}

// Common SPIR-V versions
var (
	Version1_0 = Version{1, 0}
	Version1_3 = Version{1, 3}
	Version1_4 = Version{1, 4}
	Version1_5 = Version{1, 5}
	Version1_6 = Version{1, 6}
)

// Options configures SPIR-V generation.
type Options struct {
	// Version is the SPIR-V version to target
	Version Version

	// DebugNames emits OpName debug instructions for functions and
	// named variables
	DebugNames bool
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Version:    Version1_3,
		DebugNames: true,
	}
}

// SPIR-V magic number and constants
const (
	MagicNumber = 0x07230203
	GeneratorID = 0x00000000 // Unregistered generator
)

// OpCode represents a SPIR-V opcode.
type OpCode uint16

const (
	OpNop           OpCode = 0
	OpUndef         OpCode = 1
	OpSource        OpCode = 3
	OpName          OpCode = 5
	OpMemberName    OpCode = 6
	OpString        OpCode = 7
	OpExtension     OpCode = 10
	OpExtInstImport OpCode = 11
	OpExtInst       OpCode = 12
	OpMemoryModel   OpCode = 14
	OpEntryPoint    OpCode = 15
	OpExecutionMode OpCode = 16
	OpCapability    OpCode = 17

	OpTypeVoid     OpCode = 19
	OpTypeBool     OpCode = 20
	OpTypeInt      OpCode = 21
	OpTypeFloat    OpCode = 22
	OpTypeVector   OpCode = 23
	OpTypeArray    OpCode = 28
	OpTypeStruct   OpCode = 30
	OpTypePointer  OpCode = 32
	OpTypeFunction OpCode = 33

	OpConstantTrue      OpCode = 41
	OpConstantFalse     OpCode = 42
	OpConstant          OpCode = 43
	OpConstantComposite OpCode = 44
	OpConstantNull      OpCode = 46

	OpFunction          OpCode = 54
	OpFunctionParameter OpCode = 55
	OpFunctionEnd       OpCode = 56
	OpFunctionCall      OpCode = 57

	OpVariable             OpCode = 59
	OpLoad                 OpCode = 61
	OpStore                OpCode = 62
	OpCopyMemory           OpCode = 63
	OpAccessChain          OpCode = 65
	OpInBoundsAccessChain  OpCode = 66
	OpPtrAccessChain       OpCode = 67
	OpDecorate             OpCode = 71
	OpMemberDecorate       OpCode = 72
	OpVectorShuffle        OpCode = 79
	OpCompositeConstruct   OpCode = 80
	OpCompositeExtract     OpCode = 81
	OpCompositeInsert      OpCode = 82
	OpCopyObject           OpCode = 83

	OpConvertFToU     OpCode = 109
	OpConvertFToS     OpCode = 110
	OpConvertSToF     OpCode = 111
	OpConvertUToF     OpCode = 112
	OpUConvert        OpCode = 113
	OpSConvert        OpCode = 114
	OpFConvert        OpCode = 115
	OpQuantizeToF16   OpCode = 116
	OpConvertPtrToU   OpCode = 117
	OpSatConvertSToU  OpCode = 118
	OpSatConvertUToS  OpCode = 119
	OpConvertUToPtr   OpCode = 120
	OpBitcast         OpCode = 124

	OpSNegate OpCode = 126
	OpFNegate OpCode = 127
	OpIAdd    OpCode = 128
	OpFAdd    OpCode = 129
	OpISub    OpCode = 130
	OpFSub    OpCode = 131
	OpIMul    OpCode = 132
	OpFMul    OpCode = 133
	OpUDiv    OpCode = 134
	OpSDiv    OpCode = 135
	OpFDiv    OpCode = 136
	OpUMod    OpCode = 137
	OpSRem    OpCode = 138
	OpSMod    OpCode = 139
	OpFRem    OpCode = 140
	OpFMod    OpCode = 141

	OpIsNan     OpCode = 156
	OpIsInf     OpCode = 157
	OpOrdered   OpCode = 162
	OpUnordered OpCode = 163

	OpLogicalEqual    OpCode = 164
	OpLogicalNotEqual OpCode = 165
	OpLogicalOr       OpCode = 166
	OpLogicalAnd      OpCode = 167
	OpLogicalNot      OpCode = 168
	OpSelect          OpCode = 169

	OpIEqual                 OpCode = 170
	OpINotEqual              OpCode = 171
	OpUGreaterThan           OpCode = 172
	OpSGreaterThan           OpCode = 173
	OpUGreaterThanEqual      OpCode = 174
	OpSGreaterThanEqual      OpCode = 175
	OpULessThan              OpCode = 176
	OpSLessThan              OpCode = 177
	OpULessThanEqual         OpCode = 178
	OpSLessThanEqual         OpCode = 179
	OpFOrdEqual              OpCode = 180
	OpFUnordEqual            OpCode = 181
	OpFOrdNotEqual           OpCode = 182
	OpFUnordNotEqual         OpCode = 183
	OpFOrdLessThan           OpCode = 184
	OpFUnordLessThan         OpCode = 185
	OpFOrdGreaterThan        OpCode = 186
	OpFUnordGreaterThan      OpCode = 187
	OpFOrdLessThanEqual      OpCode = 188
	OpFUnordLessThanEqual    OpCode = 189
	OpFOrdGreaterThanEqual   OpCode = 190
	OpFUnordGreaterThanEqual OpCode = 191

	OpShiftRightLogical    OpCode = 194
	OpShiftRightArithmetic OpCode = 195
	OpShiftLeftLogical     OpCode = 196
	OpBitwiseOr            OpCode = 197
	OpBitwiseXor           OpCode = 198
	OpBitwiseAnd           OpCode = 199
	OpNot                  OpCode = 200
	OpBitFieldInsert       OpCode = 201
	OpBitFieldSExtract     OpCode = 202
	OpBitFieldUExtract     OpCode = 203
	OpBitReverse           OpCode = 204
	OpBitCount             OpCode = 205

	OpControlBarrier OpCode = 224
	OpMemoryBarrier  OpCode = 225

	OpAtomicLoad            OpCode = 227
	OpAtomicStore           OpCode = 228
	OpAtomicExchange        OpCode = 229
	OpAtomicCompareExchange OpCode = 230
	OpAtomicIIncrement      OpCode = 232
	OpAtomicIDecrement      OpCode = 233
	OpAtomicIAdd            OpCode = 234
	OpAtomicISub            OpCode = 235
	OpAtomicSMin            OpCode = 236
	OpAtomicUMin            OpCode = 237
	OpAtomicSMax            OpCode = 238
	OpAtomicUMax            OpCode = 239
	OpAtomicAnd             OpCode = 240
	OpAtomicOr              OpCode = 241
	OpAtomicXor             OpCode = 242

	OpPhi               OpCode = 245
	OpLoopMerge         OpCode = 246
	OpSelectionMerge    OpCode = 247
	OpLabel             OpCode = 248
	OpBranch            OpCode = 249
	OpBranchConditional OpCode = 250
	OpReturn            OpCode = 253
	OpReturnValue       OpCode = 254
	OpUnreachable       OpCode = 255
)

// Capability represents a SPIR-V capability.
type Capability uint32

const (
	CapabilityShader            Capability = 1
	CapabilityAddresses         Capability = 4
	CapabilityLinkage           Capability = 5
	CapabilityKernel            Capability = 6
	CapabilityFloat16           Capability = 9
	CapabilityFloat64           Capability = 10
	CapabilityInt64             Capability = 11
	CapabilityInt16             Capability = 22
	CapabilityInt8              Capability = 39
	CapabilityDenormPreserve    Capability = 4464
	CapabilityDenormFlushToZero Capability = 4465
)

// AddressingModel selects the pointer model of the module.
type AddressingModel uint32

const (
	AddressingLogical    AddressingModel = 0
	AddressingPhysical32 AddressingModel = 1
	AddressingPhysical64 AddressingModel = 2
)

// MemoryModel selects the memory consistency model of the module.
type MemoryModel uint32

const (
	MemoryModelSimple  MemoryModel = 0
	MemoryModelGLSL450 MemoryModel = 1
	MemoryModelOpenCL  MemoryModel = 2
)

// ExecutionModel is the entry point execution model.
type ExecutionModel uint32

const (
	ExecutionModelGLCompute ExecutionModel = 5
	ExecutionModelKernel    ExecutionModel = 6
)

// ExecutionMode is an entry point execution mode.
type ExecutionMode uint32

const (
	ExecutionModeLocalSize         ExecutionMode = 17
	ExecutionModeContractionOff    ExecutionMode = 31
	ExecutionModeDenormPreserve    ExecutionMode = 4459
	ExecutionModeDenormFlushToZero ExecutionMode = 4460
)

// StorageClass is the storage class of a pointer or variable.
type StorageClass uint32

const (
	StorageUniformConstant StorageClass = 0
	StorageInput           StorageClass = 1
	StorageUniform         StorageClass = 2
	StorageOutput          StorageClass = 3
	StorageWorkgroup       StorageClass = 4
	StorageCrossWorkgroup  StorageClass = 5
	StoragePrivate         StorageClass = 6
	StorageFunction        StorageClass = 7
	StorageGeneric         StorageClass = 8
)

// Decoration represents a SPIR-V decoration.
type Decoration uint32

const (
	DecorationBuiltIn           Decoration = 11
	DecorationFPRoundingMode    Decoration = 39
	DecorationLinkageAttributes Decoration = 41
	DecorationAlignment         Decoration = 44
)

// FPRoundingMode is the operand of the FPRoundingMode decoration.
type FPRoundingMode uint32

const (
	FPRoundingRTE FPRoundingMode = 0 // round to nearest even
	FPRoundingRTZ FPRoundingMode = 1 // round towards zero
	FPRoundingRTP FPRoundingMode = 2 // round towards +inf
	FPRoundingRTN FPRoundingMode = 3 // round towards -inf
)

// LinkageType is the second operand of LinkageAttributes.
type LinkageType uint32

const (
	LinkageExport LinkageType = 0
	LinkageImport LinkageType = 1
)

// BuiltIn identifies a built-in variable.
type BuiltIn uint32

const (
	BuiltInNumWorkgroups      BuiltIn = 24
	BuiltInWorkgroupSize      BuiltIn = 25
	BuiltInWorkgroupId        BuiltIn = 26
	BuiltInLocalInvocationId  BuiltIn = 27
	BuiltInGlobalInvocationId BuiltIn = 28
)

// FunctionControl is the control mask on OpFunction.
type FunctionControl uint32

const (
	FunctionControlNone       FunctionControl = 0
	FunctionControlInline     FunctionControl = 1
	FunctionControlDontInline FunctionControl = 2
	FunctionControlPure       FunctionControl = 4
	FunctionControlConst      FunctionControl = 8
)

// SelectionControl is the control mask on OpSelectionMerge.
type SelectionControl uint32

const (
	SelectionControlNone        SelectionControl = 0
	SelectionControlFlatten     SelectionControl = 1
	SelectionControlDontFlatten SelectionControl = 2
)

// LoopControl is the control mask on OpLoopMerge.
type LoopControl uint32

const (
	LoopControlNone      LoopControl = 0
	LoopControlUnroll    LoopControl = 1
	LoopControlDontUnroll LoopControl = 2
)

// Scope is a memory or execution scope id operand; scopes are passed
// as constant IDs, not literals, in atomics and barriers.
type Scope uint32

const (
	ScopeCrossDevice Scope = 0
	ScopeDevice      Scope = 1
	ScopeWorkgroup   Scope = 2
	ScopeSubgroup    Scope = 3
	ScopeInvocation  Scope = 4
)

// MemorySemantics is a memory semantics mask, also passed as a
// constant ID operand.
type MemorySemantics uint32

const (
	SemanticsRelaxed              MemorySemantics = 0x0
	SemanticsAcquire              MemorySemantics = 0x2
	SemanticsRelease              MemorySemantics = 0x4
	SemanticsAcquireRelease       MemorySemantics = 0x8
	SemanticsSequentiallyConsistent MemorySemantics = 0x10
	SemanticsWorkgroupMemory      MemorySemantics = 0x100
	SemanticsCrossWorkgroupMemory MemorySemantics = 0x200
)

// OpenCLStd is the name of the OpenCL extended instruction set.
const OpenCLStd = "OpenCL.std"

// OpenCL.std extended instruction numbers.
const (
	CLCeil  uint32 = 12
	CLCos   uint32 = 14
	CLExp2  uint32 = 20
	CLFabs  uint32 = 23
	CLFloor uint32 = 25
	CLFma   uint32 = 26
	CLFmax  uint32 = 27
	CLFmin  uint32 = 28
	CLLog2  uint32 = 38
	CLRint  uint32 = 53
	CLRound uint32 = 55
	CLRsqrt uint32 = 56
	CLSin   uint32 = 57
	CLSqrt  uint32 = 61
	CLTrunc uint32 = 66

	CLNativeCos    uint32 = 81
	CLNativeDivide uint32 = 82
	CLNativeExp    uint32 = 83
	CLNativeExp2   uint32 = 84
	CLNativeLog2   uint32 = 87
	CLNativeRecip  uint32 = 90
	CLNativeRsqrt  uint32 = 91
	CLNativeSin    uint32 = 92
	CLNativeSqrt   uint32 = 93

	CLSAbs     uint32 = 141
	CLSClamp   uint32 = 149
	CLUClamp   uint32 = 150
	CLClz      uint32 = 151
	CLSMax     uint32 = 156
	CLUMax     uint32 = 157
	CLSMin     uint32 = 158
	CLUMin     uint32 = 159
	CLSMulHi   uint32 = 160
	CLPopcount uint32 = 166
	CLUMulHi   uint32 = 203
)
