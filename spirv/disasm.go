package spirv

import (
	"fmt"
	"strings"
)

var opcodeNames = map[OpCode]string{
	OpNop: "OpNop", OpSource: "OpSource", OpName: "OpName",
	OpMemberName: "OpMemberName", OpString: "OpString",
	OpExtension: "OpExtension", OpExtInstImport: "OpExtInstImport",
	OpExtInst: "OpExtInst", OpMemoryModel: "OpMemoryModel",
	OpEntryPoint: "OpEntryPoint", OpExecutionMode: "OpExecutionMode",
	OpCapability: "OpCapability",
	OpTypeVoid:   "OpTypeVoid", OpTypeBool: "OpTypeBool",
	OpTypeInt: "OpTypeInt", OpTypeFloat: "OpTypeFloat",
	OpTypeVector: "OpTypeVector", OpTypeArray: "OpTypeArray",
	OpTypeStruct: "OpTypeStruct", OpTypePointer: "OpTypePointer",
	OpTypeFunction: "OpTypeFunction",
	OpConstantTrue: "OpConstantTrue", OpConstantFalse: "OpConstantFalse",
	OpConstant: "OpConstant", OpConstantComposite: "OpConstantComposite",
	OpConstantNull: "OpConstantNull",
	OpFunction:     "OpFunction", OpFunctionParameter: "OpFunctionParameter",
	OpFunctionEnd: "OpFunctionEnd", OpFunctionCall: "OpFunctionCall",
	OpVariable: "OpVariable", OpLoad: "OpLoad", OpStore: "OpStore",
	OpCopyMemory: "OpCopyMemory", OpAccessChain: "OpAccessChain",
	OpPtrAccessChain: "OpPtrAccessChain", OpDecorate: "OpDecorate",
	OpMemberDecorate: "OpMemberDecorate",
	OpCompositeConstruct: "OpCompositeConstruct",
	OpCompositeExtract:   "OpCompositeExtract",
	OpCompositeInsert:    "OpCompositeInsert", OpCopyObject: "OpCopyObject",
	OpConvertFToU: "OpConvertFToU", OpConvertFToS: "OpConvertFToS",
	OpConvertSToF: "OpConvertSToF", OpConvertUToF: "OpConvertUToF",
	OpUConvert: "OpUConvert", OpSConvert: "OpSConvert",
	OpFConvert: "OpFConvert", OpConvertPtrToU: "OpConvertPtrToU",
	OpSatConvertSToU: "OpSatConvertSToU", OpSatConvertUToS: "OpSatConvertUToS",
	OpConvertUToPtr: "OpConvertUToPtr", OpBitcast: "OpBitcast",
	OpSNegate: "OpSNegate", OpFNegate: "OpFNegate",
	OpIAdd: "OpIAdd", OpFAdd: "OpFAdd", OpISub: "OpISub", OpFSub: "OpFSub",
	OpIMul: "OpIMul", OpFMul: "OpFMul", OpUDiv: "OpUDiv", OpSDiv: "OpSDiv",
	OpFDiv: "OpFDiv", OpUMod: "OpUMod", OpSRem: "OpSRem", OpSMod: "OpSMod",
	OpFRem: "OpFRem", OpFMod: "OpFMod",
	OpIsNan: "OpIsNan", OpIsInf: "OpIsInf",
	OpOrdered: "OpOrdered", OpUnordered: "OpUnordered",
	OpLogicalEqual: "OpLogicalEqual", OpLogicalNotEqual: "OpLogicalNotEqual",
	OpLogicalOr: "OpLogicalOr", OpLogicalAnd: "OpLogicalAnd",
	OpLogicalNot: "OpLogicalNot", OpSelect: "OpSelect",
	OpIEqual: "OpIEqual", OpINotEqual: "OpINotEqual",
	OpUGreaterThan: "OpUGreaterThan", OpSGreaterThan: "OpSGreaterThan",
	OpUGreaterThanEqual: "OpUGreaterThanEqual", OpSGreaterThanEqual: "OpSGreaterThanEqual",
	OpULessThan: "OpULessThan", OpSLessThan: "OpSLessThan",
	OpULessThanEqual: "OpULessThanEqual", OpSLessThanEqual: "OpSLessThanEqual",
	OpFOrdEqual: "OpFOrdEqual", OpFUnordEqual: "OpFUnordEqual",
	OpFOrdNotEqual: "OpFOrdNotEqual", OpFUnordNotEqual: "OpFUnordNotEqual",
	OpFOrdLessThan: "OpFOrdLessThan", OpFUnordLessThan: "OpFUnordLessThan",
	OpFOrdGreaterThan: "OpFOrdGreaterThan", OpFUnordGreaterThan: "OpFUnordGreaterThan",
	OpFOrdLessThanEqual: "OpFOrdLessThanEqual", OpFUnordLessThanEqual: "OpFUnordLessThanEqual",
	OpFOrdGreaterThanEqual: "OpFOrdGreaterThanEqual", OpFUnordGreaterThanEqual: "OpFUnordGreaterThanEqual",
	OpShiftRightLogical: "OpShiftRightLogical", OpShiftRightArithmetic: "OpShiftRightArithmetic",
	OpShiftLeftLogical: "OpShiftLeftLogical",
	OpBitwiseOr:        "OpBitwiseOr", OpBitwiseXor: "OpBitwiseXor",
	OpBitwiseAnd: "OpBitwiseAnd", OpNot: "OpNot",
	OpBitFieldSExtract: "OpBitFieldSExtract", OpBitFieldUExtract: "OpBitFieldUExtract",
	OpBitReverse: "OpBitReverse", OpBitCount: "OpBitCount",
	OpControlBarrier: "OpControlBarrier", OpMemoryBarrier: "OpMemoryBarrier",
	OpAtomicLoad: "OpAtomicLoad", OpAtomicStore: "OpAtomicStore",
	OpAtomicExchange: "OpAtomicExchange", OpAtomicCompareExchange: "OpAtomicCompareExchange",
	OpAtomicIIncrement: "OpAtomicIIncrement", OpAtomicIDecrement: "OpAtomicIDecrement",
	OpAtomicIAdd: "OpAtomicIAdd", OpAtomicISub: "OpAtomicISub",
	OpAtomicSMin: "OpAtomicSMin", OpAtomicUMin: "OpAtomicUMin",
	OpAtomicSMax: "OpAtomicSMax", OpAtomicUMax: "OpAtomicUMax",
	OpAtomicAnd: "OpAtomicAnd", OpAtomicOr: "OpAtomicOr", OpAtomicXor: "OpAtomicXor",
	OpPhi: "OpPhi", OpLoopMerge: "OpLoopMerge", OpSelectionMerge: "OpSelectionMerge",
	OpLabel: "OpLabel", OpBranch: "OpBranch", OpBranchConditional: "OpBranchConditional",
	OpReturn: "OpReturn", OpReturnValue: "OpReturnValue", OpUnreachable: "OpUnreachable",
}

var capabilityNames = map[uint32]string{
	4: "Addresses", 5: "Linkage", 6: "Kernel",
	9: "Float16", 10: "Float64", 11: "Int64",
	22: "Int16", 38: "GenericPointer", 39: "Int8",
	4464: "DenormPreserve", 4465: "DenormFlushToZero",
}

var storageClassNames = map[uint32]string{
	0: "UniformConstant", 1: "Input", 4: "Workgroup",
	5: "CrossWorkgroup", 6: "Private", 7: "Function", 8: "Generic",
}

var decorationNames = map[uint32]string{
	11: "BuiltIn", 19: "Restrict", 20: "Aliased", 21: "Volatile",
	22: "Constant", 23: "Coherent", 38: "FuncParamAttr",
	39: "FPRoundingMode", 41: "LinkageAttributes", 44: "Alignment",
}

var builtinNames = map[uint32]string{
	24: "NumWorkgroups", 25: "WorkgroupSize", 26: "WorkgroupId",
	27: "LocalInvocationId", 28: "GlobalInvocationId",
	31: "GlobalSize", 33: "GlobalOffset",
}

var executionModeNames = map[uint32]string{
	17: "LocalSize", 18: "LocalSizeHint", 31: "ContractionOff",
	4459: "DenormPreserve", 4460: "DenormFlushToZero",
	4461: "SignedZeroInfNanPreserve", 4462: "RoundingModeRTE",
	4463: "RoundingModeRTZ",
}

func opcodeName(op OpCode) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Op%d", op)
}

func enumName(m map[uint32]string, v uint32) string {
	if s, ok := m[v]; ok {
		return s
	}
	return fmt.Sprintf("%d", v)
}

// decodeString decodes the null-terminated string at the start of
// words and returns it with the number of words it occupies.
func decodeString(words []uint32) (string, int) {
	var sb strings.Builder
	for i, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			b := byte(w >> shift)
			if b == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(b)
		}
	}
	return sb.String(), len(words)
}

// Disassemble renders a SPIR-V binary as assembly-like text, one
// instruction per line in the spirv-dis style.
func Disassemble(data []byte) (string, error) {
	module, err := Parse(data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "; SPIR-V\n")
	fmt.Fprintf(&sb, "; Version: %d.%d\n", (module.Version>>16)&0xFF, (module.Version>>8)&0xFF)
	fmt.Fprintf(&sb, "; Bound: %d\n\n", module.Bound)

	for _, inst := range module.Globals {
		disasmInstruction(&sb, inst)
	}
	for _, fn := range module.Functions {
		sb.WriteByte('\n')
		for _, inst := range fn.Instructions {
			disasmInstruction(&sb, inst)
		}
	}
	return sb.String(), nil
}

func disasmInstruction(sb *strings.Builder, inst ParsedInstruction) {
	name := opcodeName(inst.Opcode)

	if id, ok := inst.ResultID(); ok {
		fmt.Fprintf(sb, "%10s = %s", ref(id), name)
	} else {
		fmt.Fprintf(sb, "%10s   %s", "", name)
	}

	writeOperands(sb, inst)
	sb.WriteByte('\n')
}

// writeOperands formats the operands after the result id: ids as %n
// references, enum literals by name where the opcode fixes their
// meaning, strings quoted, everything else as plain numbers.
func writeOperands(sb *strings.Builder, inst ParsedInstruction) {
	w := inst.Words

	switch inst.Opcode {
	case OpCapability:
		fmt.Fprintf(sb, " %s", enumName(capabilityNames, w[0]))
		return

	case OpMemoryModel:
		addr := map[uint32]string{0: "Logical", 1: "Physical32", 2: "Physical64"}
		mem := map[uint32]string{0: "Simple", 1: "GLSL450", 2: "OpenCL"}
		fmt.Fprintf(sb, " %s %s", enumName(addr, w[0]), enumName(mem, w[1]))
		return

	case OpExtInstImport, OpString, OpExtension, OpSource:
		if inst.Opcode == OpExtension || inst.Opcode == OpSource {
			str, _ := decodeString(w)
			fmt.Fprintf(sb, " %q", str)
			return
		}
		str, _ := decodeString(w[1:])
		fmt.Fprintf(sb, " %q", str)
		return

	case OpName:
		str, _ := decodeString(w[1:])
		fmt.Fprintf(sb, " %s %q", ref(w[0]), str)
		return

	case OpEntryPoint:
		models := map[uint32]string{5: "GLCompute", 6: "Kernel"}
		str, n := decodeString(w[2:])
		fmt.Fprintf(sb, " %s %s %q", enumName(models, w[0]), ref(w[1]), str)
		for _, iface := range w[2+n:] {
			fmt.Fprintf(sb, " %s", ref(iface))
		}
		return

	case OpExecutionMode:
		fmt.Fprintf(sb, " %s %s", ref(w[0]), enumName(executionModeNames, w[1]))
		for _, lit := range w[2:] {
			fmt.Fprintf(sb, " %d", lit)
		}
		return

	case OpDecorate:
		fmt.Fprintf(sb, " %s %s", ref(w[0]), enumName(decorationNames, w[1]))
		switch Decoration(w[1]) {
		case DecorationBuiltIn:
			fmt.Fprintf(sb, " %s", enumName(builtinNames, w[2]))
		case DecorationLinkageAttributes:
			str, n := decodeString(w[2:])
			linkage := map[uint32]string{0: "Export", 1: "Import"}
			fmt.Fprintf(sb, " %q %s", str, enumName(linkage, w[2+n]))
		default:
			for _, lit := range w[2:] {
				fmt.Fprintf(sb, " %d", lit)
			}
		}
		return

	case OpTypePointer:
		fmt.Fprintf(sb, " %s %s", enumName(storageClassNames, w[1]), ref(w[2]))
		return

	case OpVariable:
		fmt.Fprintf(sb, " %s %s", ref(w[0]), enumName(storageClassNames, w[2]))
		for _, init := range w[3:] {
			fmt.Fprintf(sb, " %s", ref(init))
		}
		return
	}

	// Generic path: the equality classification already knows which
	// words are ids and which are literals.
	kinds := operandKinds(inst)
	hasType, hasResult := resultLayout(inst.Opcode)

	for i, word := range w {
		// The result id is already printed on the left of the '='.
		if hasResult && ((hasType && i == 1) || (!hasType && i == 0)) {
			continue
		}
		if i < len(kinds) && kinds[i] {
			fmt.Fprintf(sb, " %s", ref(word))
		} else {
			fmt.Fprintf(sb, " %d", word)
		}
	}
}

func ref(id uint32) string {
	return fmt.Sprintf("%%%d", id)
}
