package spirv

import (
	"tlog.app/go/errors"
)

// idMap tracks a bijection between the ids of two modules under
// comparison. The first pairing of two ids fixes the correspondence;
// any later contradiction in either direction makes the modules
// unequal, with no backtracking.
type idMap struct {
	fwd map[uint32]uint32
	rev map[uint32]uint32
}

func newIDMap() *idMap {
	return &idMap{
		fwd: make(map[uint32]uint32),
		rev: make(map[uint32]uint32),
	}
}

func (m *idMap) pair(a, b uint32) bool {
	if x, ok := m.fwd[a]; ok && x != b {
		return false
	}
	if y, ok := m.rev[b]; ok && y != a {
		return false
	}
	m.fwd[a] = b
	m.rev[b] = a
	return true
}

func (m *idMap) clone() *idMap {
	c := newIDMap()
	for k, v := range m.fwd {
		c.fwd[k] = v
	}
	for k, v := range m.rev {
		c.rev[k] = v
	}
	return c
}

// ModulesEqual reports whether two parsed modules are structurally
// equal: identical except for a consistent renaming of result ids.
// Global instructions share one renaming; each function pair extends
// it independently, so local ids in one function cannot constrain
// another. A nil error means equal.
func ModulesEqual(a, b *ParsedModule) error {
	m := newIDMap()

	if len(a.Globals) != len(b.Globals) {
		return errors.New("global instruction count differs: %d vs %d", len(a.Globals), len(b.Globals))
	}
	for i := range a.Globals {
		if err := instructionsEqual(m, a.Globals[i], b.Globals[i]); err != nil {
			return errors.Wrap(err, "global instruction %d", i)
		}
	}

	if len(a.Functions) != len(b.Functions) {
		return errors.New("function count differs: %d vs %d", len(a.Functions), len(b.Functions))
	}
	for i := range a.Functions {
		local := m.clone()
		if err := functionEqual(local, a.Functions[i], b.Functions[i]); err != nil {
			return errors.Wrap(err, "function %d", i)
		}
	}

	return nil
}

// FunctionsEqual reports whether two function bodies are structurally
// equal under a fresh id renaming. A nil error means equal.
func FunctionsEqual(a, b ParsedFunction) error {
	return functionEqual(newIDMap(), a, b)
}

func functionEqual(m *idMap, a, b ParsedFunction) error {
	if len(a.Instructions) != len(b.Instructions) {
		return errors.New("instruction count differs: %d vs %d", len(a.Instructions), len(b.Instructions))
	}
	for i := range a.Instructions {
		if err := instructionsEqual(m, a.Instructions[i], b.Instructions[i]); err != nil {
			return errors.Wrap(err, "instruction %d", i)
		}
	}
	return nil
}

func instructionsEqual(m *idMap, a, b ParsedInstruction) error {
	if a.Opcode != b.Opcode {
		return errors.New("opcode differs: %d vs %d", a.Opcode, b.Opcode)
	}
	if len(a.Words) != len(b.Words) {
		return errors.New("operand count differs on opcode %d: %d vs %d", a.Opcode, len(a.Words), len(b.Words))
	}

	kinds := operandKinds(a)
	if len(kinds) != len(a.Words) {
		return errors.New("opcode %d: malformed operand layout", a.Opcode)
	}

	for i := range a.Words {
		if kinds[i] {
			if !m.pair(a.Words[i], b.Words[i]) {
				return errors.New("opcode %d operand %d: id %%%d / %%%d breaks the established renaming",
					a.Opcode, i, a.Words[i], b.Words[i])
			}
		} else if a.Words[i] != b.Words[i] {
			return errors.New("opcode %d operand %d: literal differs: %d vs %d",
				a.Opcode, i, a.Words[i], b.Words[i])
		}
	}
	return nil
}

// resultLayout reports whether the opcode has a result type word and a
// result id word at the front of its operands.
func resultLayout(op OpCode) (hasType, hasResult bool) {
	switch op {
	case OpNop, OpSource, OpName, OpMemberName, OpExtension,
		OpMemoryModel, OpEntryPoint, OpExecutionMode, OpCapability,
		OpStore, OpCopyMemory, OpDecorate, OpMemberDecorate,
		OpControlBarrier, OpMemoryBarrier, OpAtomicStore,
		OpLoopMerge, OpSelectionMerge, OpBranch, OpBranchConditional,
		OpReturn, OpReturnValue, OpUnreachable, OpFunctionEnd:
		return false, false

	case OpString, OpExtInstImport, OpLabel,
		OpTypeVoid, OpTypeBool, OpTypeInt, OpTypeFloat, OpTypeVector,
		OpTypeArray, OpTypeStruct, OpTypePointer, OpTypeFunction:
		return false, true

	default:
		return true, true
	}
}

// operandKinds classifies every operand word of the instruction:
// true marks an id subject to renaming, false a literal compared
// verbatim. The leading result type and result id count as ids.
func operandKinds(inst ParsedInstruction) []bool {
	n := len(inst.Words)
	kinds := make([]bool, n)

	hasType, hasResult := resultLayout(inst.Opcode)
	base := 0
	if hasType {
		kinds[base] = true
		base++
	}
	if hasResult && base < n {
		kinds[base] = true
		base++
	}

	// rest classifies the operands after base: id by default, with
	// literal positions per opcode.
	markID := func(from int) {
		for i := base + from; i < n; i++ {
			kinds[i] = true
		}
	}
	markLit := func(positions ...int) {
		for _, p := range positions {
			if base+p < n {
				kinds[base+p] = false
			}
		}
	}

	switch inst.Opcode {
	case OpTypeInt, OpTypeFloat, OpConstant,
		OpMemoryModel, OpCapability, OpSource, OpString, OpExtInstImport, OpExtension:
		// all literal

	case OpTypeVector:
		markID(0)
		markLit(1)

	case OpTypePointer:
		markID(0)
		markLit(0)
		kinds[base+1] = true

	case OpTypeArray, OpTypeStruct, OpTypeFunction, OpConstantComposite:
		markID(0)

	case OpFunction:
		markID(0)
		markLit(0) // function control

	case OpVariable:
		markID(0)
		markLit(0) // storage class

	case OpLoad:
		markID(0)
		markLit(1, 2) // optional memory operands

	case OpStore:
		markID(0)
		markLit(2, 3)

	case OpExtInst:
		markID(0)
		markLit(1) // instruction number

	case OpName:
		kinds[0] = true // target; rest is the string literal

	case OpMemberName:
		kinds[0] = true

	case OpDecorate, OpMemberDecorate, OpExecutionMode:
		kinds[0] = true // target; decoration operands compared verbatim

	case OpEntryPoint:
		// literal execution model, function id, name string, interface ids
		kinds[1] = true
		for i := 2 + stringWords(inst.Words[2:]); i < n; i++ {
			kinds[i] = true
		}

	case OpCompositeExtract:
		markID(0)
		for i := base + 1; i < n; i++ {
			kinds[i] = false // literal indices
		}

	case OpCompositeInsert:
		markID(0)
		for i := base + 2; i < n; i++ {
			kinds[i] = false
		}

	case OpSelectionMerge:
		kinds[0] = true
		// selection control literal

	case OpLoopMerge:
		kinds[0] = true
		kinds[1] = true

	case OpBranch:
		kinds[0] = true

	case OpBranchConditional:
		kinds[0], kinds[1], kinds[2] = true, true, true
		// optional branch weights stay literal

	default:
		markID(0)
	}

	return kinds
}

// stringWords returns the number of words occupied by the
// null-terminated string at the start of words.
func stringWords(words []uint32) int {
	for i, w := range words {
		if w&0xFF000000 == 0 || w&0x00FF0000 == 0 || w&0x0000FF00 == 0 || w&0x000000FF == 0 {
			return i + 1
		}
	}
	return len(words)
}
