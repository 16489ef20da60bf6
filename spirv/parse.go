package spirv

import (
	"encoding/binary"

	"tlog.app/go/errors"
)

// ParsedInstruction is one decoded instruction: the opcode and its
// operand words (the encoded word count is implicit in len(Words)+1).
type ParsedInstruction struct {
	Opcode OpCode
	Words  []uint32
}

// ParsedFunction groups the instructions of one function body, from
// OpFunction through OpFunctionEnd inclusive.
type ParsedFunction struct {
	// ID is the result id of the OpFunction instruction.
	ID           uint32
	Instructions []ParsedInstruction
}

// ParsedModule is a decoded SPIR-V module.
type ParsedModule struct {
	Version uint32
	Bound   uint32

	// Globals holds every instruction before the first OpFunction:
	// capabilities through module-scope variables, in stream order.
	Globals []ParsedInstruction

	Functions []ParsedFunction
}

// Parse decodes a SPIR-V binary. Every length is validated before the
// corresponding read; truncated or malformed input is an error, never
// a panic or a silently short module.
func Parse(data []byte) (*ParsedModule, error) {
	if len(data)%4 != 0 {
		return nil, errors.New("binary length %d is not a multiple of 4", len(data))
	}
	if len(data) < 20 {
		return nil, errors.New("binary too short for header: %d bytes", len(data))
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}

	if words[0] != MagicNumber {
		return nil, errors.New("bad magic number 0x%08x", words[0])
	}

	module := &ParsedModule{
		Version: words[1],
		Bound:   words[3],
	}

	var current *ParsedFunction
	pos := 5
	for pos < len(words) {
		first := words[pos]
		wordCount := int(first >> 16)
		opcode := OpCode(first & 0xFFFF)

		if wordCount == 0 {
			return nil, errors.New("zero word count at word %d", pos)
		}
		if pos+wordCount > len(words) {
			return nil, errors.New("instruction at word %d overruns module: %d words declared, %d remain",
				pos, wordCount, len(words)-pos)
		}

		inst := ParsedInstruction{
			Opcode: opcode,
			Words:  words[pos+1 : pos+wordCount],
		}

		switch opcode {
		case OpFunction:
			if current != nil {
				return nil, errors.New("OpFunction at word %d inside unterminated function", pos)
			}
			if len(inst.Words) < 4 {
				return nil, errors.New("OpFunction at word %d too short", pos)
			}
			current = &ParsedFunction{ID: inst.Words[1]}
			current.Instructions = append(current.Instructions, inst)

		case OpFunctionEnd:
			if current == nil {
				return nil, errors.New("OpFunctionEnd at word %d outside a function", pos)
			}
			current.Instructions = append(current.Instructions, inst)
			module.Functions = append(module.Functions, *current)
			current = nil

		default:
			if current != nil {
				current.Instructions = append(current.Instructions, inst)
			} else {
				module.Globals = append(module.Globals, inst)
			}
		}

		pos += wordCount
	}

	if current != nil {
		return nil, errors.New("module ends inside function %%%d", current.ID)
	}

	return module, nil
}

// ResultID returns the result id of the instruction and whether it has
// one.
func (i ParsedInstruction) ResultID() (uint32, bool) {
	hasType, hasResult := resultLayout(i.Opcode)
	if !hasResult {
		return 0, false
	}
	idx := 0
	if hasType {
		idx = 1
	}
	if idx >= len(i.Words) {
		return 0, false
	}
	return i.Words[idx], true
}
