package translate

import (
	"github.com/akavasis/ZLUDA/ptx"
)

// fnAnalysis is the per-function pre-pass the generator runs before
// emitting code: register write counts, parameter provenance for the
// stateful-pointer scheme, extern shared usage and the call list.
type fnAnalysis struct {
	// writes counts writing instructions per register.
	writes map[string]int

	// paramOf maps a clean register (written exactly once, by ld.param
	// or by a copy of another clean register) to the kernel parameter
	// it holds. Such registers still alias their originating slot.
	paramOf map[string]string

	// loadedFrom maps any register that was ever the destination of an
	// ld.param to that parameter, regardless of cleanliness.
	loadedFrom map[string]string

	// pointerParams marks kernel parameters whose value reaches a
	// memory address base; these become pointer parameters.
	pointerParams map[string]bool

	// addrBaseRegs lists registers used as flat memory address bases,
	// resolved against provenance after the scan completes.
	addrBaseRegs []string

	usesExternShared bool
	callees          []string
}

// writesResult reports whether the opcode writes its first operand.
func writesResult(opcode string) bool {
	switch opcode {
	case "st", "bra", "bar", "ret", "call", "red", "trap":
		return false
	default:
		return true
	}
}

func (g *generator) analyze(fn *ptx.Function) *fnAnalysis {
	a := &fnAnalysis{
		writes:        make(map[string]int),
		paramOf:       make(map[string]string),
		loadedFrom:    make(map[string]string),
		pointerParams: make(map[string]bool),
	}

	scope := g.table.Scopes[fn.Name]

	isKernelParam := func(name string) bool {
		p, ok := scope.Params[name]
		return ok && fn.Kernel && p.Space == ptx.SpaceParam
	}

	// copies records mov edges between registers for the provenance
	// chain; candidates records direct ld.param destinations.
	type copyEdge struct{ dst, src string }
	var copies []copyEdge
	candidates := make(map[string]string)

	for _, stmt := range fn.Body {
		inst, ok := stmt.(*ptx.Instruction)
		if !ok {
			continue
		}

		if inst.Opcode == "call" {
			a.callees = append(a.callees, inst.CallFunc)
			if inst.CallRet != "" {
				a.writes[inst.CallRet]++
			}
			continue
		}

		if writesResult(inst.Opcode) && len(inst.Operands) > 0 {
			if reg, ok := inst.Operands[0].(*ptx.RegOperand); ok {
				a.writes[reg.Name]++
			}
		}

		switch inst.Opcode {
		case "ld":
			if inst.Space != ptx.SpaceParam || len(inst.Operands) != 2 {
				break
			}
			dst, dok := inst.Operands[0].(*ptx.RegOperand)
			addr, aok := inst.Operands[1].(*ptx.AddrOperand)
			if dok && aok && !addr.BaseIsReg && addr.Offset == 0 && isKernelParam(addr.Base) {
				candidates[dst.Name] = addr.Base
				a.loadedFrom[dst.Name] = addr.Base
			}

		case "mov":
			if len(inst.Operands) != 2 {
				break
			}
			dst, dok := inst.Operands[0].(*ptx.RegOperand)
			src, sok := inst.Operands[1].(*ptx.RegOperand)
			if dok && sok {
				copies = append(copies, copyEdge{dst.Name, src.Name})
			}
		}

		for _, op := range inst.Operands {
			a.scanOperand(g, scope, inst, op)
		}
	}

	// A register is clean when exactly one instruction writes it.
	for reg, param := range candidates {
		if a.writes[reg] == 1 {
			p, ok := scope.Params[param]
			if ok && p.Type.ByteSize() == 8 && p.Type.IsInteger() {
				a.paramOf[reg] = param
			}
		}
	}
	// Copy chains extend provenance; two passes cover chains of copies
	// in either textual order.
	for range [2]struct{}{} {
		for _, e := range copies {
			if param, ok := a.paramOf[e.src]; ok && a.writes[e.dst] == 1 {
				a.paramOf[e.dst] = param
				a.loadedFrom[e.dst] = param
			}
		}
	}

	for _, reg := range a.addrBaseRegs {
		if param, ok := a.loadedFrom[reg]; ok {
			a.pointerParams[param] = true
		}
	}

	return a
}

func (a *fnAnalysis) scanOperand(g *generator, scope *ptx.FuncScope, inst *ptx.Instruction, op ptx.Operand) {
	switch o := op.(type) {
	case *ptx.AddrOperand:
		switch inst.Opcode {
		case "ld", "st", "atom", "red":
		default:
			return
		}
		if o.BaseIsReg {
			if inst.Space == ptx.SpaceGlobal || inst.Space == ptx.SpaceGeneric || inst.Space == ptx.SpaceNone {
				a.addrBaseRegs = append(a.addrBaseRegs, o.Base)
			}
			return
		}
		if g.isExternShared(o.Base) {
			a.usesExternShared = true
		}

	case *ptx.SymOperand:
		if g.isExternShared(o.Name) {
			a.usesExternShared = true
		}
	}
}

// isExternShared reports whether name is a dynamically sized extern
// shared module variable.
func (g *generator) isExternShared(name string) bool {
	v, ok := g.table.Globals[name]
	return ok && v.Space == ptx.SpaceShared && v.Unsized
}

// propagateSharedUse iterates shared-memory usage over the call graph
// until fixed: a kernel using a shared-touching callee uses shared
// memory itself.
func propagateSharedUse(analyses map[string]*fnAnalysis) {
	changed := true
	for changed {
		changed = false
		for _, a := range analyses {
			if a.usesExternShared {
				continue
			}
			for _, callee := range a.callees {
				if ca, ok := analyses[callee]; ok && ca.usesExternShared {
					a.usesExternShared = true
					changed = true
					break
				}
			}
		}
	}
}
