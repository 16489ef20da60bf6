package ptx

import (
	"fmt"
	"strconv"
)

// Special read-only registers and their allowed component suffixes.
// All four are three-component thread geometry registers.
var specialRegisters = map[string]bool{
	"%tid":    true,
	"%ntid":   true,
	"%ctaid":  true,
	"%nctaid": true,
}

// IsSpecialRegister reports whether name is a read-only thread
// geometry register (%tid, %ntid, %ctaid, %nctaid).
func IsSpecialRegister(name string) bool {
	return specialRegisters[name]
}

// FuncScope holds the resolved symbols of one function body.
type FuncScope struct {
	Fn *Function

	// Registers maps every register name to its declaration, with
	// bank declarations %r<N> expanded to %r0 .. %r(N-1).
	Registers map[string]*Variable

	// Params maps parameter names to their declarations, including
	// the return parameter of device functions.
	Params map[string]*Variable

	// Locals maps body-level .local/.shared/.param variables.
	Locals map[string]*Variable

	// Labels is the set of branch targets defined in the body.
	Labels map[string]bool
}

// SymbolTable is the result of resolving a parsed module.
type SymbolTable struct {
	Globals   map[string]*Variable
	Functions map[string]*Function
	Scopes    map[string]*FuncScope
}

// resolver walks the AST, builds the symbol table and accumulates
// semantic errors the same way the parser accumulates syntax errors.
type resolver struct {
	module *Module
	table  *SymbolTable
	errors SourceErrors
}

// Resolve checks a parsed module for semantic validity and returns its
// symbol table. Every use of a register, variable, label or function
// must refer to a declaration; spaces and types must be structurally
// valid. The table is only usable when the error list is empty.
func Resolve(module *Module) (*SymbolTable, SourceErrors) {
	r := &resolver{
		module: module,
		table: &SymbolTable{
			Globals:   make(map[string]*Variable),
			Functions: make(map[string]*Function),
			Scopes:    make(map[string]*FuncScope),
		},
	}

	for _, v := range module.Variables {
		r.moduleVariable(v)
	}
	for _, fn := range module.Functions {
		if prev, ok := r.table.Functions[fn.Name]; ok && !prev.Declared && !fn.Declared {
			r.errorf(fn.Span, "function %q redefined", fn.Name)
			continue
		}
		// A definition replaces an earlier declaration.
		if prev, ok := r.table.Functions[fn.Name]; !ok || prev.Declared {
			r.table.Functions[fn.Name] = fn
		}
	}
	for _, fn := range module.Functions {
		if !fn.Declared {
			r.function(fn)
		}
	}

	return r.table, r.errors
}

func (r *resolver) moduleVariable(v *Variable) {
	switch v.Space {
	case SpaceGlobal, SpaceShared, SpaceConst:
	default:
		r.errorf(v.Span, "module-scope variable %q must be .global, .shared or .const, not .%s", v.Name, v.Space)
	}
	if v.Space == SpaceShared && v.Unsized && !v.Extern {
		r.errorf(v.Span, "unsized shared variable %q must be .extern", v.Name)
	}
	if v.Type == TypeNone {
		r.errorf(v.Span, "variable %q has no type", v.Name)
	}
	if _, ok := r.table.Globals[v.Name]; ok {
		r.errorf(v.Span, "variable %q redeclared", v.Name)
		return
	}
	r.table.Globals[v.Name] = v
}

func (r *resolver) function(fn *Function) {
	scope := &FuncScope{
		Fn:        fn,
		Registers: make(map[string]*Variable),
		Params:    make(map[string]*Variable),
		Locals:    make(map[string]*Variable),
		Labels:    make(map[string]bool),
	}
	r.table.Scopes[fn.Name] = scope

	for _, p := range fn.Params {
		if p.Type == TypeNone {
			r.errorf(p.Span, "parameter %q has no type", p.Name)
		}
		if fn.Kernel && p.Space != SpaceParam {
			r.errorf(p.Span, "kernel parameter %q must be .param", p.Name)
		}
		if _, ok := scope.Params[p.Name]; ok {
			r.errorf(p.Span, "parameter %q redeclared", p.Name)
			continue
		}
		scope.Params[p.Name] = p
		// Register-space signature parameters read and write like body
		// registers.
		if p.Space == SpaceReg {
			scope.Registers[p.Name] = p
		}
	}
	if fn.Return != nil {
		scope.Params[fn.Return.Name] = fn.Return
		if fn.Return.Space == SpaceReg {
			scope.Registers[fn.Return.Name] = fn.Return
		}
	}

	// Declarations and labels first: PTX declarations are visible to
	// the whole body regardless of position.
	for _, stmt := range fn.Body {
		switch s := stmt.(type) {
		case *Variable:
			r.bodyVariable(scope, s)
		case *Label:
			if scope.Labels[s.Name] {
				r.errorf(s.Span, "label %q redefined", s.Name)
			}
			scope.Labels[s.Name] = true
		}
	}

	for _, stmt := range fn.Body {
		if inst, ok := stmt.(*Instruction); ok {
			r.instruction(scope, inst)
		}
	}
}

func (r *resolver) bodyVariable(scope *FuncScope, v *Variable) {
	if v.Type == TypeNone {
		r.errorf(v.Span, "variable %q has no type", v.Name)
	}

	switch v.Space {
	case SpaceReg:
		if v.Multiplicity > 0 {
			for i := uint32(0); i < v.Multiplicity; i++ {
				name := v.Name + strconv.FormatUint(uint64(i), 10)
				reg := *v
				reg.Name = name
				reg.Multiplicity = 0
				r.defineRegister(scope, &reg)
			}
			return
		}
		r.defineRegister(scope, v)

	case SpaceLocal, SpaceShared, SpaceParam:
		if _, ok := scope.Locals[v.Name]; ok {
			r.errorf(v.Span, "variable %q redeclared", v.Name)
			return
		}
		scope.Locals[v.Name] = v

	default:
		r.errorf(v.Span, "body variable %q cannot live in .%s space", v.Name, v.Space)
	}
}

func (r *resolver) defineRegister(scope *FuncScope, v *Variable) {
	if _, ok := scope.Registers[v.Name]; ok {
		r.errorf(v.Span, "register %q redeclared", v.Name)
		return
	}
	scope.Registers[v.Name] = v
}

func (r *resolver) instruction(scope *FuncScope, inst *Instruction) {
	if inst.Pred != nil {
		reg, ok := scope.Registers[inst.Pred.Reg]
		if !ok {
			r.errorf(inst.Span, "undeclared predicate register %q", inst.Pred.Reg)
		} else if reg.Type != TypePred {
			r.errorf(inst.Span, "predicate register %q is .%s, not .pred", inst.Pred.Reg, reg.Type)
		}
	}

	switch inst.Opcode {
	case "bra":
		if len(inst.Operands) != 1 {
			r.errorf(inst.Span, "bra takes one target operand")
			return
		}
		sym, ok := inst.Operands[0].(*SymOperand)
		if !ok {
			r.errorf(inst.Span, "bra target must be a label")
			return
		}
		if !scope.Labels[sym.Name] {
			r.errorf(inst.Span, "undefined label %q", sym.Name)
		}
		return

	case "call":
		callee, ok := r.table.Functions[inst.CallFunc]
		if !ok {
			r.errorf(inst.Span, "call to undeclared function %q", inst.CallFunc)
			return
		}
		if len(inst.CallArgs) != len(callee.Params) {
			r.errorf(inst.Span, "call to %q passes %d arguments, function takes %d",
				inst.CallFunc, len(inst.CallArgs), len(callee.Params))
		}
		if inst.CallRet != "" && callee.Return == nil {
			r.errorf(inst.Span, "call to %q expects a return value, function returns none", inst.CallFunc)
		}
		for _, arg := range inst.CallArgs {
			r.name(scope, inst, arg)
		}
		if inst.CallRet != "" {
			r.name(scope, inst, inst.CallRet)
		}
		return
	}

	if inst.Space != SpaceNone {
		switch inst.Opcode {
		case "ld", "st", "atom", "red", "cvta", "mov":
		default:
			r.errorf(inst.Span, "%q does not take a state space modifier", inst.Opcode)
		}
	}

	for _, op := range inst.Operands {
		r.operand(scope, inst, op)
	}
}

func (r *resolver) operand(scope *FuncScope, inst *Instruction, op Operand) {
	switch o := op.(type) {
	case *RegOperand:
		if IsSpecialRegister(o.Name) {
			if o.Component == "" {
				r.errorf(inst.Span, "special register %q requires a component (.x/.y/.z)", o.Name)
			}
			return
		}
		if o.Component != "" {
			r.errorf(inst.Span, "register %q is not a special register; component .%s invalid", o.Name, o.Component)
		}
		if _, ok := scope.Registers[o.Name]; !ok {
			r.errorf(inst.Span, "undeclared register %q", o.Name)
		}

	case *SymOperand:
		r.name(scope, inst, o.Name)

	case *AddrOperand:
		if o.BaseIsReg {
			if _, ok := scope.Registers[o.Base]; !ok {
				r.errorf(inst.Span, "undeclared register %q in address", o.Base)
			}
			return
		}
		r.name(scope, inst, o.Base)

	case *VecOperand:
		for _, elem := range o.Elems {
			r.operand(scope, inst, elem)
		}

	case *ImmOperand:
		// always valid
	}
}

// name resolves an identifier against function scope, then module
// scope: parameter, body variable, register, global, or function.
func (r *resolver) name(scope *FuncScope, inst *Instruction, name string) {
	if _, ok := scope.Params[name]; ok {
		return
	}
	if _, ok := scope.Locals[name]; ok {
		return
	}
	if _, ok := scope.Registers[name]; ok {
		return
	}
	if _, ok := r.table.Globals[name]; ok {
		return
	}
	if _, ok := r.table.Functions[name]; ok {
		return
	}
	r.errorf(inst.Span, "undeclared identifier %q", name)
}

func (r *resolver) errorf(span Span, format string, args ...interface{}) {
	r.errors.Add(&SourceError{
		Message: fmt.Sprintf(format, args...),
		Span:    span,
	})
}
