package translate

import (
	"strconv"

	"tlog.app/go/errors"

	"github.com/akavasis/ZLUDA/ptx"
	"github.com/akavasis/ZLUDA/spirv"
)

// funcGen generates the SPIR-V body of one PTX function.
//
// Every declared register becomes a Function-storage variable;
// instructions load their operands, compute, and store their result.
// Label-delimited PTX blocks map one to one onto SPIR-V blocks, with
// implicit fall-through branches inserted where PTX falls off a block.
type funcGen struct {
	g     *generator
	b     *spirv.ModuleBuilder
	decl  *funcDecl
	fn    *ptx.Function
	scope *ptx.FuncScope
	a     *fnAnalysis

	regVars   map[string]uint32 // register -> Function variable
	localVars map[string]uint32 // body/shadow variables
	paramIDs  map[string]uint32 // signature param -> OpFunctionParameter

	labels  map[string]uint32
	unwraps map[string]uint32 // param|type -> entry-block bitcast

	// pred is the active guard condition during masked lowering of a
	// predicated pure instruction; stores select against prior values.
	pred uint32

	terminated bool
}

func newFuncGen(g *generator, decl *funcDecl) *funcGen {
	return &funcGen{
		g:         g,
		b:         g.b,
		decl:      decl,
		fn:        decl.fn,
		scope:     g.table.Scopes[decl.fn.Name],
		a:         decl.analysis,
		regVars:   make(map[string]uint32),
		localVars: make(map[string]uint32),
		paramIDs:  make(map[string]uint32),
		labels:    make(map[string]uint32),
		unwraps:   make(map[string]uint32),
	}
}

func (f *funcGen) generate() error {
	b := f.b
	b.AddFunctionWithID(f.decl.id, f.decl.typeID, f.decl.retType, spirv.FunctionControlNone)
	if f.g.opts.DebugNames {
		b.AddName(f.decl.id, f.fn.Name)
	}

	for _, p := range f.decl.params {
		f.paramIDs[p.v.Name] = b.AddFunctionParameter(p.typeID)
	}
	var hiddenShared uint32
	if f.decl.hiddenSharedParam {
		u8 := f.g.scalarType(ptx.TypeB8)
		hiddenShared = b.AddFunctionParameter(b.AddTypePointer(spirv.StorageWorkgroup, u8))
	}

	for _, stmt := range f.fn.Body {
		if l, ok := stmt.(*ptx.Label); ok {
			f.labels[l.Name] = b.AllocID()
		}
	}

	b.AddLabel() // entry block
	f.terminated = false

	if err := f.emitLocals(); err != nil {
		return err
	}
	f.emitParamShadows()
	f.emitUnwraps()
	if hiddenShared != 0 {
		b.AddStore(f.g.sharedBase, hiddenShared)
	}

	for _, stmt := range f.fn.Body {
		switch s := stmt.(type) {
		case *ptx.Label:
			f.startBlock(f.labels[s.Name])
		case *ptx.Instruction:
			if err := f.instruction(s); err != nil {
				return err
			}
		}
	}

	if !f.terminated {
		f.emitReturn()
	}
	b.AddFunctionEnd()
	return nil
}

// emitLocals emits Function-storage variables for registers and body
// declarations, in declaration order. Body .shared declarations become
// module-scope Workgroup variables.
func (f *funcGen) emitLocals() error {
	b := f.b
	for _, stmt := range f.fn.Body {
		v, ok := stmt.(*ptx.Variable)
		if !ok {
			continue
		}
		switch v.Space {
		case ptx.SpaceReg:
			names := []string{v.Name}
			if v.Multiplicity > 0 {
				names = names[:0]
				for i := uint32(0); i < v.Multiplicity; i++ {
					names = append(names, v.Name+strconv.FormatUint(uint64(i), 10))
				}
			}
			elem := f.g.scalarType(v.Type)
			ptr := b.AddTypePointer(spirv.StorageFunction, elem)
			for _, name := range names {
				id := b.AddLocalVariable(ptr)
				f.regVars[name] = id
				if f.g.opts.DebugNames && v.Multiplicity == 0 {
					b.AddName(id, name)
				}
			}

		case ptx.SpaceLocal, ptx.SpaceParam:
			f.localVars[v.Name] = f.emitSizedLocal(v)

		case ptx.SpaceShared:
			elem := f.g.scalarType(v.Type)
			varType := elem
			if v.Count > 0 {
				u32 := f.g.scalarType(ptx.TypeU32)
				varType = b.AddTypeArray(elem, b.AddConstantUint32(u32, v.Count))
			}
			ptr := b.AddTypePointer(spirv.StorageWorkgroup, varType)
			id := b.AddGlobalVariable(ptr, spirv.StorageWorkgroup, 0)
			f.g.globals[v.Name] = &globalVar{v: v, id: id, storage: spirv.StorageWorkgroup, elemType: elem}

		default:
			return errors.New("body variable %v: unsupported space .%v", v.Name, v.Space)
		}
	}

	if f.fn.Return != nil {
		ret := f.emitSizedLocal(f.fn.Return)
		f.localVars[f.fn.Return.Name] = ret
		// A .reg-space return slot is also written through plain
		// register operands in the body.
		if f.fn.Return.Space == ptx.SpaceReg {
			f.regVars[f.fn.Return.Name] = ret
		}
	}
	return nil
}

func (f *funcGen) emitSizedLocal(v *ptx.Variable) uint32 {
	b := f.b
	elem := f.g.scalarType(v.Type)
	varType := elem
	if v.Count > 0 {
		u32 := f.g.scalarType(ptx.TypeU32)
		varType = b.AddTypeArray(elem, b.AddConstantUint32(u32, v.Count))
	}
	ptr := b.AddTypePointer(spirv.StorageFunction, varType)
	id := b.AddLocalVariable(ptr)
	if f.g.opts.DebugNames {
		b.AddName(id, v.Name)
	}
	return id
}

// emitParamShadows spills value parameters into Function-storage
// slots. Param-space parameters read back through ld.param like body
// .param variables; register-space parameters of device functions read
// and write like declared registers. Pointer parameters stay raw;
// ld.param wraps them.
func (f *funcGen) emitParamShadows() {
	b := f.b
	for _, p := range f.decl.params {
		if p.pointer {
			continue
		}
		ptr := b.AddTypePointer(spirv.StorageFunction, p.typeID)
		shadow := b.AddLocalVariable(ptr)
		if f.g.opts.DebugNames {
			b.AddName(shadow, p.v.Name)
		}
		b.AddStore(shadow, f.paramIDs[p.v.Name])
		if p.v.Space == ptx.SpaceReg {
			f.regVars[p.v.Name] = shadow
		} else {
			f.localVars[p.v.Name] = shadow
		}
	}
}

// emitUnwraps pre-emits the cached pointer-parameter unwraps in the
// entry block: one OpBitcast per (parameter, access type) pair used by
// the body, so every later use aliases the original slot.
func (f *funcGen) emitUnwraps() {
	if f.a == nil {
		return
	}
	for _, stmt := range f.fn.Body {
		inst, ok := stmt.(*ptx.Instruction)
		if !ok {
			continue
		}
		switch inst.Opcode {
		case "ld", "st", "atom", "red":
		default:
			continue
		}
		for _, op := range inst.Operands {
			addr, ok := op.(*ptx.AddrOperand)
			if !ok || !addr.BaseIsReg || addr.Offset != 0 {
				continue
			}
			param, ok := f.a.paramOf[addr.Base]
			if !ok || !f.isPointerParam(param) {
				continue
			}
			elem := f.accessType(inst)
			key := param + "|" + strconv.FormatUint(uint64(elem), 10)
			if _, done := f.unwraps[key]; done {
				continue
			}
			ptr := f.b.AddTypePointer(spirv.StorageCrossWorkgroup, elem)
			f.unwraps[key] = f.b.AddUnaryOp(spirv.OpBitcast, ptr, f.paramIDs[param])
		}
	}
}

func (f *funcGen) isPointerParam(name string) bool {
	for _, p := range f.decl.params {
		if p.v.Name == name {
			return p.pointer
		}
	}
	return false
}

// accessType returns the SPIR-V element type a memory instruction
// moves: the instruction scalar type, vectorized for .v2/.v4.
func (f *funcGen) accessType(inst *ptx.Instruction) uint32 {
	elem := f.g.scalarType(inst.Type)
	if inst.Mod.VecWidth > 0 {
		elem = f.b.AddTypeVector(elem, uint32(inst.Mod.VecWidth))
	}
	return elem
}

// startBlock terminates the current block with an implicit
// fall-through branch if needed, then opens the labelled block.
func (f *funcGen) startBlock(id uint32) {
	if !f.terminated {
		f.b.AddBranch(id)
	}
	f.b.AddLabelWithID(id)
	f.terminated = false
}

func (f *funcGen) emitReturn() {
	if !f.fn.Kernel && f.fn.Return != nil {
		ret := f.fn.Return
		val := f.b.AddLoad(f.g.scalarType(ret.Type), f.localVars[ret.Name])
		f.b.AddReturnValue(val)
	} else {
		f.b.AddReturn()
	}
	f.terminated = true
}

// instruction lowers one statement, applying the predication scheme:
// branches become conditional branches, pure register operations are
// masked with OpSelect, side-effecting operations get a structured
// selection around them.
func (f *funcGen) instruction(inst *ptx.Instruction) error {
	if f.terminated {
		// Unreachable code between a terminator and the next label
		// still needs a block.
		f.b.AddLabel()
		f.terminated = false
	}

	if inst.Pred == nil {
		return f.lower(inst)
	}

	cond, err := f.predCondition(inst.Pred)
	if err != nil {
		return err
	}

	if inst.Opcode == "bra" {
		target, err := f.branchTarget(inst)
		if err != nil {
			return err
		}
		fall := f.b.AllocID()
		f.b.AddBranchConditional(cond, target, fall)
		f.b.AddLabelWithID(fall)
		return nil
	}

	if f.isPure(inst) {
		f.pred = cond
		err := f.lower(inst)
		f.pred = 0
		return err
	}

	trueLabel := f.b.AllocID()
	merge := f.b.AllocID()
	f.b.AddSelectionMerge(merge, spirv.SelectionControlNone)
	f.b.AddBranchConditional(cond, trueLabel, merge)
	f.b.AddLabelWithID(trueLabel)
	f.terminated = false
	if err := f.lower(inst); err != nil {
		return err
	}
	if !f.terminated {
		f.b.AddBranch(merge)
	}
	f.b.AddLabelWithID(merge)
	f.terminated = false
	return nil
}

func (f *funcGen) predCondition(pred *ptx.Predicate) (uint32, error) {
	v, ok := f.regVars[pred.Reg]
	if !ok {
		return 0, errors.New("undeclared predicate register %v", pred.Reg)
	}
	boolType := f.b.AddTypeBool()
	cond := f.b.AddLoad(boolType, v)
	if pred.Negated {
		cond = f.b.AddUnaryOp(spirv.OpLogicalNot, boolType, cond)
	}
	return cond, nil
}

func (f *funcGen) branchTarget(inst *ptx.Instruction) (uint32, error) {
	sym, ok := inst.Operands[0].(*ptx.SymOperand)
	if !ok {
		return 0, errors.New("bra target is not a label")
	}
	id, ok := f.labels[sym.Name]
	if !ok {
		return 0, errors.New("unresolved branch target %v", sym.Name)
	}
	return id, nil
}

// isPure reports whether the instruction only reads and writes
// registers; such instructions can be predicated by masking instead of
// branching.
func (f *funcGen) isPure(inst *ptx.Instruction) bool {
	switch inst.Opcode {
	case "ld", "st", "atom", "red", "call", "ret", "bar", "bra", "trap":
		return false
	default:
		return writesResult(inst.Opcode)
	}
}

// storeDest writes a computed value to the destination register,
// masking against the prior value when the instruction is predicated.
func (f *funcGen) storeDest(dst *ptx.RegOperand, val uint32) error {
	v, ok := f.regVars[dst.Name]
	if !ok {
		return errors.New("undeclared register %v", dst.Name)
	}
	if f.pred != 0 {
		reg := f.scope.Registers[dst.Name]
		old := f.b.AddLoad(f.g.scalarType(reg.Type), v)
		val = f.b.AddSelect(f.g.scalarType(reg.Type), f.pred, val, old)
	}
	f.b.AddStore(v, val)
	return nil
}

func (f *funcGen) destReg(inst *ptx.Instruction) (*ptx.RegOperand, error) {
	if len(inst.Operands) == 0 {
		return nil, errors.New("%v: missing destination", inst.Opcode)
	}
	dst, ok := inst.Operands[0].(*ptx.RegOperand)
	if !ok {
		return nil, errors.New("%v: destination is not a register", inst.Opcode)
	}
	return dst, nil
}

// regType returns the declared scalar type of a register.
func (f *funcGen) regType(name string) (ptx.ScalarType, error) {
	reg, ok := f.scope.Registers[name]
	if !ok {
		return ptx.TypeNone, errors.New("undeclared register %v", name)
	}
	return reg.Type, nil
}

// loadOperand produces the operand value as the given scalar type,
// reconciling register width and representation differences.
func (f *funcGen) loadOperand(op ptx.Operand, t ptx.ScalarType) (uint32, error) {
	switch o := op.(type) {
	case *ptx.RegOperand:
		if ptx.IsSpecialRegister(o.Name) {
			return f.readBuiltin(o, t)
		}
		declared, err := f.regType(o.Name)
		if err != nil {
			return 0, err
		}
		val := f.b.AddLoad(f.g.scalarType(declared), f.regVars[o.Name])
		return f.convertValue(val, declared, t)

	case *ptx.ImmOperand:
		return f.immediate(o, t)

	case *ptx.SymOperand:
		// Address of a module variable, flattened to an integer.
		gv, ok := f.g.globals[o.Name]
		if !ok {
			return 0, errors.New("undeclared symbol %v", o.Name)
		}
		u64 := f.g.scalarType(ptx.TypeU64)
		src := gv.id
		if f.g.isExternShared(o.Name) {
			src = f.b.AddLoad(f.g.sharedBaseType, gv.id)
		}
		val := f.b.AddUnaryOp(spirv.OpConvertPtrToU, u64, src)
		return f.convertValue(val, ptx.TypeU64, t)

	default:
		return 0, errors.New("unsupported operand form")
	}
}

// convertValue reconciles a value of one scalar type with the type an
// instruction expects: same-size integers share a type, same-size
// int/float pairs bitcast, and width differences convert by the
// signedness of the target.
func (f *funcGen) convertValue(val uint32, from, to ptx.ScalarType) (uint32, error) {
	if from == to {
		return val, nil
	}
	fromID := f.g.scalarType(from)
	toID := f.g.scalarType(to)
	if fromID == toID {
		return val, nil
	}
	if from == ptx.TypePred || to == ptx.TypePred {
		return 0, errors.New("predicate register used as %v value", to)
	}
	if from.ByteSize() == to.ByteSize() {
		return f.b.AddUnaryOp(spirv.OpBitcast, toID, val), nil
	}
	switch {
	case from.IsFloat() && to.IsFloat():
		return f.b.AddUnaryOp(spirv.OpFConvert, toID, val), nil
	case from.IsFloat() || to.IsFloat():
		return 0, errors.New("implicit conversion between %v and %v", from, to)
	case to.IsSigned():
		return f.b.AddUnaryOp(spirv.OpSConvert, toID, val), nil
	default:
		return f.b.AddUnaryOp(spirv.OpUConvert, toID, val), nil
	}
}

func (f *funcGen) immediate(imm *ptx.ImmOperand, t ptx.ScalarType) (uint32, error) {
	typeID := f.g.scalarType(t)
	switch {
	case t == ptx.TypePred:
		return f.b.AddConstantBool(typeID, imm.Int != 0), nil
	case t == ptx.TypeF32:
		v := imm.Float
		if !imm.IsFloat {
			v = float64(imm.Int)
		}
		return f.b.AddConstantFloat32(typeID, float32(v)), nil
	case t == ptx.TypeF64:
		v := imm.Float
		if !imm.IsFloat {
			v = float64(imm.Int)
		}
		return f.b.AddConstantFloat64(typeID, v), nil
	case t == ptx.TypeF16:
		return 0, errors.New("f16 immediates are not supported")
	case imm.IsFloat:
		return 0, errors.New("float immediate in %v context", t)
	case t.ByteSize() == 8:
		return f.b.AddConstantUint64(typeID, uint64(imm.Int)), nil
	default:
		mask := uint64(1)<<(t.ByteSize()*8) - 1
		return f.b.AddConstantUint32(typeID, uint32(uint64(imm.Int)&mask)), nil
	}
}

var builtinOfSreg = map[string]spirv.BuiltIn{
	"%tid":    spirv.BuiltInLocalInvocationId,
	"%ntid":   spirv.BuiltInWorkgroupSize,
	"%ctaid":  spirv.BuiltInWorkgroupId,
	"%nctaid": spirv.BuiltInNumWorkgroups,
}

// readBuiltin lowers a special register component read: access chain
// into the three-vector builtin input, load, narrow to the requested
// width.
func (f *funcGen) readBuiltin(o *ptx.RegOperand, t ptx.ScalarType) (uint32, error) {
	builtin, ok := builtinOfSreg[o.Name]
	if !ok {
		return 0, errors.New("unsupported special register %v", o.Name)
	}
	var comp uint32
	switch o.Component {
	case "x":
		comp = 0
	case "y":
		comp = 1
	case "z":
		comp = 2
	default:
		return 0, errors.New("special register %v needs a component", o.Name)
	}

	varID := f.g.builtinVar(builtin)
	f.addInterface(varID)

	u64 := f.g.scalarType(ptx.TypeU64)
	u32 := f.g.scalarType(ptx.TypeU32)
	ptr := f.b.AddTypePointer(spirv.StorageInput, u64)
	idx := f.b.AddConstantUint32(u32, comp)
	ac := f.b.AddAccessChain(ptr, varID, idx)
	val := f.b.AddLoad(u64, ac)
	if t.ByteSize() == 8 {
		return val, nil
	}
	if t.IsFloat() || t == ptx.TypePred {
		return 0, errors.New("special register read into %v register", t)
	}
	return f.b.AddUnaryOp(spirv.OpUConvert, f.g.scalarType(t), val), nil
}

func (f *funcGen) addInterface(varID uint32) {
	for _, id := range f.decl.interfaces {
		if id == varID {
			return
		}
	}
	f.decl.interfaces = append(f.decl.interfaces, varID)
}

// resolveAddress produces the typed pointer a memory instruction
// dereferences. Clean parameter-derived registers with zero offset use
// the cached unwrap; everything else converts the flat integer value.
func (f *funcGen) resolveAddress(inst *ptx.Instruction, addr *ptx.AddrOperand, elem uint32, elemSize uint32) (uint32, error) {
	if !addr.BaseIsReg {
		return f.resolveVarAddress(inst, addr, elem, elemSize)
	}

	if param, ok := f.a.paramOf[addr.Base]; ok && addr.Offset == 0 && f.isPointerParam(param) {
		key := param + "|" + strconv.FormatUint(uint64(elem), 10)
		if ptr, ok := f.unwraps[key]; ok {
			return ptr, nil
		}
	}

	storage := spirv.StorageCrossWorkgroup
	switch inst.Space {
	case ptx.SpaceGlobal, ptx.SpaceGeneric, ptx.SpaceNone:
	case ptx.SpaceShared:
		storage = spirv.StorageWorkgroup
	default:
		return 0, errors.New("%v.%v: register-based address unsupported in this space", inst.Opcode, inst.Space)
	}

	declared, err := f.regType(addr.Base)
	if err != nil {
		return 0, err
	}
	if !declared.IsInteger() {
		return 0, errors.New("address base %v is not an integer register", addr.Base)
	}
	val := f.b.AddLoad(f.g.scalarType(declared), f.regVars[addr.Base])
	if declared.ByteSize() != 8 {
		// 32-bit address registers widen before pointer conversion.
		val, err = f.convertValue(val, declared, ptx.TypeU64)
		if err != nil {
			return 0, err
		}
	}
	if addr.Offset != 0 {
		u64 := f.g.scalarType(ptx.TypeU64)
		off := f.b.AddConstantUint64(u64, uint64(addr.Offset))
		val = f.b.AddBinaryOp(spirv.OpIAdd, u64, val, off)
	}
	ptr := f.b.AddTypePointer(storage, elem)
	return f.b.AddUnaryOp(spirv.OpConvertUToPtr, ptr, val), nil
}

// resolveVarAddress addresses a named variable: body declarations and
// parameter shadows in Function storage, module variables in their
// own storage class.
func (f *funcGen) resolveVarAddress(inst *ptx.Instruction, addr *ptx.AddrOperand, elem uint32, elemSize uint32) (uint32, error) {
	name := addr.Base

	if id, ok := f.localVars[name]; ok {
		return f.offsetPointer(spirv.StorageFunction, id, elem, elemSize, addr.Offset)
	}

	gv, ok := f.g.globals[name]
	if !ok {
		return 0, errors.New("undeclared variable %v in address", name)
	}
	if f.g.isExternShared(name) {
		base := f.b.AddLoad(f.g.sharedBaseType, gv.id)
		ptr := f.b.AddTypePointer(spirv.StorageWorkgroup, elem)
		cast := f.b.AddUnaryOp(spirv.OpBitcast, ptr, base)
		return f.elementOffset(ptr, cast, elemSize, addr.Offset)
	}
	return f.offsetPointer(gv.storage, gv.id, elem, elemSize, addr.Offset)
}

// offsetPointer reinterprets a variable pointer as a pointer to the
// access element type and applies the byte offset.
func (f *funcGen) offsetPointer(storage spirv.StorageClass, varID uint32, elem uint32, elemSize uint32, offset int64) (uint32, error) {
	ptr := f.b.AddTypePointer(storage, elem)
	cast := f.b.AddUnaryOp(spirv.OpBitcast, ptr, varID)
	return f.elementOffset(ptr, cast, elemSize, offset)
}

func (f *funcGen) elementOffset(ptrType, ptr uint32, elemSize uint32, offset int64) (uint32, error) {
	if offset == 0 {
		return ptr, nil
	}
	if elemSize == 0 || offset%int64(elemSize) != 0 {
		return 0, errors.New("address offset %d not divisible by access size %d", offset, elemSize)
	}
	u64 := f.g.scalarType(ptx.TypeU64)
	idx := f.b.AddConstantUint64(u64, uint64(offset/int64(elemSize)))
	return f.b.AddPtrAccessChain(ptrType, ptr, idx), nil
}
