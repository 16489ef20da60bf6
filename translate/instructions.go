package translate

import (
	"tlog.app/go/errors"

	"github.com/akavasis/ZLUDA/ptx"
	"github.com/akavasis/ZLUDA/spirv"
)

// lower emits the SPIR-V for one instruction. Unsupported opcodes and
// space/type combinations are terminal errors; nothing is emitted
// best-effort.
func (f *funcGen) lower(inst *ptx.Instruction) error {
	switch inst.Opcode {
	case "ld":
		return f.lowerLd(inst)
	case "st":
		return f.lowerSt(inst)
	case "mov":
		return f.lowerMov(inst)
	case "add", "sub", "mul", "div", "rem", "min", "max":
		return f.lowerArith(inst)
	case "mad", "fma":
		return f.lowerMad(inst)
	case "neg", "abs", "not", "cnot":
		return f.lowerUnary(inst)
	case "and", "or", "xor":
		return f.lowerBitwise(inst)
	case "shl", "shr":
		return f.lowerShift(inst)
	case "setp":
		return f.lowerSetp(inst)
	case "selp":
		return f.lowerSelp(inst)
	case "slct":
		return f.lowerSlct(inst)
	case "cvt":
		return f.lowerCvt(inst)
	case "cvta":
		return f.lowerCvta(inst)
	case "rcp", "sqrt", "rsqrt", "sin", "cos", "lg2", "ex2":
		return f.lowerMath(inst)
	case "clz", "popc", "brev":
		return f.lowerBitIntrinsic(inst)
	case "bfe":
		return f.lowerBfe(inst)
	case "atom":
		return f.lowerAtom(inst, true)
	case "red":
		return f.lowerAtom(inst, false)
	case "bar":
		return f.lowerBar(inst)
	case "bra":
		target, err := f.branchTarget(inst)
		if err != nil {
			return err
		}
		f.b.AddBranch(target)
		f.terminated = true
		return nil
	case "ret":
		f.emitReturn()
		return nil
	case "call":
		return f.lowerCall(inst)
	case "trap":
		f.b.AddUnreachable()
		f.terminated = true
		return nil
	default:
		return errors.New("unsupported opcode %v", inst.Opcode)
	}
}

func (f *funcGen) lowerLd(inst *ptx.Instruction) error {
	if len(inst.Operands) != 2 {
		return errors.New("ld: expected destination and address")
	}
	addr, ok := inst.Operands[1].(*ptx.AddrOperand)
	if !ok {
		return errors.New("ld: source is not an address")
	}

	// ld.param of a kernel memory-handle parameter wraps the pointer
	// into the flat integer domain; provenance keeps the slot identity
	// for later unwrapping. An offset addresses into the slot, not the
	// handle, so only the whole-slot read wraps.
	if inst.Space == ptx.SpaceParam && !addr.BaseIsReg && addr.Offset == 0 {
		if paramID, ok := f.paramIDs[addr.Base]; ok && f.isPointerParam(addr.Base) {
			dst, err := f.destReg(inst)
			if err != nil {
				return err
			}
			t, err := f.regType(dst.Name)
			if err != nil {
				return err
			}
			u64 := f.g.scalarType(ptx.TypeU64)
			val := f.b.AddUnaryOp(spirv.OpConvertPtrToU, u64, paramID)
			val, err = f.convertValue(val, ptx.TypeU64, t)
			if err != nil {
				return err
			}
			return f.storeDest(dst, val)
		}
	}

	elem := f.accessType(inst)
	ptr, err := f.resolveAddress(inst, addr, elem, inst.Type.ByteSize())
	if err != nil {
		return err
	}
	val := f.b.AddLoad(elem, ptr)

	if inst.Mod.VecWidth > 0 {
		vec, ok := inst.Operands[0].(*ptx.VecOperand)
		if !ok || len(vec.Elems) != int(inst.Mod.VecWidth) {
			return errors.New("ld.v%d: malformed destination pack", inst.Mod.VecWidth)
		}
		scalar := f.g.scalarType(inst.Type)
		for i, e := range vec.Elems {
			dst, ok := e.(*ptx.RegOperand)
			if !ok {
				return errors.New("ld.v%d: destination element is not a register", inst.Mod.VecWidth)
			}
			comp := f.b.AddCompositeExtract(scalar, val, uint32(i))
			if err := f.storeDest(dst, comp); err != nil {
				return err
			}
		}
		return nil
	}

	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	t, err := f.regType(dst.Name)
	if err != nil {
		return err
	}
	val, err = f.convertValue(val, inst.Type, t)
	if err != nil {
		return err
	}
	return f.storeDest(dst, val)
}

func (f *funcGen) lowerSt(inst *ptx.Instruction) error {
	if len(inst.Operands) != 2 {
		return errors.New("st: expected address and source")
	}
	addr, ok := inst.Operands[0].(*ptx.AddrOperand)
	if !ok {
		return errors.New("st: destination is not an address")
	}

	elem := f.accessType(inst)
	ptr, err := f.resolveAddress(inst, addr, elem, inst.Type.ByteSize())
	if err != nil {
		return err
	}

	if inst.Mod.VecWidth > 0 {
		vec, ok := inst.Operands[1].(*ptx.VecOperand)
		if !ok || len(vec.Elems) != int(inst.Mod.VecWidth) {
			return errors.New("st.v%d: malformed source pack", inst.Mod.VecWidth)
		}
		parts := make([]uint32, len(vec.Elems))
		for i, e := range vec.Elems {
			val, err := f.loadOperand(e, inst.Type)
			if err != nil {
				return err
			}
			parts[i] = val
		}
		f.b.AddStore(ptr, f.b.AddCompositeConstruct(elem, parts...))
		return nil
	}

	val, err := f.loadOperand(inst.Operands[1], inst.Type)
	if err != nil {
		return err
	}
	f.b.AddStore(ptr, val)
	return nil
}

func (f *funcGen) lowerMov(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	t, err := f.regType(dst.Name)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 2 {
		return errors.New("mov: expected two operands")
	}
	val, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	return f.storeDest(dst, val)
}

// countDenorm records the denormal behavior of an f32 arithmetic
// instruction; the tallies pick the kernel's float-control mode.
func (f *funcGen) countDenorm(inst *ptx.Instruction) {
	if inst.Type != ptx.TypeF32 {
		return
	}
	if inst.Mod.Ftz {
		f.decl.ftzOps++
	} else {
		f.decl.preserveOps++
	}
}

func (f *funcGen) lowerArith(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 3 {
		return errors.New("%v: expected three operands", inst.Opcode)
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	b, err := f.loadOperand(inst.Operands[2], t)
	if err != nil {
		return err
	}
	typeID := f.g.scalarType(t)

	if t.IsFloat() {
		f.countDenorm(inst)
		switch inst.Opcode {
		case "add":
			return f.storeArith(inst, dst, f.b.AddBinaryOp(spirv.OpFAdd, typeID, a, b))
		case "sub":
			return f.storeArith(inst, dst, f.b.AddBinaryOp(spirv.OpFSub, typeID, a, b))
		case "mul":
			return f.storeArith(inst, dst, f.b.AddBinaryOp(spirv.OpFMul, typeID, a, b))
		case "div":
			if inst.Mod.Approx {
				return f.storeArith(inst, dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLNativeDivide, a, b))
			}
			if t == ptx.TypeF32 {
				f.g.crDivSqrt = true
			}
			return f.storeArith(inst, dst, f.b.AddBinaryOp(spirv.OpFDiv, typeID, a, b))
		case "min":
			return f.storeArith(inst, dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLFmin, a, b))
		case "max":
			return f.storeArith(inst, dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLFmax, a, b))
		case "rem":
			return errors.New("rem is not defined for float types")
		}
	}

	switch inst.Opcode {
	case "add":
		return f.storeDest(dst, f.b.AddBinaryOp(spirv.OpIAdd, typeID, a, b))
	case "sub":
		return f.storeDest(dst, f.b.AddBinaryOp(spirv.OpISub, typeID, a, b))
	case "mul":
		return f.lowerIntMul(inst, dst, a, b)
	case "div":
		op := spirv.OpUDiv
		if t.IsSigned() {
			op = spirv.OpSDiv
		}
		return f.storeDest(dst, f.b.AddBinaryOp(op, typeID, a, b))
	case "rem":
		op := spirv.OpUMod
		if t.IsSigned() {
			op = spirv.OpSRem
		}
		return f.storeDest(dst, f.b.AddBinaryOp(op, typeID, a, b))
	case "min":
		ext := spirv.CLUMin
		if t.IsSigned() {
			ext = spirv.CLSMin
		}
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, ext, a, b))
	case "max":
		ext := spirv.CLUMax
		if t.IsSigned() {
			ext = spirv.CLSMax
		}
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, ext, a, b))
	}
	return errors.New("unsupported arithmetic %v.%v", inst.Opcode, t)
}

// storeArith applies the .sat clamp of float arithmetic before the
// destination store.
func (f *funcGen) storeArith(inst *ptx.Instruction, dst *ptx.RegOperand, val uint32) error {
	if inst.Mod.Sat && inst.Type.IsFloat() {
		typeID := f.g.scalarType(inst.Type)
		var zero, one uint32
		if inst.Type == ptx.TypeF64 {
			zero = f.b.AddConstantFloat64(typeID, 0)
			one = f.b.AddConstantFloat64(typeID, 1)
		} else {
			zero = f.b.AddConstantFloat32(typeID, 0)
			one = f.b.AddConstantFloat32(typeID, 1)
		}
		val = f.b.AddExtInst(typeID, f.g.clExt, spirv.CLFmin, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLFmax, val, zero), one)
	}
	return f.storeDest(dst, val)
}

func (f *funcGen) lowerIntMul(inst *ptx.Instruction, dst *ptx.RegOperand, a, b uint32) error {
	t := inst.Type
	typeID := f.g.scalarType(t)
	switch inst.Mod.Mul {
	case ptx.MulLo:
		return f.storeDest(dst, f.b.AddBinaryOp(spirv.OpIMul, typeID, a, b))
	case ptx.MulHi:
		ext := spirv.CLUMulHi
		if t.IsSigned() {
			ext = spirv.CLSMulHi
		}
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, ext, a, b))
	case ptx.MulWide:
		wide, err := widenType(t)
		if err != nil {
			return err
		}
		wideID := f.g.scalarType(wide)
		op := spirv.OpUConvert
		if t.IsSigned() {
			op = spirv.OpSConvert
		}
		wa := f.b.AddUnaryOp(op, wideID, a)
		wb := f.b.AddUnaryOp(op, wideID, b)
		return f.storeDest(dst, f.b.AddBinaryOp(spirv.OpIMul, wideID, wa, wb))
	}
	return errors.New("unsupported mul mode")
}

func widenType(t ptx.ScalarType) (ptx.ScalarType, error) {
	switch t {
	case ptx.TypeS16:
		return ptx.TypeS32, nil
	case ptx.TypeU16, ptx.TypeB16:
		return ptx.TypeU32, nil
	case ptx.TypeS32:
		return ptx.TypeS64, nil
	case ptx.TypeU32, ptx.TypeB32:
		return ptx.TypeU64, nil
	default:
		return ptx.TypeNone, errors.New("mul.wide is not defined for %v", t)
	}
}

func (f *funcGen) lowerMad(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 4 {
		return errors.New("%v: expected four operands", inst.Opcode)
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	b, err := f.loadOperand(inst.Operands[2], t)
	if err != nil {
		return err
	}
	c, err := f.loadOperand(inst.Operands[3], t)
	if err != nil {
		return err
	}
	typeID := f.g.scalarType(t)

	if t.IsFloat() {
		f.countDenorm(inst)
		return f.storeArith(inst, dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLFma, a, b, c))
	}

	switch inst.Mod.Mul {
	case ptx.MulLo:
		mul := f.b.AddBinaryOp(spirv.OpIMul, typeID, a, b)
		return f.storeDest(dst, f.b.AddBinaryOp(spirv.OpIAdd, typeID, mul, c))
	case ptx.MulWide:
		wide, err := widenType(t)
		if err != nil {
			return err
		}
		wideID := f.g.scalarType(wide)
		op := spirv.OpUConvert
		if t.IsSigned() {
			op = spirv.OpSConvert
		}
		wa := f.b.AddUnaryOp(op, wideID, a)
		wb := f.b.AddUnaryOp(op, wideID, b)
		mul := f.b.AddBinaryOp(spirv.OpIMul, wideID, wa, wb)
		return f.storeDest(dst, f.b.AddBinaryOp(spirv.OpIAdd, wideID, mul, c))
	}
	return errors.New("unsupported mad mode")
}

func (f *funcGen) lowerUnary(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 2 {
		return errors.New("%v: expected two operands", inst.Opcode)
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	typeID := f.g.scalarType(t)

	switch inst.Opcode {
	case "neg":
		op := spirv.OpSNegate
		if t.IsFloat() {
			op = spirv.OpFNegate
		}
		return f.storeDest(dst, f.b.AddUnaryOp(op, typeID, a))
	case "abs":
		ext := spirv.CLSAbs
		if t.IsFloat() {
			ext = spirv.CLFabs
		}
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, ext, a))
	case "not":
		if t == ptx.TypePred {
			return f.storeDest(dst, f.b.AddUnaryOp(spirv.OpLogicalNot, typeID, a))
		}
		return f.storeDest(dst, f.b.AddUnaryOp(spirv.OpNot, typeID, a))
	case "cnot":
		var zero, one uint32
		if t.ByteSize() == 8 {
			zero = f.b.AddConstantUint64(typeID, 0)
			one = f.b.AddConstantUint64(typeID, 1)
		} else {
			zero = f.b.AddConstantUint32(typeID, 0)
			one = f.b.AddConstantUint32(typeID, 1)
		}
		isZero := f.b.AddBinaryOp(spirv.OpIEqual, f.b.AddTypeBool(), a, zero)
		return f.storeDest(dst, f.b.AddSelect(typeID, isZero, one, zero))
	}
	return errors.New("unsupported unary %v", inst.Opcode)
}

func (f *funcGen) lowerBitwise(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 3 {
		return errors.New("%v: expected three operands", inst.Opcode)
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	b, err := f.loadOperand(inst.Operands[2], t)
	if err != nil {
		return err
	}
	typeID := f.g.scalarType(t)

	var op spirv.OpCode
	if t == ptx.TypePred {
		switch inst.Opcode {
		case "and":
			op = spirv.OpLogicalAnd
		case "or":
			op = spirv.OpLogicalOr
		case "xor":
			op = spirv.OpLogicalNotEqual
		}
	} else {
		switch inst.Opcode {
		case "and":
			op = spirv.OpBitwiseAnd
		case "or":
			op = spirv.OpBitwiseOr
		case "xor":
			op = spirv.OpBitwiseXor
		}
	}
	return f.storeDest(dst, f.b.AddBinaryOp(op, typeID, a, b))
}

func (f *funcGen) lowerShift(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 3 {
		return errors.New("%v: expected three operands", inst.Opcode)
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	// The shift amount is a 32-bit value regardless of the data type.
	amountType := ptx.TypeU32
	amount, err := f.loadOperand(inst.Operands[2], amountType)
	if err != nil {
		return err
	}
	typeID := f.g.scalarType(t)
	if t.ByteSize() != 4 {
		amount, err = f.convertValue(amount, amountType, unsignedOfWidth(t.ByteSize()))
		if err != nil {
			return err
		}
	}

	var op spirv.OpCode
	if inst.Opcode == "shl" {
		op = spirv.OpShiftLeftLogical
	} else if t.IsSigned() {
		op = spirv.OpShiftRightArithmetic
	} else {
		op = spirv.OpShiftRightLogical
	}
	return f.storeDest(dst, f.b.AddBinaryOp(op, typeID, a, amount))
}

func unsignedOfWidth(bytes uint32) ptx.ScalarType {
	switch bytes {
	case 1:
		return ptx.TypeU8
	case 2:
		return ptx.TypeU16
	case 8:
		return ptx.TypeU64
	default:
		return ptx.TypeU32
	}
}

// cmpOpcode maps a setp comparison to its SPIR-V opcode. Float
// unordered variants are true on NaN operands; ordered variants false.
func cmpOpcode(cmp ptx.Comparison, t ptx.ScalarType) (spirv.OpCode, error) {
	if t.IsFloat() {
		switch cmp {
		case ptx.CmpEq:
			return spirv.OpFOrdEqual, nil
		case ptx.CmpNe:
			return spirv.OpFOrdNotEqual, nil
		case ptx.CmpLt:
			return spirv.OpFOrdLessThan, nil
		case ptx.CmpLe:
			return spirv.OpFOrdLessThanEqual, nil
		case ptx.CmpGt:
			return spirv.OpFOrdGreaterThan, nil
		case ptx.CmpGe:
			return spirv.OpFOrdGreaterThanEqual, nil
		case ptx.CmpEqu:
			return spirv.OpFUnordEqual, nil
		case ptx.CmpNeu:
			return spirv.OpFUnordNotEqual, nil
		case ptx.CmpLtu:
			return spirv.OpFUnordLessThan, nil
		case ptx.CmpLeu:
			return spirv.OpFUnordLessThanEqual, nil
		case ptx.CmpGtu:
			return spirv.OpFUnordGreaterThan, nil
		case ptx.CmpGeu:
			return spirv.OpFUnordGreaterThanEqual, nil
		case ptx.CmpNum:
			return spirv.OpOrdered, nil
		case ptx.CmpNan:
			return spirv.OpUnordered, nil
		}
		return 0, errors.New("comparison not defined for float types")
	}

	signed := t.IsSigned()
	switch cmp {
	case ptx.CmpEq:
		return spirv.OpIEqual, nil
	case ptx.CmpNe:
		return spirv.OpINotEqual, nil
	case ptx.CmpLt, ptx.CmpLo:
		if signed && cmp == ptx.CmpLt {
			return spirv.OpSLessThan, nil
		}
		return spirv.OpULessThan, nil
	case ptx.CmpLe, ptx.CmpLs:
		if signed && cmp == ptx.CmpLe {
			return spirv.OpSLessThanEqual, nil
		}
		return spirv.OpULessThanEqual, nil
	case ptx.CmpGt, ptx.CmpHi:
		if signed && cmp == ptx.CmpGt {
			return spirv.OpSGreaterThan, nil
		}
		return spirv.OpUGreaterThan, nil
	case ptx.CmpGe, ptx.CmpHs:
		if signed && cmp == ptx.CmpGe {
			return spirv.OpSGreaterThanEqual, nil
		}
		return spirv.OpUGreaterThanEqual, nil
	}
	return 0, errors.New("comparison not defined for integer types")
}

func (f *funcGen) lowerSetp(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 3 {
		return errors.New("setp: expected three operands")
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	b, err := f.loadOperand(inst.Operands[2], t)
	if err != nil {
		return err
	}
	op, err := cmpOpcode(inst.Mod.Cmp, t)
	if err != nil {
		return err
	}
	return f.storeDest(dst, f.b.AddBinaryOp(op, f.b.AddTypeBool(), a, b))
}

func (f *funcGen) lowerSelp(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 4 {
		return errors.New("selp: expected four operands")
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	b, err := f.loadOperand(inst.Operands[2], t)
	if err != nil {
		return err
	}
	cond, err := f.loadOperand(inst.Operands[3], ptx.TypePred)
	if err != nil {
		return err
	}
	return f.storeDest(dst, f.b.AddSelect(f.g.scalarType(t), cond, a, b))
}

func (f *funcGen) lowerSlct(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 4 {
		return errors.New("slct: expected four operands")
	}
	t := inst.Type
	st := inst.SrcType
	if st == ptx.TypeNone {
		st = ptx.TypeS32
	}
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	b, err := f.loadOperand(inst.Operands[2], t)
	if err != nil {
		return err
	}
	c, err := f.loadOperand(inst.Operands[3], st)
	if err != nil {
		return err
	}
	boolType := f.b.AddTypeBool()
	stID := f.g.scalarType(st)
	var zero uint32
	var op spirv.OpCode
	if st == ptx.TypeF64 {
		zero = f.b.AddConstantFloat64(stID, 0)
		op = spirv.OpFOrdGreaterThanEqual
	} else if st.IsFloat() {
		zero = f.b.AddConstantFloat32(stID, 0)
		op = spirv.OpFOrdGreaterThanEqual
	} else {
		zero = f.b.AddConstantUint32(stID, 0)
		op = spirv.OpSGreaterThanEqual
	}
	cond := f.b.AddBinaryOp(op, boolType, c, zero)
	return f.storeDest(dst, f.b.AddSelect(f.g.scalarType(t), cond, a, b))
}

// roundingWord maps a PTX rounding modifier to the FPRoundingMode
// decoration operand.
func roundingWord(r ptx.RoundingMode) (spirv.FPRoundingMode, bool) {
	switch r {
	case ptx.RoundNearest:
		return spirv.FPRoundingRTE, true
	case ptx.RoundZero:
		return spirv.FPRoundingRTZ, true
	case ptx.RoundNegInf:
		return spirv.FPRoundingRTN, true
	case ptx.RoundPosInf:
		return spirv.FPRoundingRTP, true
	}
	return 0, false
}

func (f *funcGen) lowerCvt(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 2 {
		return errors.New("cvt: expected two operands")
	}
	dt := inst.Type
	st := inst.SrcType
	if st == ptx.TypeNone {
		st = dt
	}
	val, err := f.loadOperand(inst.Operands[1], st)
	if err != nil {
		return err
	}
	dtID := f.g.scalarType(dt)

	switch {
	case dt.IsFloat() && st.IsFloat():
		if inst.Mod.Rounding.IsInt() {
			if dt != st {
				return errors.New("cvt: integer rounding requires matching float types")
			}
			var ext uint32
			switch inst.Mod.Rounding {
			case ptx.RoundNearestInt:
				ext = spirv.CLRint
			case ptx.RoundZeroInt:
				ext = spirv.CLTrunc
			case ptx.RoundNegInfInt:
				ext = spirv.CLFloor
			case ptx.RoundPosInfInt:
				ext = spirv.CLCeil
			}
			return f.storeDest(dst, f.b.AddExtInst(dtID, f.g.clExt, ext, val))
		}
		if dt == st {
			return f.storeDest(dst, val)
		}
		res := f.b.AddUnaryOp(spirv.OpFConvert, dtID, val)
		if mode, ok := roundingWord(inst.Mod.Rounding); ok {
			f.b.AddDecorate(res, spirv.DecorationFPRoundingMode, uint32(mode))
		}
		return f.storeDest(dst, res)

	case !dt.IsFloat() && st.IsFloat():
		// The conversion itself truncates, so .rzi needs no rounding
		// step; the other integer-rounding modes round the float value
		// first.
		switch inst.Mod.Rounding {
		case ptx.RoundNearestInt:
			val = f.b.AddExtInst(f.g.scalarType(st), f.g.clExt, spirv.CLRint, val)
		case ptx.RoundNegInfInt:
			val = f.b.AddExtInst(f.g.scalarType(st), f.g.clExt, spirv.CLFloor, val)
		case ptx.RoundPosInfInt:
			val = f.b.AddExtInst(f.g.scalarType(st), f.g.clExt, spirv.CLCeil, val)
		}
		op := spirv.OpConvertFToU
		if dt.IsSigned() {
			op = spirv.OpConvertFToS
		}
		return f.storeDest(dst, f.b.AddUnaryOp(op, dtID, val))

	case dt.IsFloat():
		op := spirv.OpConvertUToF
		if st.IsSigned() {
			op = spirv.OpConvertSToF
		}
		res := f.b.AddUnaryOp(op, dtID, val)
		if mode, ok := roundingWord(inst.Mod.Rounding); ok {
			f.b.AddDecorate(res, spirv.DecorationFPRoundingMode, uint32(mode))
		}
		return f.storeDest(dst, res)

	default:
		// Integer to integer. Saturation converts across signedness;
		// otherwise width changes follow the destination signedness.
		if inst.Mod.Sat && dt.IsSigned() != st.IsSigned() {
			op := spirv.OpSatConvertUToS
			if st.IsSigned() {
				op = spirv.OpSatConvertSToU
			}
			return f.storeDest(dst, f.b.AddUnaryOp(op, dtID, val))
		}
		res, err := f.convertValue(val, st, dt)
		if err != nil {
			return err
		}
		return f.storeDest(dst, res)
	}
}

func (f *funcGen) lowerCvta(inst *ptx.Instruction) error {
	// Flat addressing: address-space conversion is a value copy.
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	t, err := f.regType(dst.Name)
	if err != nil {
		return err
	}
	val, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	return f.storeDest(dst, val)
}

func (f *funcGen) lowerMath(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 2 {
		return errors.New("%v: expected two operands", inst.Opcode)
	}
	t := inst.Type
	if !t.IsFloat() {
		return errors.New("%v is not defined for %v", inst.Opcode, t)
	}
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	typeID := f.g.scalarType(t)

	// Approximate variants stay approximate; they are never upgraded
	// to the correctly rounded forms.
	switch inst.Opcode {
	case "rcp":
		if inst.Mod.Approx {
			return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLNativeRecip, a))
		}
		var one uint32
		if t == ptx.TypeF64 {
			one = f.b.AddConstantFloat64(typeID, 1)
		} else {
			one = f.b.AddConstantFloat32(typeID, 1)
		}
		if t == ptx.TypeF32 {
			f.g.crDivSqrt = true
		}
		return f.storeDest(dst, f.b.AddBinaryOp(spirv.OpFDiv, typeID, one, a))
	case "sqrt":
		if inst.Mod.Approx {
			return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLNativeSqrt, a))
		}
		if t == ptx.TypeF32 {
			f.g.crDivSqrt = true
		}
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLSqrt, a))
	case "rsqrt":
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLNativeRsqrt, a))
	case "sin":
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLNativeSin, a))
	case "cos":
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLNativeCos, a))
	case "lg2":
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLNativeLog2, a))
	case "ex2":
		return f.storeDest(dst, f.b.AddExtInst(typeID, f.g.clExt, spirv.CLNativeExp2, a))
	}
	return errors.New("unsupported math opcode %v", inst.Opcode)
}

func (f *funcGen) lowerBitIntrinsic(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 2 {
		return errors.New("%v: expected two operands", inst.Opcode)
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	typeID := f.g.scalarType(t)
	dt, err := f.regType(dst.Name)
	if err != nil {
		return err
	}

	var val uint32
	switch inst.Opcode {
	case "clz":
		val = f.b.AddExtInst(typeID, f.g.clExt, spirv.CLClz, a)
	case "popc":
		val = f.b.AddExtInst(typeID, f.g.clExt, spirv.CLPopcount, a)
	case "brev":
		val = f.b.AddUnaryOp(spirv.OpBitReverse, typeID, a)
	}
	// clz and popc produce u32 regardless of the operand width.
	if inst.Opcode != "brev" {
		var cerr error
		val, cerr = f.convertValue(val, t, dt)
		if cerr != nil {
			return cerr
		}
	}
	return f.storeDest(dst, val)
}

func (f *funcGen) lowerBfe(inst *ptx.Instruction) error {
	dst, err := f.destReg(inst)
	if err != nil {
		return err
	}
	if len(inst.Operands) != 4 {
		return errors.New("bfe: expected four operands")
	}
	t := inst.Type
	a, err := f.loadOperand(inst.Operands[1], t)
	if err != nil {
		return err
	}
	off, err := f.loadOperand(inst.Operands[2], ptx.TypeU32)
	if err != nil {
		return err
	}
	count, err := f.loadOperand(inst.Operands[3], ptx.TypeU32)
	if err != nil {
		return err
	}
	op := spirv.OpBitFieldUExtract
	if t.IsSigned() {
		op = spirv.OpBitFieldSExtract
	}
	return f.storeDest(dst, f.b.AddOp(op, f.g.scalarType(t), a, off, count))
}

func (f *funcGen) lowerAtom(inst *ptx.Instruction, hasResult bool) error {
	ops := inst.Operands
	var dst *ptx.RegOperand
	if hasResult {
		var err error
		dst, err = f.destReg(inst)
		if err != nil {
			return err
		}
		ops = ops[1:]
	}
	if len(ops) < 1 {
		return errors.New("%v: missing address operand", inst.Opcode)
	}
	addr, ok := ops[0].(*ptx.AddrOperand)
	if !ok {
		return errors.New("%v: operand is not an address", inst.Opcode)
	}
	ops = ops[1:]

	t := inst.Type
	if t.IsFloat() {
		return errors.New("float atomics are not supported")
	}
	typeID := f.g.scalarType(t)
	ptr, err := f.resolveAddress(inst, addr, typeID, t.ByteSize())
	if err != nil {
		return err
	}

	// PTX atomics default to device scope with relaxed ordering.
	u32 := f.g.scalarType(ptx.TypeU32)
	scope := f.b.AddConstantUint32(u32, uint32(spirv.ScopeDevice))
	semantics := f.b.AddConstantUint32(u32, uint32(spirv.SemanticsRelaxed))

	loadArg := func(i int) (uint32, error) {
		if i >= len(ops) {
			return 0, errors.New("%v.%v: missing operand", inst.Opcode, atomName(inst.Mod.Atomic))
		}
		return f.loadOperand(ops[i], t)
	}

	var val uint32
	switch inst.Mod.Atomic {
	case ptx.AtomCas:
		cmp, err := loadArg(0)
		if err != nil {
			return err
		}
		swap, err := loadArg(1)
		if err != nil {
			return err
		}
		val = f.b.AddAtomicCompareExchange(typeID, ptr, scope, semantics, semantics, swap, cmp)
	case ptx.AtomExch:
		v, err := loadArg(0)
		if err != nil {
			return err
		}
		val = f.b.AddAtomicRMW(spirv.OpAtomicExchange, typeID, ptr, scope, semantics, v)
	case ptx.AtomAdd:
		v, err := loadArg(0)
		if err != nil {
			return err
		}
		val = f.b.AddAtomicRMW(spirv.OpAtomicIAdd, typeID, ptr, scope, semantics, v)
	case ptx.AtomInc:
		val = f.b.AddAtomicNullary(spirv.OpAtomicIIncrement, typeID, ptr, scope, semantics)
	case ptx.AtomDec:
		val = f.b.AddAtomicNullary(spirv.OpAtomicIDecrement, typeID, ptr, scope, semantics)
	case ptx.AtomMin:
		v, err := loadArg(0)
		if err != nil {
			return err
		}
		op := spirv.OpAtomicUMin
		if t.IsSigned() {
			op = spirv.OpAtomicSMin
		}
		val = f.b.AddAtomicRMW(op, typeID, ptr, scope, semantics, v)
	case ptx.AtomMax:
		v, err := loadArg(0)
		if err != nil {
			return err
		}
		op := spirv.OpAtomicUMax
		if t.IsSigned() {
			op = spirv.OpAtomicSMax
		}
		val = f.b.AddAtomicRMW(op, typeID, ptr, scope, semantics, v)
	case ptx.AtomAnd:
		v, err := loadArg(0)
		if err != nil {
			return err
		}
		val = f.b.AddAtomicRMW(spirv.OpAtomicAnd, typeID, ptr, scope, semantics, v)
	case ptx.AtomOr:
		v, err := loadArg(0)
		if err != nil {
			return err
		}
		val = f.b.AddAtomicRMW(spirv.OpAtomicOr, typeID, ptr, scope, semantics, v)
	case ptx.AtomXor:
		v, err := loadArg(0)
		if err != nil {
			return err
		}
		val = f.b.AddAtomicRMW(spirv.OpAtomicXor, typeID, ptr, scope, semantics, v)
	default:
		return errors.New("unsupported atomic operation")
	}

	if hasResult {
		return f.storeDest(dst, val)
	}
	return nil
}

func atomName(op ptx.AtomicOp) string {
	names := [...]string{"none", "cas", "exch", "add", "inc", "dec", "min", "max", "and", "or", "xor"}
	if int(op) < len(names) {
		return names[op]
	}
	return "unknown"
}

func (f *funcGen) lowerBar(inst *ptx.Instruction) error {
	u32 := f.g.scalarType(ptx.TypeU32)
	scope := f.b.AddConstantUint32(u32, uint32(spirv.ScopeWorkgroup))
	semantics := f.b.AddConstantUint32(u32,
		uint32(spirv.SemanticsSequentiallyConsistent|spirv.SemanticsWorkgroupMemory))
	f.b.AddControlBarrier(scope, scope, semantics)
	return nil
}

func (f *funcGen) lowerCall(inst *ptx.Instruction) error {
	callee, ok := f.g.funcs[inst.CallFunc]
	if !ok {
		return errors.New("call to undeclared function %v", inst.CallFunc)
	}

	args := make([]uint32, 0, len(inst.CallArgs))
	for i, name := range inst.CallArgs {
		if i >= len(callee.params) {
			return errors.New("call to %v: too many arguments", inst.CallFunc)
		}
		want := callee.params[i].v.Type
		val, err := f.loadNamed(name, want)
		if err != nil {
			return err
		}
		args = append(args, val)
	}

	result := f.b.AddFunctionCall(callee.retType, callee.id, args...)

	if inst.CallRet != "" {
		if callee.fn.Return == nil {
			return errors.New("call to %v: function returns no value", inst.CallFunc)
		}
		return f.storeNamed(inst.CallRet, callee.fn.Return.Type, result)
	}
	return nil
}

// loadNamed reads a call-protocol slot: a body .param variable or a
// register.
func (f *funcGen) loadNamed(name string, t ptx.ScalarType) (uint32, error) {
	if id, ok := f.localVars[name]; ok {
		return f.b.AddLoad(f.g.scalarType(t), id), nil
	}
	if _, ok := f.regVars[name]; ok {
		return f.loadOperand(&ptx.RegOperand{Name: name}, t)
	}
	return 0, errors.New("unknown call slot %v", name)
}

func (f *funcGen) storeNamed(name string, t ptx.ScalarType, val uint32) error {
	if id, ok := f.localVars[name]; ok {
		f.b.AddStore(id, val)
		return nil
	}
	if _, ok := f.regVars[name]; ok {
		return f.storeDest(&ptx.RegOperand{Name: name}, val)
	}
	return errors.New("unknown call slot %v", name)
}
