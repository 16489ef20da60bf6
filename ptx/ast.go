package ptx

// ScalarType is a PTX fundamental type.
type ScalarType uint8

const (
	TypeNone ScalarType = iota
	TypeB8
	TypeB16
	TypeB32
	TypeB64
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeS8
	TypeS16
	TypeS32
	TypeS64
	TypeF16
	TypeF32
	TypeF64
	TypePred
)

var scalarNames = map[ScalarType]string{
	TypeB8: "b8", TypeB16: "b16", TypeB32: "b32", TypeB64: "b64",
	TypeU8: "u8", TypeU16: "u16", TypeU32: "u32", TypeU64: "u64",
	TypeS8: "s8", TypeS16: "s16", TypeS32: "s32", TypeS64: "s64",
	TypeF16: "f16", TypeF32: "f32", TypeF64: "f64", TypePred: "pred",
}

var scalarByName = func() map[string]ScalarType {
	m := make(map[string]ScalarType, len(scalarNames))
	for t, n := range scalarNames {
		m[n] = t
	}
	return m
}()

// ScalarTypeByName maps a type suffix ("u64") to its ScalarType.
// Returns TypeNone when the name is not a type.
func ScalarTypeByName(name string) ScalarType {
	return scalarByName[name]
}

// String returns the PTX spelling without the leading dot.
func (t ScalarType) String() string {
	if n, ok := scalarNames[t]; ok {
		return n
	}
	return "none"
}

// ByteSize returns the size of the type in bytes. Predicates occupy
// a single byte for sizing purposes; they are never stored to memory.
func (t ScalarType) ByteSize() uint32 {
	switch t {
	case TypeB8, TypeU8, TypeS8, TypePred:
		return 1
	case TypeB16, TypeU16, TypeS16, TypeF16:
		return 2
	case TypeB32, TypeU32, TypeS32, TypeF32:
		return 4
	case TypeB64, TypeU64, TypeS64, TypeF64:
		return 8
	default:
		return 0
	}
}

// Align returns the natural alignment of the type in bytes.
func (t ScalarType) Align() uint32 {
	return t.ByteSize()
}

// IsFloat reports whether the type is an IEEE float.
func (t ScalarType) IsFloat() bool {
	return t == TypeF16 || t == TypeF32 || t == TypeF64
}

// IsSigned reports whether the type is a signed integer.
func (t ScalarType) IsSigned() bool {
	return t == TypeS8 || t == TypeS16 || t == TypeS32 || t == TypeS64
}

// IsUnsigned reports whether the type is an unsigned integer.
func (t ScalarType) IsUnsigned() bool {
	return t == TypeU8 || t == TypeU16 || t == TypeU32 || t == TypeU64
}

// IsBits reports whether the type is an untyped bit container.
func (t ScalarType) IsBits() bool {
	return t == TypeB8 || t == TypeB16 || t == TypeB32 || t == TypeB64
}

// IsInteger reports whether the type is integral (signed, unsigned or bits).
func (t ScalarType) IsInteger() bool {
	return t.IsSigned() || t.IsUnsigned() || t.IsBits()
}

// StateSpace is a PTX storage space.
type StateSpace uint8

const (
	SpaceNone StateSpace = iota
	SpaceReg
	SpaceSReg
	SpaceParam
	SpaceLocal
	SpaceShared
	SpaceGlobal
	SpaceConst
	SpaceGeneric
)

// String returns the PTX spelling without the leading dot.
func (s StateSpace) String() string {
	switch s {
	case SpaceReg:
		return "reg"
	case SpaceSReg:
		return "sreg"
	case SpaceParam:
		return "param"
	case SpaceLocal:
		return "local"
	case SpaceShared:
		return "shared"
	case SpaceGlobal:
		return "global"
	case SpaceConst:
		return "const"
	case SpaceGeneric:
		return "generic"
	default:
		return "none"
	}
}

// Module is the root of a parsed PTX module.
//
// Exactly one .version/.target/.address_size header governs pointer
// width and feature availability for the whole module.
type Module struct {
	Version     string // e.g. "6.5"
	Target      string // e.g. "sm_30"
	AddressSize int    // 32 or 64

	Variables []*Variable // module-scope .global/.shared/.const
	Functions []*Function
}

// Variable is a declared variable, parameter or register bank.
type Variable struct {
	Name   string
	Space  StateSpace
	Type   ScalarType
	Align  uint32 // 0 = natural alignment
	Count  uint32 // array element count; 0 = scalar
	Extern bool   // .extern linkage
	// Unsized marks `name[]` declarations (dynamically sized extern
	// shared memory bound at launch time).
	Unsized bool
	// Multiplicity expands a register bank declaration `%r<N>` into
	// registers %r0 .. %r(N-1). Zero for ordinary declarations.
	Multiplicity uint32
	Span         Span
}

func (*Variable) stmt() {}

// ByteSize returns the total declared size in bytes (0 for unsized).
func (v *Variable) ByteSize() uint32 {
	size := v.Type.ByteSize()
	if v.Count > 0 {
		size *= v.Count
	}
	if v.Unsized {
		return 0
	}
	return size
}

// Function is a kernel (.entry) or device function (.func).
type Function struct {
	Kernel  bool
	Visible bool
	Extern  bool
	Name    string
	Params  []*Variable // declared input parameters, in order
	Return  *Variable   // optional return parameter (device functions)
	Body    []Statement // nil when Declared
	// Declared marks a declaration without a body, e.g. an .extern
	// .func resolved by the linked support library.
	Declared bool
	Span     Span
}

// ParamSizes returns the byte width of every declared input parameter,
// in declaration order. This is the size contract argument-tracing
// tools rely on; it requires no code generation.
func (f *Function) ParamSizes() []uint32 {
	sizes := make([]uint32, len(f.Params))
	for i, p := range f.Params {
		sizes[i] = p.ByteSize()
	}
	return sizes
}

// Statement is a label, a body-level declaration, or an instruction.
type Statement interface {
	stmt()
}

// Label marks a basic block boundary.
type Label struct {
	Name string
	Span Span
}

func (*Label) stmt() {}

// Predicate is an optional boolean guard on an instruction.
type Predicate struct {
	Reg     string
	Negated bool
}

// RoundingMode is a float rounding modifier.
type RoundingMode uint8

const (
	RoundNone RoundingMode = iota
	RoundNearest               // .rn
	RoundZero                  // .rz
	RoundNegInf                // .rm
	RoundPosInf                // .rp
	RoundNearestInt            // .rni
	RoundZeroInt               // .rzi
	RoundNegInfInt             // .rmi
	RoundPosInfInt             // .rpi
)

// IsInt reports whether the mode rounds to an integral float value.
func (r RoundingMode) IsInt() bool {
	return r >= RoundNearestInt
}

// MulMode selects which half of an integer product is kept.
type MulMode uint8

const (
	MulLo MulMode = iota
	MulHi
	MulWide
)

// Comparison is a setp/set comparison operator.
type Comparison uint8

const (
	CmpNone Comparison = iota
	CmpEq
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	CmpLo // unsigned <
	CmpLs // unsigned <=
	CmpHi // unsigned >
	CmpHs // unsigned >=
	CmpEqu
	CmpNeu
	CmpLtu
	CmpLeu
	CmpGtu
	CmpGeu
	CmpNum
	CmpNan
)

// Unordered reports whether the comparison is true on NaN operands.
func (c Comparison) Unordered() bool {
	return c >= CmpEqu && c <= CmpGeu || c == CmpNan
}

// AtomicOp is an atom instruction operation modifier.
type AtomicOp uint8

const (
	AtomNone AtomicOp = iota
	AtomCas
	AtomExch
	AtomAdd
	AtomInc
	AtomDec
	AtomMin
	AtomMax
	AtomAnd
	AtomOr
	AtomXor
)

// Modifiers is the modifier set attached to an instruction.
type Modifiers struct {
	Rounding RoundingMode
	Ftz      bool
	Sat      bool
	Approx   bool
	Full     bool // .full (full-precision division)
	Uni      bool // .uni on bra/call
	To       bool // .to on cvta
	Mul      MulMode
	Cmp      Comparison
	Atomic   AtomicOp
	VecWidth uint8 // 0, 2 or 4
}

// Instruction is a single PTX instruction.
type Instruction struct {
	Opcode string
	Pred   *Predicate
	// Type is the instruction type (for cvt: the destination type).
	Type ScalarType
	// SrcType is the second type suffix (cvt and mixed-width ops).
	SrcType ScalarType
	Space   StateSpace
	Mod     Modifiers

	Operands []Operand

	// Call protocol fields, set only for opcode "call".
	CallRet  string
	CallFunc string
	CallArgs []string

	Span Span
}

func (*Instruction) stmt() {}

// Operand is an instruction operand.
type Operand interface {
	operand()
}

// RegOperand references a register, optionally a component of a
// special register (%tid.x).
type RegOperand struct {
	Name      string
	Component string // "x", "y", "z" or ""
}

func (*RegOperand) operand() {}

// ImmOperand is an immediate value.
type ImmOperand struct {
	Int     int64
	Float   float64
	IsFloat bool
}

func (*ImmOperand) operand() {}

// SymOperand names a variable or function (address-of, branch or call
// target).
type SymOperand struct {
	Name string
}

func (*SymOperand) operand() {}

// AddrOperand is a memory operand [base+offset]; the base is either a
// register or a declared variable.
type AddrOperand struct {
	Base      string
	BaseIsReg bool
	Offset    int64
}

func (*AddrOperand) operand() {}

// VecOperand is a brace-enclosed operand pack {a, b, ...}.
type VecOperand struct {
	Elems []Operand
}

func (*VecOperand) operand() {}
