package ptx

import (
	"testing"
)

const header = ".version 7.0\n.target sm_50\n.address_size 64\n"

func parseOK(t *testing.T, source string) *Module {
	t.Helper()
	module, errs := Parse(source)
	if errs.HasErrors() {
		t.Fatalf("Parse failed:\n%s", errs.FormatAll())
	}
	return module
}

func TestParse_Header(t *testing.T) {
	module := parseOK(t, header)

	if module.Version != "7.0" {
		t.Errorf("Version: got %q, want 7.0", module.Version)
	}
	if module.Target != "sm_50" {
		t.Errorf("Target: got %q, want sm_50", module.Target)
	}
	if module.AddressSize != 64 {
		t.Errorf("AddressSize: got %d, want 64", module.AddressSize)
	}
}

func TestParse_MissingHeader(t *testing.T) {
	_, errs := Parse(".visible .entry k() { ret; }")
	if errs.Len() < 3 {
		t.Errorf("Expected errors for missing version/target/address_size, got %d:\n%s",
			errs.Len(), errs.FormatAll())
	}
}

func TestParse_DuplicateHeader(t *testing.T) {
	_, errs := Parse(header + ".version 7.0\n")
	if !errs.HasErrors() {
		t.Error("Duplicate .version should be an error")
	}
}

func TestParse_Kernel(t *testing.T) {
	module := parseOK(t, header+`
.visible .entry add_one(
    .param .u64 in,
    .param .u64 out
)
{
    .reg .u64 %rd<3>;
    .reg .u32 %r<2>;

    ld.param.u64 %rd0, [in];
    ld.param.u64 %rd1, [out];
    ld.global.u32 %r0, [%rd0];
    add.u32 %r1, %r0, 1;
    st.global.u32 [%rd1], %r1;
    ret;
}
`)

	if len(module.Functions) != 1 {
		t.Fatalf("Function count: got %d, want 1", len(module.Functions))
	}
	fn := module.Functions[0]
	if !fn.Kernel || !fn.Visible || fn.Declared {
		t.Errorf("Function flags: kernel=%v visible=%v declared=%v", fn.Kernel, fn.Visible, fn.Declared)
	}
	if fn.Name != "add_one" {
		t.Errorf("Name: got %q", fn.Name)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("Param count: got %d, want 2", len(fn.Params))
	}
	if fn.Params[0].Name != "in" || fn.Params[0].Type != TypeU64 || fn.Params[0].Space != SpaceParam {
		t.Errorf("Param 0: %+v", fn.Params[0])
	}

	var insts []*Instruction
	var banks []*Variable
	for _, stmt := range fn.Body {
		switch s := stmt.(type) {
		case *Instruction:
			insts = append(insts, s)
		case *Variable:
			banks = append(banks, s)
		}
	}
	if len(banks) != 2 || banks[0].Multiplicity != 3 || banks[1].Multiplicity != 2 {
		t.Errorf("Register banks: %+v", banks)
	}
	if len(insts) != 6 {
		t.Fatalf("Instruction count: got %d, want 6", len(insts))
	}

	ld := insts[0]
	if ld.Opcode != "ld" || ld.Space != SpaceParam || ld.Type != TypeU64 {
		t.Errorf("ld.param: %+v", ld)
	}
	addr, ok := ld.Operands[1].(*AddrOperand)
	if !ok || addr.Base != "in" || addr.BaseIsReg {
		t.Errorf("ld.param address: %+v", ld.Operands[1])
	}

	add := insts[3]
	if add.Opcode != "add" || add.Type != TypeU32 {
		t.Errorf("add: %+v", add)
	}
	if imm, ok := add.Operands[2].(*ImmOperand); !ok || imm.Int != 1 {
		t.Errorf("add immediate: %+v", add.Operands[2])
	}
}

func TestParse_Predication(t *testing.T) {
	module := parseOK(t, header+`
.visible .entry k()
{
    .reg .pred %p<2>;
    .reg .u32 %r<3>;

    setp.eq.u32 %p0, %r0, 0;
@%p0 add.u32 %r1, %r1, 1;
@!%p1 bra DONE;
DONE:
    ret;
}
`)

	fn := module.Functions[0]
	var insts []*Instruction
	var labels []*Label
	for _, stmt := range fn.Body {
		switch s := stmt.(type) {
		case *Instruction:
			insts = append(insts, s)
		case *Label:
			labels = append(labels, s)
		}
	}

	setp := insts[0]
	if setp.Mod.Cmp != CmpEq {
		t.Errorf("setp comparison: got %v, want CmpEq", setp.Mod.Cmp)
	}

	add := insts[1]
	if add.Pred == nil || add.Pred.Reg != "%p0" || add.Pred.Negated {
		t.Errorf("Positive predicate: %+v", add.Pred)
	}

	bra := insts[2]
	if bra.Pred == nil || bra.Pred.Reg != "%p1" || !bra.Pred.Negated {
		t.Errorf("Negated predicate: %+v", bra.Pred)
	}
	if sym, ok := bra.Operands[0].(*SymOperand); !ok || sym.Name != "DONE" {
		t.Errorf("Branch target: %+v", bra.Operands[0])
	}

	if len(labels) != 1 || labels[0].Name != "DONE" {
		t.Errorf("Labels: %+v", labels)
	}
}

func TestParse_HexFloatImmediates(t *testing.T) {
	module := parseOK(t, header+`
.visible .entry k()
{
    .reg .f32 %f<2>;
    .reg .f64 %fd<2>;

    mov.f32 %f0, 0f3F800000;
    mov.f64 %fd0, 0d4000000000000000;
    mov.f32 %f1, 1.5;
}
`)

	var insts []*Instruction
	for _, stmt := range module.Functions[0].Body {
		if inst, ok := stmt.(*Instruction); ok {
			insts = append(insts, inst)
		}
	}

	cases := []float64{1.0, 2.0, 1.5}
	for i, want := range cases {
		imm, ok := insts[i].Operands[1].(*ImmOperand)
		if !ok || !imm.IsFloat {
			t.Fatalf("Instruction %d: operand is not a float immediate: %+v", i, insts[i].Operands[1])
		}
		if imm.Float != want {
			t.Errorf("Instruction %d: got %v, want %v", i, imm.Float, want)
		}
	}
}

func TestParse_VectorAndSpecialOperands(t *testing.T) {
	module := parseOK(t, header+`
.visible .entry k()
{
    .reg .u32 %r<5>;
    .reg .u64 %rd<2>;

    mov.u32 %r0, %tid.x;
    ld.global.v2.u32 {%r1, %r2}, [%rd0+8];
}
`)

	var insts []*Instruction
	for _, stmt := range module.Functions[0].Body {
		if inst, ok := stmt.(*Instruction); ok {
			insts = append(insts, inst)
		}
	}

	mov := insts[0]
	if reg, ok := mov.Operands[1].(*RegOperand); !ok || reg.Name != "%tid" || reg.Component != "x" {
		t.Errorf("Special register operand: %+v", mov.Operands[1])
	}

	ld := insts[1]
	if ld.Mod.VecWidth != 2 {
		t.Errorf("VecWidth: got %d, want 2", ld.Mod.VecWidth)
	}
	vec, ok := ld.Operands[0].(*VecOperand)
	if !ok || len(vec.Elems) != 2 {
		t.Fatalf("Vector destination: %+v", ld.Operands[0])
	}
	addr, ok := ld.Operands[1].(*AddrOperand)
	if !ok || !addr.BaseIsReg || addr.Offset != 8 {
		t.Errorf("Address: %+v", ld.Operands[1])
	}
}

func TestParse_CallProtocol(t *testing.T) {
	module := parseOK(t, header+`
.func (.reg .u32 %res) square(.reg .u32 %x)
{
    .reg .u32 %r<2>;
    mul.lo.u32 %r0, %x, %x;
    mov.u32 %res, %r0;
    ret;
}

.visible .entry k()
{
    .reg .u32 %r<3>;
    call.uni (%r1), square, (%r0);
    ret;
}
`)

	if len(module.Functions) != 2 {
		t.Fatalf("Function count: got %d", len(module.Functions))
	}

	sq := module.Functions[0]
	if sq.Kernel || sq.Return == nil || sq.Return.Name != "%res" {
		t.Errorf("Device function: kernel=%v return=%+v", sq.Kernel, sq.Return)
	}

	var call *Instruction
	for _, stmt := range module.Functions[1].Body {
		if inst, ok := stmt.(*Instruction); ok && inst.Opcode == "call" {
			call = inst
		}
	}
	if call == nil {
		t.Fatal("Call instruction missing")
	}
	if call.CallRet != "%r1" || call.CallFunc != "square" {
		t.Errorf("Call protocol: ret=%q func=%q", call.CallRet, call.CallFunc)
	}
	if len(call.CallArgs) != 1 || call.CallArgs[0] != "%r0" {
		t.Errorf("Call args: %v", call.CallArgs)
	}
}

func TestParse_ExternSharedAndDeclarations(t *testing.T) {
	module := parseOK(t, header+`
.extern .shared .align 4 .b8 scratch[];
.extern .func __assertfail(.param .u64 msg);

.visible .entry k()
{
    ret;
}
`)

	if len(module.Variables) != 1 {
		t.Fatalf("Variable count: got %d", len(module.Variables))
	}
	v := module.Variables[0]
	if !v.Extern || !v.Unsized || v.Space != SpaceShared || v.Align != 4 {
		t.Errorf("Extern shared: %+v", v)
	}

	decl := module.Functions[0]
	if !decl.Declared || decl.Name != "__assertfail" {
		t.Errorf("Declaration: declared=%v name=%q", decl.Declared, decl.Name)
	}
}

func TestParse_NestedBracesFlattened(t *testing.T) {
	module := parseOK(t, header+`
.visible .entry k()
{
    .reg .u32 %r<2>;
    {
        .reg .u32 %inner;
        mov.u32 %inner, 1;
    }
    ret;
}
`)

	var names []string
	for _, stmt := range module.Functions[0].Body {
		if v, ok := stmt.(*Variable); ok {
			names = append(names, v.Name)
		}
	}
	if len(names) != 2 || names[1] != "%inner" {
		t.Errorf("Flattened declarations: %v", names)
	}
}

func TestParse_ErrorRecovery(t *testing.T) {
	_, errs := Parse(header + `
.visible .entry k()
{
    .reg .u32 %r<2>;
    add.bogus %r0, %r1 %r1;
    frobnicate;;
    ret;
}
`)

	if errs.Len() < 2 {
		t.Errorf("Expected multiple accumulated errors, got %d:\n%s", errs.Len(), errs.FormatAll())
	}
}
