package translate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akavasis/ZLUDA/ptx"
	"github.com/akavasis/ZLUDA/spirv"
)

const header = ".version 7.0\n.target sm_50\n.address_size 64\n"

func compile(t *testing.T, source string) *Module {
	t.Helper()

	ast, errs := ptx.Parse(source)
	require.False(t, errs.HasErrors(), "parse:\n%s", errs.FormatAll())

	module, err := Translate(ast, spirv.DefaultOptions())
	require.NoError(t, err)
	return module
}

func decode(t *testing.T, m *Module) *spirv.ParsedModule {
	t.Helper()

	pm, err := spirv.Parse(m.Binary)
	require.NoError(t, err)
	return pm
}

func countOp(insts []spirv.ParsedInstruction, op spirv.OpCode) int {
	n := 0
	for _, inst := range insts {
		if inst.Opcode == op {
			n++
		}
	}
	return n
}

func bodyOps(pm *spirv.ParsedModule) []spirv.ParsedInstruction {
	var all []spirv.ParsedInstruction
	for _, fn := range pm.Functions {
		all = append(all, fn.Instructions...)
	}
	return all
}

// hasExtInst reports whether any function calls the given OpenCL.std
// extended instruction.
func hasExtInst(pm *spirv.ParsedModule, number uint32) bool {
	for _, inst := range bodyOps(pm) {
		if inst.Opcode == spirv.OpExtInst && inst.Words[3] == number {
			return true
		}
	}
	return false
}

func hasExecutionMode(pm *spirv.ParsedModule, mode spirv.ExecutionMode) bool {
	for _, inst := range pm.Globals {
		if inst.Opcode == spirv.OpExecutionMode && inst.Words[1] == uint32(mode) {
			return true
		}
	}
	return false
}

func hasCapability(pm *spirv.ParsedModule, c spirv.Capability) bool {
	for _, inst := range pm.Globals {
		if inst.Opcode == spirv.OpCapability && inst.Words[0] == uint32(c) {
			return true
		}
	}
	return false
}

func TestTranslate_EmptyKernel(t *testing.T) {
	m := compile(t, header+`
.visible .entry noop()
{
    ret;
}
`)
	pm := decode(t, m)

	assert.True(t, hasCapability(pm, spirv.CapabilityKernel))
	assert.True(t, hasCapability(pm, spirv.CapabilityAddresses))
	assert.Equal(t, 1, countOp(pm.Globals, spirv.OpEntryPoint))
	assert.True(t, hasExecutionMode(pm, spirv.ExecutionModeContractionOff),
		"kernels must disable FP contraction")

	require.Contains(t, m.Kernels, "noop")
	assert.False(t, m.Kernels["noop"].UsesSharedMem)
	assert.Empty(t, m.BuildOptions)
	assert.False(t, m.LinkSupportLibrary)
}

func TestTranslate_PointerParams(t *testing.T) {
	m := compile(t, header+`
.visible .entry copy(
    .param .u64 in,
    .param .u64 out
)
{
    .reg .u64 %rd<3>;
    .reg .u32 %r<2>;

    ld.param.u64 %rd0, [in];
    ld.param.u64 %rd1, [out];
    ld.global.u32 %r0, [%rd0];
    st.global.u32 [%rd1], %r0;
    ret;
}
`)
	pm := decode(t, m)
	require.Len(t, pm.Functions, 1)

	body := pm.Functions[0].Instructions
	assert.Equal(t, 2, countOp(body, spirv.OpFunctionParameter))
	// A register holding a pointer-typed parameter reads back as the
	// parameter's address, not a load from a spilled shadow.
	assert.GreaterOrEqual(t, countOp(body, spirv.OpConvertPtrToU), 2)
	assert.GreaterOrEqual(t, countOp(body, spirv.OpBitcast), 1,
		"zero-offset access through a clean pointer register should reuse the parameter directly")
}

func TestTranslate_PointerParamOffsetRejected(t *testing.T) {
	ast, errs := ptx.Parse(header + `
.visible .entry k(.param .u64 in)
{
    .reg .u64 %rd<3>;
    .reg .u32 %r<2>;

    ld.param.u64 %rd0, [in];
    ld.param.u64 %rd1, [in+4];
    ld.global.u32 %r0, [%rd0];
    ret;
}
`)
	require.False(t, errs.HasErrors(), "parse:\n%s", errs.FormatAll())

	// Reading past a memory-handle slot must not silently yield the
	// unoffset pointer.
	_, err := Translate(ast, spirv.DefaultOptions())
	require.Error(t, err)
}

func TestTranslate_Builtins(t *testing.T) {
	m := compile(t, header+`
.visible .entry k(.param .u64 out)
{
    .reg .u64 %rd<2>;
    .reg .u32 %r<2>;

    ld.param.u64 %rd0, [out];
    mov.u32 %r0, %tid.x;
    st.global.u32 [%rd0], %r0;
    ret;
}
`)
	pm := decode(t, m)

	found := false
	for _, inst := range pm.Globals {
		if inst.Opcode == spirv.OpDecorate &&
			inst.Words[1] == uint32(spirv.DecorationBuiltIn) &&
			inst.Words[2] == uint32(spirv.BuiltInLocalInvocationId) {
			found = true
		}
	}
	assert.True(t, found, "%%tid read should decorate a LocalInvocationId variable")
	// Builtins are size_t vectors; a 32-bit destination narrows.
	assert.Equal(t, 1, countOp(bodyOps(pm), spirv.OpUConvert))
}

func TestTranslate_DenormModes(t *testing.T) {
	ftz := compile(t, header+`
.visible .entry k()
{
    .reg .f32 %f<3>;
    add.ftz.f32 %f2, %f0, %f1;
    ret;
}
`)
	pmFtz := decode(t, ftz)
	assert.True(t, hasExecutionMode(pmFtz, spirv.ExecutionModeDenormFlushToZero))
	assert.True(t, hasCapability(pmFtz, spirv.CapabilityDenormFlushToZero))

	preserve := compile(t, header+`
.visible .entry k()
{
    .reg .f32 %f<3>;
    add.f32 %f2, %f0, %f1;
    ret;
}
`)
	pmPres := decode(t, preserve)
	assert.True(t, hasExecutionMode(pmPres, spirv.ExecutionModeDenormPreserve))
	assert.False(t, hasExecutionMode(pmPres, spirv.ExecutionModeDenormFlushToZero))
}

func TestTranslate_FloatComparisons(t *testing.T) {
	m := compile(t, header+`
.visible .entry k()
{
    .reg .pred %p<3>;
    .reg .f32 %f<3>;

    setp.gt.f32 %p0, %f0, %f1;
    setp.leu.f32 %p1, %f0, %f1;
    ret;
}
`)
	body := bodyOps(decode(t, m))

	assert.Equal(t, 1, countOp(body, spirv.OpFOrdGreaterThan))
	assert.Equal(t, 1, countOp(body, spirv.OpFUnordLessThanEqual),
		"leu must hold on NaN inputs")
}

func TestTranslate_IntegerRounding(t *testing.T) {
	m := compile(t, header+`
.visible .entry k()
{
    .reg .f32 %f<4>;
    cvt.rni.f32.f32 %f1, %f0;
    cvt.rzi.f32.f32 %f2, %f0;
    ret;
}
`)
	pm := decode(t, m)

	assert.True(t, hasExtInst(pm, spirv.CLRint))
	assert.True(t, hasExtInst(pm, spirv.CLTrunc))
}

func TestTranslate_FloatToIntRounding(t *testing.T) {
	m := compile(t, header+`
.visible .entry k()
{
    .reg .f32 %f<2>;
    .reg .s32 %r<3>;
    cvt.rni.s32.f32 %r0, %f0;
    cvt.rmi.s32.f32 %r1, %f0;
    ret;
}
`)
	pm := decode(t, m)
	body := bodyOps(pm)

	// 9.5 must convert to 10 under .rni, so the value is rounded
	// before the truncating conversion.
	assert.True(t, hasExtInst(pm, spirv.CLRint))
	assert.True(t, hasExtInst(pm, spirv.CLFloor))
	assert.Equal(t, 2, countOp(body, spirv.OpConvertFToS))

	trunc := compile(t, header+`
.visible .entry k()
{
    .reg .f32 %f<2>;
    .reg .u32 %r<2>;
    cvt.rzi.u32.f32 %r0, %f0;
    ret;
}
`)
	pmTrunc := decode(t, trunc)
	assert.Equal(t, 1, countOp(bodyOps(pmTrunc), spirv.OpConvertFToU))
	assert.False(t, hasExtInst(pmTrunc, spirv.CLTrunc),
		"the conversion already truncates")
}

func TestTranslate_SignednessErasure(t *testing.T) {
	m := compile(t, header+`
.visible .entry k()
{
    .reg .s64 %s<2>;
    .reg .u64 %u<2>;
    .reg .b64 %b<2>;

    mov.u64 %u0, 0;
    mov.s64 %s0, 0;
    mov.b64 %b0, 0;
    ret;
}
`)
	pm := decode(t, m)

	ints := 0
	for _, inst := range pm.Globals {
		if inst.Opcode == spirv.OpTypeInt && inst.Words[1] == 64 {
			ints++
			assert.Zero(t, inst.Words[2], "integer types carry no sign")
		}
	}
	assert.Equal(t, 1, ints, "s64, u64 and b64 share one type")
}

func TestTranslate_Deterministic(t *testing.T) {
	source := header + `
.visible .entry k(.param .u64 out)
{
    .reg .u64 %rd<2>;
    .reg .u32 %r<3>;

    ld.param.u64 %rd0, [out];
    mov.u32 %r0, %ctaid.x;
    mul.lo.u32 %r1, %r0, 3;
    st.global.u32 [%rd0], %r1;
    ret;
}
`
	a := compile(t, source)
	b := compile(t, source)

	assert.Equal(t, a.Binary, b.Binary)

	require.NoError(t, spirv.ModulesEqual(decode(t, a), decode(t, b)))
}

func TestTranslate_ResolveErrors(t *testing.T) {
	ast, errs := ptx.Parse(header + `
.visible .entry k()
{
    mov.u32 %r0, 1;
    ret;
}
`)
	require.False(t, errs.HasErrors())

	m, err := Translate(ast, spirv.DefaultOptions())
	assert.Nil(t, m, "no artifact on error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared register")
}

func TestTranslate_Atomics(t *testing.T) {
	m := compile(t, header+`
.visible .entry k(.param .u64 p)
{
    .reg .u64 %rd<2>;
    .reg .u32 %r<3>;

    ld.param.u64 %rd0, [p];
    atom.global.add.u32 %r0, [%rd0], %r1;
    ret;
}
`)
	pm := decode(t, m)
	body := bodyOps(pm)

	var atom *spirv.ParsedInstruction
	for i := range body {
		if body[i].Opcode == spirv.OpAtomicIAdd {
			atom = &body[i]
		}
	}
	require.NotNil(t, atom)

	// Words: type, result, pointer, scope, semantics, value. The scope
	// operand must be a constant holding Device (cross-workgroup).
	scopeID := atom.Words[3]
	scopeValue := uint32(0xffffffff)
	for _, inst := range pm.Globals {
		if inst.Opcode == spirv.OpConstant && inst.Words[1] == scopeID {
			scopeValue = inst.Words[2]
		}
	}
	assert.Equal(t, uint32(spirv.ScopeDevice), scopeValue)
}

func TestTranslate_Barrier(t *testing.T) {
	m := compile(t, header+`
.visible .entry k()
{
    bar.sync 0;
    ret;
}
`)
	assert.Equal(t, 1, countOp(bodyOps(decode(t, m)), spirv.OpControlBarrier))
}

func TestTranslate_DeviceFunctionCall(t *testing.T) {
	m := compile(t, header+`
.func (.reg .u32 %res) square(.reg .u32 %x)
{
    .reg .u32 %r<2>;
    mul.lo.u32 %r0, %x, %x;
    mov.u32 %res, %r0;
    ret;
}

.visible .entry k(.param .u64 out)
{
    .reg .u64 %rd<2>;
    .reg .u32 %r<3>;

    ld.param.u64 %rd0, [out];
    ld.global.u32 %r0, [%rd0];
    call.uni (%r1), square, (%r0);
    st.global.u32 [%rd0], %r1;
    ret;
}
`)
	pm := decode(t, m)

	require.Len(t, pm.Functions, 2)
	assert.Equal(t, 1, countOp(bodyOps(pm), spirv.OpFunctionCall))
	assert.Equal(t, 1, countOp(pm.Globals, spirv.OpEntryPoint),
		"device functions are not entry points")

	require.Contains(t, m.Kernels, "k")
	assert.NotContains(t, m.Kernels, "square")
}

func TestTranslate_ExternShared(t *testing.T) {
	m := compile(t, header+`
.extern .shared .align 4 .b8 scratch[];

.visible .entry k()
{
    .reg .u32 %r<2>;
    st.shared.u32 [scratch], %r0;
    bar.sync 0;
    ld.shared.u32 %r1, [scratch+4];
    ret;
}
`)
	pm := decode(t, m)

	require.Contains(t, m.Kernels, "k")
	assert.True(t, m.Kernels["k"].UsesSharedMem)
	// The launch-time shared allocation arrives through a hidden
	// trailing parameter.
	assert.Equal(t, 1, countOp(pm.Functions[0].Instructions, spirv.OpFunctionParameter))
}

func TestTranslate_CorrectlyRoundedDivide(t *testing.T) {
	m := compile(t, header+`
.visible .entry k()
{
    .reg .f32 %f<3>;
    div.rn.f32 %f2, %f0, %f1;
    ret;
}
`)
	assert.Contains(t, m.BuildOptions, "-ze-fp32-correctly-rounded-divide-sqrt")

	approx := compile(t, header+`
.visible .entry k()
{
    .reg .f32 %f<3>;
    div.approx.f32 %f2, %f0, %f1;
    ret;
}
`)
	assert.NotContains(t, approx.BuildOptions, "correctly-rounded")
	assert.True(t, hasExtInst(decode(t, approx), spirv.CLNativeDivide))
}

func TestTranslate_SupportLibraryImport(t *testing.T) {
	m := compile(t, header+`
.extern .func __assertfail(.param .u64 msg);

.visible .entry k()
{
    ret;
}
`)
	pm := decode(t, m)

	assert.True(t, m.LinkSupportLibrary)

	found := false
	for _, inst := range pm.Globals {
		if inst.Opcode == spirv.OpDecorate && inst.Words[1] == uint32(spirv.DecorationLinkageAttributes) {
			found = true
		}
	}
	assert.True(t, found, "declared support routines need import linkage")

	text, err := spirv.Disassemble(m.Binary)
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, "__assertfail"))
}
