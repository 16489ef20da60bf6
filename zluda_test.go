package zluda_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zluda "github.com/akavasis/ZLUDA"
	"github.com/akavasis/ZLUDA/ptx"
	"github.com/akavasis/ZLUDA/spirv"
)

const source = `
.version 7.0
.target sm_50
.address_size 64

.visible .entry scale(
    .param .u64 data,
    .param .u32 n
)
{
    .reg .pred %p<2>;
    .reg .u32 %r<5>;
    .reg .u64 %rd<4>;

    ld.param.u64 %rd0, [data];
    ld.param.u32 %r1, [n];
    mov.u32 %r0, %tid.x;
    setp.ge.u32 %p0, %r0, %r1;
@%p0 bra DONE;

    mul.wide.u32 %rd1, %r0, 4;
    add.u64 %rd2, %rd0, %rd1;
    ld.global.u32 %r2, [%rd2];
    mul.lo.u32 %r3, %r2, 2;
    st.global.u32 [%rd2], %r3;
DONE:
    ret;
}
`

func TestCompile(t *testing.T) {
	mod, err := zluda.Compile(source)
	require.NoError(t, err)

	require.Contains(t, mod.Kernels, "scale")
	assert.False(t, mod.Kernels["scale"].UsesSharedMem)

	pm, err := spirv.Parse(mod.Binary)
	require.NoError(t, err)
	assert.NotEmpty(t, pm.Functions)

	text, err := spirv.Disassemble(mod.Binary)
	require.NoError(t, err)
	assert.Contains(t, text, `OpEntryPoint Kernel`)
	assert.Contains(t, text, `"scale"`)
}

func TestCompile_ParseErrors(t *testing.T) {
	mod, err := zluda.Compile(".version 7.0\n.target sm_50\n!!!")
	assert.Nil(t, mod)
	require.Error(t, err)

	var srcErrs ptx.SourceErrors
	require.ErrorAs(t, err, &srcErrs)
	assert.True(t, srcErrs.HasErrors())
}

func TestCompile_TranslateErrors(t *testing.T) {
	mod, err := zluda.Compile(`
.version 7.0
.target sm_50
.address_size 64

.visible .entry k()
{
    bra NOWHERE;
}
`)
	assert.Nil(t, mod)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOWHERE")
}

func TestParse(t *testing.T) {
	ast, err := zluda.Parse(source)
	require.NoError(t, err)
	require.Len(t, ast.Functions, 1)

	mod, err := zluda.Translate(ast, zluda.DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, mod.Binary)
}
