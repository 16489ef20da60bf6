package ptx

import (
	"strings"
	"testing"
)

func resolveSource(t *testing.T, source string) (*SymbolTable, SourceErrors) {
	t.Helper()
	module, errs := Parse(source)
	if errs.HasErrors() {
		t.Fatalf("Parse failed:\n%s", errs.FormatAll())
	}
	return Resolve(module)
}

func expectResolveError(t *testing.T, source, substr string) {
	t.Helper()
	_, errs := resolveSource(t, source)
	if !errs.HasErrors() {
		t.Fatalf("Expected resolve error containing %q, got none", substr)
	}
	for _, e := range errs {
		if strings.Contains(e.Message, substr) {
			return
		}
	}
	t.Errorf("No error contains %q:\n%s", substr, errs.FormatAll())
}

func TestResolve_BankExpansion(t *testing.T) {
	table, errs := resolveSource(t, header+`
.visible .entry k()
{
    .reg .u32 %r<4>;
    mov.u32 %r3, 0;
    ret;
}
`)
	if errs.HasErrors() {
		t.Fatalf("Resolve failed:\n%s", errs.FormatAll())
	}

	scope := table.Scopes["k"]
	for _, name := range []string{"%r0", "%r1", "%r2", "%r3"} {
		if _, ok := scope.Registers[name]; !ok {
			t.Errorf("Bank register %q missing from scope", name)
		}
	}
	if _, ok := scope.Registers["%r4"]; ok {
		t.Error("Bank expanded past its declared count")
	}
}

func TestResolve_RegisterParams(t *testing.T) {
	table, errs := resolveSource(t, header+`
.func (.reg .u32 %res) square(.reg .u32 %x)
{
    .reg .u32 %r<2>;
    mul.lo.u32 %r0, %x, %x;
    mov.u32 %res, %r0;
    ret;
}
.visible .entry k()
{
    .reg .u32 %r<2>;
    call.uni (%r1), square, (%r0);
    ret;
}
`)
	if errs.HasErrors() {
		t.Fatalf("Resolve failed:\n%s", errs.FormatAll())
	}

	scope := table.Scopes["square"]
	for _, name := range []string{"%x", "%res"} {
		if _, ok := scope.Registers[name]; !ok {
			t.Errorf("Signature register %q missing from register scope", name)
		}
	}
}

func TestResolve_UndeclaredRegister(t *testing.T) {
	expectResolveError(t, header+`
.visible .entry k()
{
    .reg .u32 %r<2>;
    mov.u32 %r0, %r9;
    ret;
}
`, `undeclared register "%r9"`)
}

func TestResolve_UndefinedLabel(t *testing.T) {
	expectResolveError(t, header+`
.visible .entry k()
{
    bra NOWHERE;
}
`, `undefined label "NOWHERE"`)
}

func TestResolve_PredicateType(t *testing.T) {
	expectResolveError(t, header+`
.visible .entry k()
{
    .reg .u32 %r<2>;
@%r0 add.u32 %r1, %r1, 1;
    ret;
}
`, "not .pred")
}

func TestResolve_SpecialRegisterComponent(t *testing.T) {
	expectResolveError(t, header+`
.visible .entry k()
{
    .reg .u32 %r<2>;
    mov.u32 %r0, %tid;
    ret;
}
`, "requires a component")
}

func TestResolve_CallArity(t *testing.T) {
	expectResolveError(t, header+`
.func callee(.reg .u32 %a, .reg .u32 %b)
{
    ret;
}
.visible .entry k()
{
    .reg .u32 %r<2>;
    call.uni callee, (%r0);
    ret;
}
`, "passes 1 arguments, function takes 2")
}

func TestResolve_SpaceModifierPlacement(t *testing.T) {
	expectResolveError(t, header+`
.visible .entry k()
{
    .reg .u32 %r<3>;
    add.global.u32 %r0, %r1, %r2;
    ret;
}
`, "does not take a state space modifier")
}

func TestResolve_ExternUnsizedShared(t *testing.T) {
	expectResolveError(t, header+`
.shared .b8 scratch[];
.visible .entry k() { ret; }
`, "must be .extern")
}

func TestResolve_DefinitionReplacesDeclaration(t *testing.T) {
	table, errs := resolveSource(t, header+`
.func helper();
.func helper()
{
    ret;
}
.visible .entry k()
{
    call.uni helper;
    ret;
}
`)
	if errs.HasErrors() {
		t.Fatalf("Resolve failed:\n%s", errs.FormatAll())
	}
	if table.Functions["helper"].Declared {
		t.Error("Definition should replace the forward declaration")
	}
}

func TestResolve_Redefinition(t *testing.T) {
	expectResolveError(t, header+`
.func helper() { ret; }
.func helper() { ret; }
.visible .entry k() { ret; }
`, "redefined")
}
