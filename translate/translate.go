package translate

import (
	"strings"

	"tlog.app/go/errors"

	"github.com/akavasis/ZLUDA/ptx"
	"github.com/akavasis/ZLUDA/spirv"
)

// ToSPIRVModule translates a parsed PTX module into a SPIR-V module
// artifact with default options. Translation is all-or-nothing: on
// error no artifact is returned.
func ToSPIRVModule(ast *ptx.Module) (*Module, error) {
	return Translate(ast, spirv.DefaultOptions())
}

// Translate translates a parsed PTX module into a SPIR-V module
// artifact. The module is resolved first; resolution errors terminate
// the translation.
func Translate(ast *ptx.Module, opts spirv.Options) (*Module, error) {
	table, errs := ptx.Resolve(ast)
	if errs.HasErrors() {
		return nil, errors.Wrap(errs, "resolve")
	}

	g := &generator{
		b:        spirv.NewModuleBuilder(opts.Version),
		opts:     opts,
		ast:      ast,
		table:    table,
		funcs:    make(map[string]*funcDecl),
		globals:  make(map[string]*globalVar),
		builtins: make(map[spirv.BuiltIn]uint32),
		kernels:  make(map[string]KernelInfo),
	}
	return g.run()
}

// funcDecl is the pre-declared identity of a function, allocated
// before any body is generated so forward calls can reference it.
type funcDecl struct {
	fn       *ptx.Function
	analysis *fnAnalysis

	id      uint32
	typeID  uint32
	retType uint32
	params  []paramInfo

	// hiddenSharedParam marks the trailing workgroup pointer added to
	// kernels that use dynamically sized shared memory.
	hiddenSharedParam bool

	// ftzOps / preserveOps count f32 arithmetic with and without .ftz,
	// filled during body generation; they select the kernel's denormal
	// execution mode.
	ftzOps      int
	preserveOps int

	// interfaces lists the builtin input variables the body touched.
	interfaces []uint32
}

type paramInfo struct {
	v       *ptx.Variable
	pointer bool // opaque device-memory handle
	typeID  uint32
}

type globalVar struct {
	v        *ptx.Variable
	id       uint32
	storage  spirv.StorageClass
	elemType uint32
}

type generator struct {
	b     *spirv.ModuleBuilder
	opts  spirv.Options
	ast   *ptx.Module
	table *ptx.SymbolTable

	clExt uint32

	funcs    map[string]*funcDecl
	globals  map[string]*globalVar
	builtins map[spirv.BuiltIn]uint32

	// sharedBase is the Private variable holding the extern shared
	// memory base pointer; zero when the module has none.
	sharedBase     uint32
	sharedBaseType uint32 // ptr<Workgroup, u8>

	kernels       map[string]KernelInfo
	linkSupport   bool
	crDivSqrt     bool
	floatControls bool
}

func (g *generator) run() (*Module, error) {
	g.emitPreamble()

	analyses := make(map[string]*fnAnalysis)
	for _, fn := range g.ast.Functions {
		if !fn.Declared {
			analyses[fn.Name] = g.analyze(fn)
		}
	}
	propagateSharedUse(analyses)

	if err := g.emitGlobals(); err != nil {
		return nil, err
	}

	// Declare every function up front: ids and types must exist before
	// any call site is generated.
	for _, fn := range g.ast.Functions {
		if err := g.declareFunction(fn, analyses[fn.Name]); err != nil {
			return nil, err
		}
	}

	for _, fn := range g.ast.Functions {
		decl := g.funcs[fn.Name]
		if fn.Declared {
			g.emitImportDeclaration(decl)
			continue
		}
		fg := newFuncGen(g, decl)
		if err := fg.generate(); err != nil {
			return nil, errors.Wrap(err, "function %v", fn.Name)
		}
	}

	g.emitEntryPoints()

	return &Module{
		Binary:             g.b.Build(),
		Kernels:            g.kernels,
		BuildOptions:       g.buildOptions(),
		LinkSupportLibrary: g.linkSupport,
	}, nil
}

// emitPreamble adds the capability set, memory model and extended
// instruction import of an OpenCL-flavor kernel module.
func (g *generator) emitPreamble() {
	b := g.b
	b.AddCapability(spirv.CapabilityAddresses)
	b.AddCapability(spirv.CapabilityLinkage)
	b.AddCapability(spirv.CapabilityKernel)
	b.AddCapability(spirv.CapabilityInt8)
	b.AddCapability(spirv.CapabilityInt16)
	b.AddCapability(spirv.CapabilityInt64)
	if g.usesType(ptx.TypeF64) {
		b.AddCapability(spirv.CapabilityFloat64)
	}
	if g.usesType(ptx.TypeF16) {
		b.AddCapability(spirv.CapabilityFloat16)
	}
	b.SetMemoryModel(spirv.AddressingPhysical64, spirv.MemoryModelOpenCL)
	g.clExt = b.AddExtInstImport(spirv.OpenCLStd)
}

// usesType reports whether any declaration or instruction in the
// module mentions the scalar type.
func (g *generator) usesType(t ptx.ScalarType) bool {
	uses := func(v *ptx.Variable) bool { return v.Type == t }
	for _, v := range g.ast.Variables {
		if uses(v) {
			return true
		}
	}
	for _, fn := range g.ast.Functions {
		for _, p := range fn.Params {
			if uses(p) {
				return true
			}
		}
		if fn.Return != nil && uses(fn.Return) {
			return true
		}
		for _, stmt := range fn.Body {
			switch s := stmt.(type) {
			case *ptx.Variable:
				if uses(s) {
					return true
				}
			case *ptx.Instruction:
				if s.Type == t || s.SrcType == t {
					return true
				}
			}
		}
	}
	return false
}

// emitGlobals emits module-scope variables. Statically sized shared
// variables become Workgroup variables; the dynamically sized extern
// shared declaration becomes a Private pointer slot filled from the
// hidden kernel parameter at entry.
func (g *generator) emitGlobals() error {
	for _, v := range g.ast.Variables {
		if v.Space == ptx.SpaceShared && v.Unsized {
			if g.sharedBase != 0 {
				return errors.New("multiple extern shared declarations")
			}
			u8 := g.scalarType(ptx.TypeB8)
			g.sharedBaseType = g.b.AddTypePointer(spirv.StorageWorkgroup, u8)
			ptrPtr := g.b.AddTypePointer(spirv.StoragePrivate, g.sharedBaseType)
			g.sharedBase = g.b.AddGlobalVariable(ptrPtr, spirv.StoragePrivate, 0)
			if g.opts.DebugNames {
				g.b.AddName(g.sharedBase, v.Name)
			}
			g.globals[v.Name] = &globalVar{v: v, id: g.sharedBase, storage: spirv.StoragePrivate}
			continue
		}

		var storage spirv.StorageClass
		switch v.Space {
		case ptx.SpaceShared:
			storage = spirv.StorageWorkgroup
		case ptx.SpaceGlobal, ptx.SpaceConst:
			storage = spirv.StorageCrossWorkgroup
		default:
			return errors.New("module variable %v: unsupported space .%v", v.Name, v.Space)
		}

		elem := g.scalarType(v.Type)
		varType := elem
		if v.Count > 0 {
			u32 := g.scalarType(ptx.TypeU32)
			length := g.b.AddConstantUint32(u32, v.Count)
			varType = g.b.AddTypeArray(elem, length)
		}
		ptr := g.b.AddTypePointer(storage, varType)
		id := g.b.AddGlobalVariable(ptr, storage, 0)
		if g.opts.DebugNames {
			g.b.AddName(id, v.Name)
		}
		g.globals[v.Name] = &globalVar{v: v, id: id, storage: storage, elemType: elem}
	}
	return nil
}

// declareFunction allocates the function's id and type. Kernel memory
// handle parameters become untyped byte pointers in CrossWorkgroup
// storage; value parameters keep their scalar type.
func (g *generator) declareFunction(fn *ptx.Function, a *fnAnalysis) error {
	decl := &funcDecl{fn: fn, analysis: a, id: g.b.AllocID()}

	if fn.Kernel {
		decl.retType = g.b.AddTypeVoid()
	} else if fn.Return != nil {
		decl.retType = g.scalarType(fn.Return.Type)
	} else {
		decl.retType = g.b.AddTypeVoid()
	}

	u8 := g.scalarType(ptx.TypeB8)
	var paramTypes []uint32
	for _, p := range fn.Params {
		info := paramInfo{v: p}
		if fn.Kernel && a != nil && a.pointerParams[p.Name] {
			info.pointer = true
			info.typeID = g.b.AddTypePointer(spirv.StorageCrossWorkgroup, u8)
		} else {
			info.typeID = g.scalarType(p.Type)
		}
		decl.params = append(decl.params, info)
		paramTypes = append(paramTypes, info.typeID)
	}

	if fn.Kernel && a != nil && a.usesExternShared {
		decl.hiddenSharedParam = true
		paramTypes = append(paramTypes, g.b.AddTypePointer(spirv.StorageWorkgroup, u8))
	}

	decl.typeID = g.b.AddTypeFunction(decl.retType, paramTypes...)
	g.funcs[fn.Name] = decl

	if fn.Kernel {
		g.kernels[fn.Name] = KernelInfo{UsesSharedMem: a != nil && a.usesExternShared}
	}
	return nil
}

// emitImportDeclaration emits a bodyless function with Import linkage
// for a declared support routine; the loader links its definition from
// the support library.
func (g *generator) emitImportDeclaration(decl *funcDecl) {
	b := g.b
	b.AddFunctionWithID(decl.id, decl.typeID, decl.retType, spirv.FunctionControlNone)
	for _, p := range decl.params {
		b.AddFunctionParameter(p.typeID)
	}
	b.AddFunctionEnd()
	b.AddDecorateString(decl.id, spirv.DecorationLinkageAttributes, decl.fn.Name, uint32(spirv.LinkageImport))
	if g.opts.DebugNames {
		b.AddName(decl.id, decl.fn.Name)
	}
	g.linkSupport = true
}

// builtinVar returns the module-scope Input variable for the builtin,
// creating it on first use. Builtins are three-vectors of size_t.
func (g *generator) builtinVar(builtin spirv.BuiltIn) uint32 {
	if id, ok := g.builtins[builtin]; ok {
		return id
	}
	u64 := g.scalarType(ptx.TypeU64)
	vec := g.b.AddTypeVector(u64, 3)
	ptr := g.b.AddTypePointer(spirv.StorageInput, vec)
	id := g.b.AddGlobalVariable(ptr, spirv.StorageInput, 0)
	g.b.AddDecorate(id, spirv.DecorationBuiltIn, uint32(builtin))
	g.builtins[builtin] = id
	return id
}

// emitEntryPoints emits the entry point and execution modes of every
// kernel, including the denormal float-control modes derived from the
// body's .ftz usage.
func (g *generator) emitEntryPoints() {
	for _, fn := range g.ast.Functions {
		if !fn.Kernel || fn.Declared {
			continue
		}
		decl := g.funcs[fn.Name]
		g.b.AddEntryPoint(spirv.ExecutionModelKernel, decl.id, fn.Name, decl.interfaces)
		g.b.AddExecutionMode(decl.id, spirv.ExecutionModeContractionOff)

		switch {
		case decl.ftzOps > 0:
			g.b.AddCapability(spirv.CapabilityDenormFlushToZero)
			g.b.AddExecutionMode(decl.id, spirv.ExecutionModeDenormFlushToZero, 32)
			g.floatControls = true
		case decl.preserveOps > 0:
			g.b.AddCapability(spirv.CapabilityDenormPreserve)
			g.b.AddExecutionMode(decl.id, spirv.ExecutionModeDenormPreserve, 32)
			g.floatControls = true
		}
	}
	if g.floatControls {
		g.b.AddExtension("SPV_KHR_float_controls")
	}
}

func (g *generator) buildOptions() string {
	var opts []string
	if g.crDivSqrt {
		opts = append(opts, "-ze-fp32-correctly-rounded-divide-sqrt")
	}
	return strings.Join(opts, " ")
}

// scalarType returns the interned SPIR-V type for a PTX scalar.
// Integers use signedness 0; signs live in the operations. Predicates
// are booleans.
func (g *generator) scalarType(t ptx.ScalarType) uint32 {
	switch {
	case t == ptx.TypePred:
		return g.b.AddTypeBool()
	case t.IsFloat():
		return g.b.AddTypeFloat(t.ByteSize() * 8)
	default:
		return g.b.AddTypeInt(t.ByteSize()*8, 0)
	}
}
