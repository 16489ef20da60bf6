package ptx

import (
	"math"
	"strconv"
	"strings"
)

// Parser parses PTX tokens into a Module AST.
//
// Errors are accumulated in a collector rather than aborting the
// parse, so every syntax problem in a module is reported in one pass.
// Callers must treat a non-empty error list as total failure: the
// returned AST is not usable.
type Parser struct {
	source  string
	tokens  []Token
	current int
	errors  SourceErrors
}

// NewParser creates a new parser for the given tokens.
func NewParser(source string, tokens []Token) *Parser {
	return &Parser{
		source: source,
		tokens: tokens,
	}
}

// Parse parses a PTX module from source text.
func Parse(source string) (*Module, SourceErrors) {
	lexer := NewLexer(source)
	parser := NewParser(source, lexer.Tokenize())
	return parser.Parse()
}

// Parse parses the token stream and returns the module plus all
// accumulated syntax errors.
func (p *Parser) Parse() (*Module, SourceErrors) {
	module := &Module{}

	p.header(module)

	for !p.isAtEnd() {
		switch {
		case p.functionAhead():
			fn := p.function()
			if fn != nil {
				module.Functions = append(module.Functions, fn)
			}
		case p.check(TokenDirective):
			vars := p.variableDecl()
			module.Variables = append(module.Variables, vars...)
			p.expectSemicolon()
		default:
			p.errorAtCurrent("expected declaration, found %q", p.peek().Lexeme)
			p.synchronize()
		}
	}

	if module.Version == "" {
		p.errors.Addf(p.source, p.peek(), "missing .version directive")
	}
	if module.Target == "" {
		p.errors.Addf(p.source, p.peek(), "missing .target directive")
	}
	if module.AddressSize == 0 {
		p.errors.Addf(p.source, p.peek(), "missing .address_size directive")
	}

	return module, p.errors
}

// functionAhead reports whether the upcoming declaration is a kernel
// or device function. Linkage directives (.visible/.extern/.weak)
// prefix both functions and module variables, so the decision is made
// by the first non-linkage directive that follows.
func (p *Parser) functionAhead() bool {
	i := p.current
	for i < len(p.tokens) && p.tokens[i].Kind == TokenDirective {
		switch p.tokens[i].Lexeme {
		case ".visible", ".extern", ".weak":
			i++
		case ".entry", ".func":
			return true
		default:
			return false
		}
	}
	return false
}

// header parses the .version/.target/.address_size module header.
// Duplicates are syntax errors: one header set governs the module.
func (p *Parser) header(module *Module) {
	for {
		switch {
		case p.checkDirective("version"):
			tok := p.advance()
			if module.Version != "" {
				p.errors.Addf(p.source, tok, "duplicate .version directive")
			}
			v := p.advance()
			if v.Kind != TokenFloatLiteral && v.Kind != TokenIntLiteral {
				p.errorAt(v, "expected version number, found %q", v.Lexeme)
				continue
			}
			module.Version = v.Lexeme

		case p.checkDirective("target"):
			tok := p.advance()
			if module.Target != "" {
				p.errors.Addf(p.source, tok, "duplicate .target directive")
			}
			v := p.advance()
			if v.Kind != TokenIdent {
				p.errorAt(v, "expected target name, found %q", v.Lexeme)
				continue
			}
			module.Target = v.Lexeme
			// Optional feature list: .target sm_30, debug
			for p.match(TokenComma) {
				p.advance()
			}

		case p.checkDirective("address_size"):
			tok := p.advance()
			if module.AddressSize != 0 {
				p.errors.Addf(p.source, tok, "duplicate .address_size directive")
			}
			v := p.advance()
			size, err := strconv.Atoi(v.Lexeme)
			if err != nil || (size != 32 && size != 64) {
				p.errorAt(v, "invalid address size %q", v.Lexeme)
				continue
			}
			module.AddressSize = size

		default:
			return
		}
	}
}

// function parses a kernel or device function definition/declaration.
func (p *Parser) function() *Function {
	fn := &Function{Span: p.spanHere()}

	for {
		switch {
		case p.checkDirective("visible"):
			p.advance()
			fn.Visible = true
		case p.checkDirective("extern"):
			p.advance()
			fn.Extern = true
		case p.checkDirective("weak"):
			p.advance()
		default:
			goto kind
		}
	}

kind:
	switch {
	case p.checkDirective("entry"):
		p.advance()
		fn.Kernel = true
	case p.checkDirective("func"):
		p.advance()
	default:
		p.errorAtCurrent("expected .entry or .func, found %q", p.peek().Lexeme)
		p.synchronize()
		return nil
	}

	// Optional return parameter: .func (.reg .u64 out) name ...
	if p.match(TokenLeftParen) {
		ret := p.paramDecl()
		fn.Return = ret
		p.expect(TokenRightParen, "expected ) after return parameter")
	}

	name := p.advance()
	if name.Kind != TokenIdent {
		p.errorAt(name, "expected function name, found %q", name.Lexeme)
		p.synchronize()
		return nil
	}
	fn.Name = name.Lexeme

	if p.match(TokenLeftParen) {
		if !p.check(TokenRightParen) {
			for {
				param := p.paramDecl()
				if param != nil {
					fn.Params = append(fn.Params, param)
				}
				if !p.match(TokenComma) {
					break
				}
			}
		}
		p.expect(TokenRightParen, "expected ) after parameter list")
	}

	if p.match(TokenSemicolon) {
		fn.Declared = true
		return fn
	}

	if !p.expect(TokenLeftBrace, "expected { or ; after function signature") {
		p.synchronize()
		return fn
	}
	fn.Body = p.body()
	return fn
}

// paramDecl parses a single signature parameter declaration.
func (p *Parser) paramDecl() *Variable {
	v := &Variable{Span: p.spanHere()}

	for p.check(TokenDirective) {
		name := strings.TrimPrefix(p.peek().Lexeme, ".")
		switch {
		case name == "param":
			p.advance()
			v.Space = SpaceParam
		case name == "reg":
			p.advance()
			v.Space = SpaceReg
		case name == "align":
			p.advance()
			v.Align = p.alignValue()
		case ScalarTypeByName(name) != TypeNone:
			p.advance()
			v.Type = ScalarTypeByName(name)
		default:
			p.errorAtCurrent("unexpected directive %q in parameter", p.peek().Lexeme)
			p.advance()
		}
	}

	tok := p.advance()
	if tok.Kind != TokenIdent && tok.Kind != TokenReg {
		p.errorAt(tok, "expected parameter name, found %q", tok.Lexeme)
		return nil
	}
	v.Name = tok.Lexeme
	p.arraySuffix(v)
	return v
}

// variableDecl parses a variable or register declaration, possibly
// with multiple comma-separated declarators sharing space and type.
func (p *Parser) variableDecl() []*Variable {
	base := Variable{Span: p.spanHere()}

	for p.check(TokenDirective) {
		name := strings.TrimPrefix(p.peek().Lexeme, ".")
		switch {
		case name == "extern":
			p.advance()
			base.Extern = true
		case name == "visible", name == "weak":
			p.advance()
		case name == "reg":
			p.advance()
			base.Space = SpaceReg
		case name == "local":
			p.advance()
			base.Space = SpaceLocal
		case name == "shared":
			p.advance()
			base.Space = SpaceShared
		case name == "global":
			p.advance()
			base.Space = SpaceGlobal
		case name == "const":
			p.advance()
			base.Space = SpaceConst
		case name == "param":
			p.advance()
			base.Space = SpaceParam
		case name == "align":
			p.advance()
			base.Align = p.alignValue()
		case ScalarTypeByName(name) != TypeNone:
			p.advance()
			base.Type = ScalarTypeByName(name)
		default:
			p.errorAtCurrent("unexpected directive %q in declaration", p.peek().Lexeme)
			p.advance()
		}
	}

	var vars []*Variable
	for {
		tok := p.advance()
		if tok.Kind != TokenIdent && tok.Kind != TokenReg {
			p.errorAt(tok, "expected variable name, found %q", tok.Lexeme)
			break
		}
		v := base
		v.Name = tok.Lexeme

		// Register bank: %r<10> declares %r0 .. %r9.
		if p.match(TokenLess) {
			count := p.advance()
			n, err := strconv.ParseUint(count.Lexeme, 0, 32)
			if err != nil {
				p.errorAt(count, "invalid register count %q", count.Lexeme)
			}
			v.Multiplicity = uint32(n)
			p.expect(TokenGreater, "expected > after register count")
		} else {
			p.arraySuffix(&v)
		}

		vars = append(vars, &v)
		if !p.match(TokenComma) {
			break
		}
	}
	return vars
}

// arraySuffix parses [N] or [] after a declarator name.
func (p *Parser) arraySuffix(v *Variable) {
	if !p.match(TokenLeftBracket) {
		return
	}
	if p.match(TokenRightBracket) {
		v.Unsized = true
		return
	}
	count := p.advance()
	n, err := strconv.ParseUint(count.Lexeme, 0, 32)
	if err != nil {
		p.errorAt(count, "invalid array size %q", count.Lexeme)
	}
	v.Count = uint32(n)
	p.expect(TokenRightBracket, "expected ] after array size")
}

func (p *Parser) alignValue() uint32 {
	tok := p.advance()
	n, err := strconv.ParseUint(tok.Lexeme, 0, 32)
	if err != nil {
		p.errorAt(tok, "invalid alignment %q", tok.Lexeme)
		return 0
	}
	return uint32(n)
}

// body parses statements until the closing brace. Nested brace scopes
// are flattened: PTX block scoping has no codegen significance here
// beyond declaration visibility, which the resolver re-checks.
func (p *Parser) body() []Statement {
	var stmts []Statement
	for !p.isAtEnd() && !p.check(TokenRightBrace) {
		if p.match(TokenLeftBrace) {
			stmts = append(stmts, p.body()...)
			continue
		}
		if p.check(TokenDirective) {
			vars := p.variableDecl()
			p.expectSemicolon()
			for _, v := range vars {
				stmts = append(stmts, v)
			}
			continue
		}
		stmt := p.statement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	p.expect(TokenRightBrace, "expected } at end of function body")
	return stmts
}

func (p *Parser) statement() Statement {
	// Label: ident ':'
	if p.check(TokenIdent) && p.peekNext().Kind == TokenColon {
		name := p.advance()
		p.advance() // ':'
		return &Label{Name: name.Lexeme, Span: tokenSpan(name)}
	}

	return p.instruction()
}

// instruction parses one predicated instruction up to its semicolon.
func (p *Parser) instruction() Statement {
	inst := &Instruction{Span: p.spanHere()}

	if p.match(TokenAt) {
		pred := &Predicate{}
		if p.match(TokenBang) {
			pred.Negated = true
		}
		reg := p.advance()
		if reg.Kind != TokenReg {
			p.errorAt(reg, "expected predicate register, found %q", reg.Lexeme)
			p.synchronize()
			return nil
		}
		pred.Reg = reg.Lexeme
		inst.Pred = pred
	}

	op := p.advance()
	if op.Kind != TokenIdent {
		p.errorAt(op, "expected instruction opcode, found %q", op.Lexeme)
		p.synchronize()
		return nil
	}
	inst.Opcode = op.Lexeme

	p.modifiers(inst)

	if inst.Opcode == "call" {
		p.callOperands(inst)
		p.expectSemicolon()
		return inst
	}

	if !p.check(TokenSemicolon) {
		for {
			operand := p.operand()
			if operand == nil {
				p.synchronize()
				return inst
			}
			inst.Operands = append(inst.Operands, operand)
			if !p.match(TokenComma) {
				break
			}
		}
	}
	p.expectSemicolon()
	return inst
}

// modifiers consumes the dotted modifier chain after an opcode.
func (p *Parser) modifiers(inst *Instruction) {
	for p.check(TokenDirective) {
		name := strings.TrimPrefix(p.peek().Lexeme, ".")

		if t := ScalarTypeByName(name); t != TypeNone {
			p.advance()
			if inst.Type == TypeNone {
				inst.Type = t
			} else if inst.SrcType == TypeNone {
				inst.SrcType = t
			} else {
				p.errorAtCurrent("too many type suffixes on %q", inst.Opcode)
			}
			continue
		}

		if cmp, ok := p.comparison(inst, name); ok {
			p.advance()
			inst.Mod.Cmp = cmp
			continue
		}

		if atom, ok := atomicOps[name]; ok && (inst.Opcode == "atom" || inst.Opcode == "red") {
			p.advance()
			inst.Mod.Atomic = atom
			continue
		}

		switch name {
		case "global":
			inst.Space = SpaceGlobal
		case "shared":
			inst.Space = SpaceShared
		case "local":
			inst.Space = SpaceLocal
		case "param":
			inst.Space = SpaceParam
		case "const":
			inst.Space = SpaceConst
		case "generic":
			inst.Space = SpaceGeneric
		case "rn":
			inst.Mod.Rounding = RoundNearest
		case "rz":
			inst.Mod.Rounding = RoundZero
		case "rm":
			inst.Mod.Rounding = RoundNegInf
		case "rp":
			inst.Mod.Rounding = RoundPosInf
		case "rni":
			inst.Mod.Rounding = RoundNearestInt
		case "rzi":
			inst.Mod.Rounding = RoundZeroInt
		case "rmi":
			inst.Mod.Rounding = RoundNegInfInt
		case "rpi":
			inst.Mod.Rounding = RoundPosInfInt
		case "ftz":
			inst.Mod.Ftz = true
		case "sat":
			inst.Mod.Sat = true
		case "approx":
			inst.Mod.Approx = true
		case "full":
			inst.Mod.Full = true
		case "uni":
			inst.Mod.Uni = true
		case "to":
			inst.Mod.To = true
		case "wide":
			inst.Mod.Mul = MulWide
		case "lo":
			inst.Mod.Mul = MulLo
		case "hi":
			inst.Mod.Mul = MulHi
		case "v2":
			inst.Mod.VecWidth = 2
		case "v4":
			inst.Mod.VecWidth = 4
		case "sync":
			// bar.sync; the barrier is always synchronizing here
		case "x", "y", "z":
			// Special register component; leave for operand parsing.
			return
		default:
			p.errorAtCurrent("unknown modifier %q on %q", p.peek().Lexeme, inst.Opcode)
		}
		p.advance()
	}
}

// comparison resolves comparison modifier names, which collide with
// mul-mode names: lo/hi are comparisons only on setp/set/slct.
func (p *Parser) comparison(inst *Instruction, name string) (Comparison, bool) {
	cmp, ok := comparisons[name]
	if !ok {
		return CmpNone, false
	}
	if name == "lo" || name == "hi" {
		if inst.Opcode != "setp" && inst.Opcode != "set" && inst.Opcode != "slct" {
			return CmpNone, false
		}
	}
	return cmp, true
}

var comparisons = map[string]Comparison{
	"eq": CmpEq, "ne": CmpNe, "lt": CmpLt, "le": CmpLe,
	"gt": CmpGt, "ge": CmpGe, "lo": CmpLo, "ls": CmpLs,
	"hi": CmpHi, "hs": CmpHs, "equ": CmpEqu, "neu": CmpNeu,
	"ltu": CmpLtu, "leu": CmpLeu, "gtu": CmpGtu, "geu": CmpGeu,
	"num": CmpNum, "nan": CmpNan,
}

var atomicOps = map[string]AtomicOp{
	"cas": AtomCas, "exch": AtomExch, "add": AtomAdd,
	"inc": AtomInc, "dec": AtomDec, "min": AtomMin,
	"max": AtomMax, "and": AtomAnd, "or": AtomOr, "xor": AtomXor,
}

// callOperands parses the call protocol:
//
//	call.uni (retparam), funcname, (param0, param1);
//
// The return and argument lists are optional.
func (p *Parser) callOperands(inst *Instruction) {
	if p.match(TokenLeftParen) {
		ret := p.advance()
		if ret.Kind != TokenIdent && ret.Kind != TokenReg {
			p.errorAt(ret, "expected return slot name, found %q", ret.Lexeme)
		} else {
			inst.CallRet = ret.Lexeme
		}
		p.expect(TokenRightParen, "expected ) after return slot")
		p.expect(TokenComma, "expected , after return slot")
	}

	fn := p.advance()
	if fn.Kind != TokenIdent {
		p.errorAt(fn, "expected call target, found %q", fn.Lexeme)
		p.synchronize()
		return
	}
	inst.CallFunc = fn.Lexeme

	if p.match(TokenComma) {
		if !p.expect(TokenLeftParen, "expected ( before argument list") {
			return
		}
		if !p.check(TokenRightParen) {
			for {
				arg := p.advance()
				if arg.Kind != TokenIdent && arg.Kind != TokenReg {
					p.errorAt(arg, "expected call argument, found %q", arg.Lexeme)
					break
				}
				inst.CallArgs = append(inst.CallArgs, arg.Lexeme)
				if !p.match(TokenComma) {
					break
				}
			}
		}
		p.expect(TokenRightParen, "expected ) after argument list")
	}
}

func (p *Parser) operand() Operand {
	switch {
	case p.check(TokenReg):
		reg := p.advance()
		op := &RegOperand{Name: reg.Lexeme}
		// Special register component: %tid.x
		if p.check(TokenDirective) {
			comp := strings.TrimPrefix(p.peek().Lexeme, ".")
			if comp == "x" || comp == "y" || comp == "z" {
				p.advance()
				op.Component = comp
			}
		}
		return op

	case p.check(TokenIntLiteral), p.check(TokenFloatLiteral),
		p.check(TokenHexFloat32), p.check(TokenHexFloat64):
		return p.immediate()

	case p.check(TokenIdent):
		sym := p.advance()
		return &SymOperand{Name: sym.Lexeme}

	case p.match(TokenLeftBracket):
		return p.addressOperand()

	case p.match(TokenLeftBrace):
		vec := &VecOperand{}
		for {
			elem := p.operand()
			if elem == nil {
				return nil
			}
			vec.Elems = append(vec.Elems, elem)
			if !p.match(TokenComma) {
				break
			}
		}
		p.expect(TokenRightBrace, "expected } after vector operand")
		return vec

	default:
		p.errorAtCurrent("expected operand, found %q", p.peek().Lexeme)
		return nil
	}
}

func (p *Parser) immediate() Operand {
	tok := p.advance()
	switch tok.Kind {
	case TokenIntLiteral:
		lex := strings.TrimRight(tok.Lexeme, "Uu")
		val, err := strconv.ParseInt(lex, 0, 64)
		if err != nil {
			// Large unsigned values overflow ParseInt; keep the bits.
			uval, uerr := strconv.ParseUint(lex, 0, 64)
			if uerr != nil {
				p.errorAt(tok, "invalid integer literal %q", tok.Lexeme)
				return &ImmOperand{}
			}
			val = int64(uval)
		}
		return &ImmOperand{Int: val}

	case TokenFloatLiteral:
		val, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			p.errorAt(tok, "invalid float literal %q", tok.Lexeme)
			return &ImmOperand{IsFloat: true}
		}
		return &ImmOperand{Float: val, IsFloat: true}

	case TokenHexFloat32:
		bits, err := strconv.ParseUint(tok.Lexeme[2:], 16, 32)
		if err != nil || len(tok.Lexeme) != 10 {
			p.errorAt(tok, "invalid hex float literal %q", tok.Lexeme)
			return &ImmOperand{IsFloat: true}
		}
		return &ImmOperand{Float: float64(math.Float32frombits(uint32(bits))), IsFloat: true}

	case TokenHexFloat64:
		bits, err := strconv.ParseUint(tok.Lexeme[2:], 16, 64)
		if err != nil || len(tok.Lexeme) != 18 {
			p.errorAt(tok, "invalid hex float literal %q", tok.Lexeme)
			return &ImmOperand{IsFloat: true}
		}
		return &ImmOperand{Float: math.Float64frombits(bits), IsFloat: true}
	}
	return nil
}

func (p *Parser) addressOperand() Operand {
	base := p.advance()
	op := &AddrOperand{}
	switch base.Kind {
	case TokenReg:
		op.Base = base.Lexeme
		op.BaseIsReg = true
	case TokenIdent:
		op.Base = base.Lexeme
	default:
		p.errorAt(base, "expected address base, found %q", base.Lexeme)
		return nil
	}

	if p.match(TokenPlus) {
		off := p.advance()
		n, err := strconv.ParseInt(strings.TrimRight(off.Lexeme, "Uu"), 0, 64)
		if err != nil {
			p.errorAt(off, "invalid address offset %q", off.Lexeme)
		}
		op.Offset = n
	} else if p.check(TokenIntLiteral) && strings.HasPrefix(p.peek().Lexeme, "-") {
		off := p.advance()
		n, err := strconv.ParseInt(off.Lexeme, 0, 64)
		if err != nil {
			p.errorAt(off, "invalid address offset %q", off.Lexeme)
		}
		op.Offset = n
	}

	p.expect(TokenRightBracket, "expected ] after address")
	return op
}

// synchronize skips tokens until a statement boundary so one syntax
// error does not cascade into spurious follow-ups.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		if p.advance().Kind == TokenSemicolon {
			return
		}
		if p.check(TokenRightBrace) {
			return
		}
	}
}

func (p *Parser) expectSemicolon() {
	p.expect(TokenSemicolon, "expected ; after statement")
}

func (p *Parser) expect(kind TokenKind, msg string) bool {
	if p.match(kind) {
		return true
	}
	p.errorAtCurrent("%s, found %q", msg, p.peek().Lexeme)
	return false
}

func (p *Parser) errorAtCurrent(format string, args ...interface{}) {
	p.errorAt(p.peek(), format, args...)
}

func (p *Parser) errorAt(tok Token, format string, args ...interface{}) {
	p.errors.Addf(p.source, tok, format, args...)
}

func (p *Parser) check(kind TokenKind) bool {
	return p.peek().Kind == kind
}

func (p *Parser) checkDirective(name string) bool {
	return p.check(TokenDirective) && p.peek().Lexeme == "."+name
}

func (p *Parser) match(kind TokenKind) bool {
	if p.check(kind) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) peek() Token {
	return p.tokens[p.current]
}

func (p *Parser) peekNext() Token {
	if p.current+1 >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.current+1]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Kind == TokenEOF
}

func (p *Parser) spanHere() Span {
	return tokenSpan(p.peek())
}

func tokenSpan(tok Token) Span {
	return Span{
		Start: Position{Line: tok.Line, Column: tok.Column},
		End:   Position{Line: tok.Line, Column: tok.Column + len(tok.Lexeme)},
	}
}
