// Package compiler implements the single-pass Pratt compiler (§4.E): it
// drives the scanner token by token and emits bytecode directly, with no
// intermediate syntax tree. Scope resolution (local, upvalue, global) and
// code generation happen in the same walk.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/ashlang/ash/internal/bytecode"
	"github.com/ashlang/ash/internal/intern"
	"github.com/ashlang/ash/internal/scanner"
	"github.com/ashlang/ash/internal/token"
)

// funcType distinguishes the implicit top-level script from a user-defined
// function, mainly to reject `return;` outside of a function (§4.E).
type funcType int

const (
	funcTypeScript funcType = iota
	funcTypeFunction
)

// Parser drives the scanner and holds the two tokens of lookahead state
// the grammar needs (current, previous), plus error/recovery bookkeeping
// shared across every nested funcCompiler.
type Parser struct {
	scanner  *scanner.Scanner
	interner *intern.Table
	logger   *logrus.Logger

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errors    *multierror.Error

	fc *funcCompiler
}

// funcCompiler is the per-function compilation context (§4.E): its own
// locals stack, upvalue table, and scope depth counter, chained to its
// enclosing function's context while nested functions compile.
type funcCompiler struct {
	p         *Parser
	enclosing *funcCompiler
	function  *bytecode.Function
	kind      funcType

	locals     []local
	upvalues   []upvalRef
	scopeDepth int
}

func newFuncCompiler(p *Parser, enclosing *funcCompiler, kind funcType, name string) *funcCompiler {
	fn := &bytecode.Function{Chunk: bytecode.NewChunk()}
	if name != "" {
		fn.Name = p.interner.FindOrIntern(name)
	}
	fc := &funcCompiler{p: p, enclosing: enclosing, function: fn, kind: kind}
	// Slot 0 is reserved for the callee itself (§3 invariants).
	fc.locals = append(fc.locals, local{name: "", depth: 0})
	return fc
}

// Compile compiles source into the top-level script Function. Compile
// errors are accumulated with panic-mode recovery (§4.E, §7); Compile
// returns a non-nil error (a *multierror.Error) if any occurred, matching
// §7's "the compiler returns failure if any occurred."
func Compile(source string, interner *intern.Table, logger *logrus.Logger) (*bytecode.Function, error) {
	p := &Parser{scanner: scanner.New(source), interner: interner, logger: logger}
	p.fc = newFuncCompiler(p, nil, funcTypeScript, "")
	p.advance()

	for !p.match(token.EOF) {
		p.fc.declaration()
	}

	fn, _ := p.endFuncCompiler()
	if p.hadError {
		return nil, p.errors
	}
	return fn, nil
}

// --- token stream plumbing -------------------------------------------------

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.Next()
		if p.current.Type != token.Error {
			return
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *Parser) check(kind token.Type) bool {
	return p.current.Type == kind
}

func (p *Parser) match(kind token.Type) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(kind token.Type, message string) {
	if p.current.Type == kind {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

// --- error handling (§7) ---------------------------------------------------

func (p *Parser) errorAtCurrent(message string) { p.errorAt(p.current, message) }
func (p *Parser) errorAtPrevious(message string) { p.errorAt(p.previous, message) }

func (p *Parser) errorAt(tok token.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true

	where := tok.Lexeme
	if tok.Type == token.EOF {
		where = "end"
	}
	err := fmt.Errorf("[line %d] Error at %s: %s", tok.Line, where, message)
	p.errors = multierror.Append(p.errors, err)
	if p.logger != nil {
		p.logger.WithField("line", tok.Line).Debug(err.Error())
	}
}

// synchronize discards tokens until a likely statement boundary, so one
// syntax error doesn't cascade into a wall of spurious ones (§4.E, §7).
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Type != token.EOF {
		if p.previous.Type == token.Semicolon {
			return
		}
		switch p.current.Type {
		case token.Class, token.Fun, token.Var, token.For,
			token.If, token.While, token.Print, token.Return:
			return
		}
		p.advance()
	}
}

// --- bytecode emission ------------------------------------------------------

func (fc *funcCompiler) chunk() *bytecode.Chunk { return fc.function.Chunk }

func (fc *funcCompiler) emitByte(b byte) {
	fc.chunk().WriteByte(b, fc.p.previous.Line)
}

func (fc *funcCompiler) emitOp(op bytecode.OpCode) { fc.emitByte(byte(op)) }

func (fc *funcCompiler) emitOpByte(op bytecode.OpCode, operand byte) {
	fc.emitOp(op)
	fc.emitByte(operand)
}

func (fc *funcCompiler) emitReturn() {
	fc.emitOp(bytecode.OpNil)
	fc.emitOp(bytecode.OpReturn)
}

func (fc *funcCompiler) makeConstant(v bytecode.Value) byte {
	idx, err := fc.chunk().AddConstant(v)
	if err != nil {
		fc.p.errorAtPrevious(err.Error())
		return 0
	}
	return idx
}

func (fc *funcCompiler) emitConstant(v bytecode.Value) {
	fc.emitOpByte(bytecode.OpConstant, fc.makeConstant(v))
}

// emitJump writes op followed by a two-byte placeholder offset (§4.E: "16
// bit big-endian") and returns the offset of the placeholder for patchJump.
func (fc *funcCompiler) emitJump(op bytecode.OpCode) int {
	fc.emitOp(op)
	fc.emitByte(0xff)
	fc.emitByte(0xff)
	return len(fc.chunk().Code) - 2
}

func (fc *funcCompiler) patchJump(offset int) {
	jump := len(fc.chunk().Code) - offset - 2
	if jump > 0xffff {
		fc.p.errorAtPrevious("Too much code to jump over.")
	}
	code := fc.chunk().Code
	code[offset] = byte((jump >> 8) & 0xff)
	code[offset+1] = byte(jump & 0xff)
}

func (fc *funcCompiler) emitLoop(loopStart int) {
	fc.emitOp(bytecode.OpLoop)
	offset := len(fc.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		fc.p.errorAtPrevious("Loop body too large.")
	}
	fc.emitByte(byte((offset >> 8) & 0xff))
	fc.emitByte(byte(offset & 0xff))
}

// --- variable resolution (§4.E) --------------------------------------------

func (fc *funcCompiler) identifierConstant(name string) byte {
	return fc.makeConstant(bytecode.ObjVal(fc.p.interner.FindOrIntern(name)))
}

func (fc *funcCompiler) addLocal(name string) {
	if len(fc.locals) >= maxLocals {
		fc.p.errorAtPrevious("Too many local variables in function.")
		return
	}
	fc.locals = append(fc.locals, local{name: name, depth: -1})
}

func (fc *funcCompiler) declareVariable() {
	if fc.scopeDepth == 0 {
		return
	}
	name := fc.p.previous.Lexeme
	for i := len(fc.locals) - 1; i >= 0; i-- {
		l := fc.locals[i]
		if l.depth != -1 && l.depth < fc.scopeDepth {
			break
		}
		if l.name == name {
			fc.p.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	fc.addLocal(name)
}

func (fc *funcCompiler) parseVariable(errMessage string) byte {
	fc.p.consume(token.Ident, errMessage)
	fc.declareVariable()
	if fc.scopeDepth > 0 {
		return 0
	}
	return fc.identifierConstant(fc.p.previous.Lexeme)
}

func (fc *funcCompiler) markInitialized() {
	if fc.scopeDepth == 0 {
		return
	}
	fc.locals[len(fc.locals)-1].depth = fc.scopeDepth
}

func (fc *funcCompiler) defineVariable(global byte) {
	if fc.scopeDepth > 0 {
		fc.markInitialized()
		return
	}
	fc.emitOpByte(bytecode.OpDefineGlobal, global)
}

// resolveLocal implements §4.E step 1: scan locals top-down; depth == -1
// means declared-but-uninitialized, an error to read.
func (fc *funcCompiler) resolveLocal(name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			if fc.locals[i].depth == -1 {
				fc.p.errorAtPrevious("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// addUpvalue deduplicates on (index, isLocal) (§4.E) using slices.IndexFunc.
func (fc *funcCompiler) addUpvalue(index byte, isLocal bool) byte {
	want := upvalRef{index: index, isLocal: isLocal}
	if i := slices.IndexFunc(fc.upvalues, func(u upvalRef) bool { return u == want }); i != -1 {
		return byte(i)
	}
	if len(fc.upvalues) >= maxUpvalues {
		fc.p.errorAtPrevious("Too many closure variables in function.")
		return 0
	}
	fc.upvalues = append(fc.upvalues, want)
	fc.function.UpvalueCount = len(fc.upvalues)
	return byte(len(fc.upvalues) - 1)
}

// resolveUpvalue implements §4.E step 2: recurse into the enclosing
// context, marking a captured local and threading an upvalue chain.
func (fc *funcCompiler) resolveUpvalue(name string) int {
	if fc.enclosing == nil {
		return -1
	}
	if local := fc.enclosing.resolveLocal(name); local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return int(fc.addUpvalue(byte(local), true))
	}
	if up := fc.enclosing.resolveUpvalue(name); up != -1 {
		return int(fc.addUpvalue(byte(up), false))
	}
	return -1
}

func (fc *funcCompiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp bytecode.OpCode
	arg := fc.resolveLocal(name)
	if arg != -1 {
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	} else if arg = fc.resolveUpvalue(name); arg != -1 {
		getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
	} else {
		arg = int(fc.identifierConstant(name))
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	if canAssign && fc.p.match(token.Equal) {
		fc.expression()
		fc.emitOpByte(setOp, byte(arg))
	} else {
		fc.emitOpByte(getOp, byte(arg))
	}
}

// --- Pratt parsing (§4.E) ---------------------------------------------------

func (fc *funcCompiler) parsePrecedence(prec precedence) {
	fc.p.advance()
	prefixRule := ruleFor(fc.p.previous.Type).prefix
	if prefixRule == nil {
		fc.p.errorAtPrevious("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefixRule(fc, canAssign)

	for prec <= ruleFor(fc.p.current.Type).precedence {
		fc.p.advance()
		infixRule := ruleFor(fc.p.previous.Type).infix
		infixRule(fc, canAssign)
	}

	if canAssign && fc.p.match(token.Equal) {
		fc.p.errorAtPrevious("Invalid assignment target.")
	}
}

func (fc *funcCompiler) expression() { fc.parsePrecedence(precAssignment) }

func (fc *funcCompiler) number(_ bool) {
	v, err := strconv.ParseFloat(fc.p.previous.Lexeme, 64)
	if err != nil {
		fc.p.errorAtPrevious("Invalid number literal.")
	}
	fc.emitConstant(bytecode.Number(v))
}

func (fc *funcCompiler) stringLiteral(_ bool) {
	s := fc.p.interner.FindOrIntern(fc.p.previous.Lexeme)
	fc.emitConstant(bytecode.ObjVal(s))
}

func (fc *funcCompiler) literal(_ bool) {
	switch fc.p.previous.Type {
	case token.False:
		fc.emitOp(bytecode.OpFalse)
	case token.Nil:
		fc.emitOp(bytecode.OpNil)
	case token.True:
		fc.emitOp(bytecode.OpTrue)
	}
}

func (fc *funcCompiler) variable(canAssign bool) {
	fc.namedVariable(fc.p.previous.Lexeme, canAssign)
}

func (fc *funcCompiler) grouping(_ bool) {
	fc.expression()
	fc.p.consume(token.RightParen, "Expect ')' after expression.")
}

func (fc *funcCompiler) unary(_ bool) {
	opType := fc.p.previous.Type
	fc.parsePrecedence(precUnary)
	switch opType {
	case token.Bang:
		fc.emitOp(bytecode.OpNot)
	case token.Minus:
		fc.emitOp(bytecode.OpNegate)
	}
}

func (fc *funcCompiler) binary(_ bool) {
	opType := fc.p.previous.Type
	r := ruleFor(opType)
	fc.parsePrecedence(r.precedence + 1)

	switch opType {
	case token.BangEqual:
		fc.emitOp(bytecode.OpEqual)
		fc.emitOp(bytecode.OpNot)
	case token.EqualEqual:
		fc.emitOp(bytecode.OpEqual)
	case token.Greater:
		fc.emitOp(bytecode.OpGreater)
	case token.GreaterEqual:
		fc.emitOp(bytecode.OpLess)
		fc.emitOp(bytecode.OpNot)
	case token.Less:
		fc.emitOp(bytecode.OpLess)
	case token.LessEqual:
		fc.emitOp(bytecode.OpGreater)
		fc.emitOp(bytecode.OpNot)
	case token.Plus:
		fc.emitOp(bytecode.OpAdd)
	case token.Minus:
		fc.emitOp(bytecode.OpSubtract)
	case token.Star:
		fc.emitOp(bytecode.OpMultiply)
	case token.Slash:
		fc.emitOp(bytecode.OpDivide)
	}
}

func (fc *funcCompiler) and(_ bool) {
	endJump := fc.emitJump(bytecode.OpJumpIfFalse)
	fc.emitOp(bytecode.OpPop)
	fc.parsePrecedence(precAnd)
	fc.patchJump(endJump)
}

func (fc *funcCompiler) or(_ bool) {
	elseJump := fc.emitJump(bytecode.OpJumpIfFalse)
	endJump := fc.emitJump(bytecode.OpJump)
	fc.patchJump(elseJump)
	fc.emitOp(bytecode.OpPop)
	fc.parsePrecedence(precOr)
	fc.patchJump(endJump)
}

func (fc *funcCompiler) call(_ bool) {
	argCount := fc.argumentList()
	fc.emitOpByte(bytecode.OpCall, argCount)
}

func (fc *funcCompiler) argumentList() byte {
	count := 0
	if !fc.p.check(token.RightParen) {
		for {
			fc.expression()
			if count == 255 {
				fc.p.errorAtPrevious("Can't have more than 255 arguments.")
			} else {
				count++
			}
			if !fc.p.match(token.Comma) {
				break
			}
		}
	}
	fc.p.consume(token.RightParen, "Expect ')' after arguments.")
	return byte(count)
}

// --- statements & declarations (§4.E) ---------------------------------------

func (fc *funcCompiler) declaration() {
	switch {
	case fc.p.match(token.Fun):
		fc.funDeclaration()
	case fc.p.match(token.Var):
		fc.varDeclaration()
	default:
		fc.statement()
	}
	if fc.p.panicMode {
		fc.p.synchronize()
	}
}

func (fc *funcCompiler) varDeclaration() {
	global := fc.parseVariable("Expect variable name.")
	if fc.p.match(token.Equal) {
		fc.expression()
	} else {
		fc.emitOp(bytecode.OpNil)
	}
	fc.p.consume(token.Semicolon, "Expect ';' after variable declaration.")
	fc.defineVariable(global)
}

func (fc *funcCompiler) funDeclaration() {
	global := fc.parseVariable("Expect function name.")
	fc.markInitialized()
	fc.functionBody(funcTypeFunction)
	fc.defineVariable(global)
}

// functionBody compiles a nested function as its own funcCompiler, then
// emits OP_CLOSURE followed by (is_local, index) pairs for each captured
// upvalue (§4.E).
func (fc *funcCompiler) functionBody(kind funcType) {
	name := fc.p.previous.Lexeme
	child := newFuncCompiler(fc.p, fc, kind, name)
	fc.p.fc = child
	child.beginScope()

	fc.p.consume(token.LeftParen, "Expect '(' after function name.")
	if !fc.p.check(token.RightParen) {
		for {
			child.function.Arity++
			if child.function.Arity > 255 {
				fc.p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := child.parseVariable("Expect parameter name.")
			child.defineVariable(paramConst)
			if !fc.p.match(token.Comma) {
				break
			}
		}
	}
	fc.p.consume(token.RightParen, "Expect ')' after parameters.")
	fc.p.consume(token.LeftBrace, "Expect '{' before function body.")
	child.block()

	fn, upvalues := fc.p.endFuncCompiler()
	idx := fc.makeConstant(bytecode.ObjVal(fn))
	fc.emitOpByte(bytecode.OpClosure, idx)
	for _, up := range upvalues {
		isLocal := byte(0)
		if up.isLocal {
			isLocal = 1
		}
		fc.emitByte(isLocal)
		fc.emitByte(up.index)
	}
}

// endFuncCompiler finishes the current funcCompiler (emitting the implicit
// nil+return per §4.E) and restores the enclosing one as current.
func (p *Parser) endFuncCompiler() (*bytecode.Function, []upvalRef) {
	fc := p.fc
	fc.emitReturn()
	fn := fc.function
	fn.UpvalueCount = len(fc.upvalues)
	upvalues := fc.upvalues
	p.fc = fc.enclosing
	return fn, upvalues
}

func (fc *funcCompiler) statement() {
	switch {
	case fc.p.match(token.Print):
		fc.printStatement()
	case fc.p.match(token.For):
		fc.forStatement()
	case fc.p.match(token.If):
		fc.ifStatement()
	case fc.p.match(token.Return):
		fc.returnStatement()
	case fc.p.match(token.While):
		fc.whileStatement()
	case fc.p.match(token.LeftBrace):
		fc.beginScope()
		fc.block()
		fc.endScope()
	default:
		fc.expressionStatement()
	}
}

func (fc *funcCompiler) printStatement() {
	fc.expression()
	fc.p.consume(token.Semicolon, "Expect ';' after value.")
	fc.emitOp(bytecode.OpPrint)
}

func (fc *funcCompiler) expressionStatement() {
	fc.expression()
	fc.p.consume(token.Semicolon, "Expect ';' after expression.")
	fc.emitOp(bytecode.OpPop)
}

func (fc *funcCompiler) block() {
	for !fc.p.check(token.RightBrace) && !fc.p.check(token.EOF) {
		fc.declaration()
	}
	fc.p.consume(token.RightBrace, "Expect '}' after block.")
}

func (fc *funcCompiler) beginScope() { fc.scopeDepth++ }

// endScope pops locals leaving the block, emitting OP_CLOSE_UPVALUE for
// captured ones and OP_POP otherwise (§4.E).
func (fc *funcCompiler) endScope() {
	fc.scopeDepth--
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.scopeDepth {
		if fc.locals[len(fc.locals)-1].isCaptured {
			fc.emitOp(bytecode.OpCloseUpvalue)
		} else {
			fc.emitOp(bytecode.OpPop)
		}
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
}

func (fc *funcCompiler) ifStatement() {
	fc.p.consume(token.LeftParen, "Expect '(' after 'if'.")
	fc.expression()
	fc.p.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := fc.emitJump(bytecode.OpJumpIfFalse)
	fc.emitOp(bytecode.OpPop)
	fc.statement()

	elseJump := fc.emitJump(bytecode.OpJump)
	fc.patchJump(thenJump)
	fc.emitOp(bytecode.OpPop)

	if fc.p.match(token.Else) {
		fc.statement()
	}
	fc.patchJump(elseJump)
}

func (fc *funcCompiler) whileStatement() {
	loopStart := len(fc.chunk().Code)
	fc.p.consume(token.LeftParen, "Expect '(' after 'while'.")
	fc.expression()
	fc.p.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := fc.emitJump(bytecode.OpJumpIfFalse)
	fc.emitOp(bytecode.OpPop)
	fc.statement()
	fc.emitLoop(loopStart)

	fc.patchJump(exitJump)
	fc.emitOp(bytecode.OpPop)
}

func (fc *funcCompiler) forStatement() {
	fc.beginScope()
	defer fc.endScope()

	fc.p.consume(token.LeftParen, "Expect '(' after 'for'.")
	switch {
	case fc.p.match(token.Semicolon):
		// no initializer
	case fc.p.match(token.Var):
		fc.varDeclaration()
	default:
		fc.expressionStatement()
	}

	loopStart := len(fc.chunk().Code)
	exitJump := -1
	if !fc.p.match(token.Semicolon) {
		fc.expression()
		fc.p.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = fc.emitJump(bytecode.OpJumpIfFalse)
		fc.emitOp(bytecode.OpPop)
	}

	if !fc.p.match(token.RightParen) {
		bodyJump := fc.emitJump(bytecode.OpJump)
		incrementStart := len(fc.chunk().Code)
		fc.expression()
		fc.emitOp(bytecode.OpPop)
		fc.p.consume(token.RightParen, "Expect ')' after for clauses.")

		fc.emitLoop(loopStart)
		loopStart = incrementStart
		fc.patchJump(bodyJump)
	}

	fc.statement()
	fc.emitLoop(loopStart)

	if exitJump != -1 {
		fc.patchJump(exitJump)
		fc.emitOp(bytecode.OpPop)
	}
}

func (fc *funcCompiler) returnStatement() {
	if fc.kind == funcTypeScript {
		fc.p.errorAtPrevious("Can't return from top-level code.")
	}
	if fc.p.match(token.Semicolon) {
		fc.emitReturn()
		return
	}
	fc.expression()
	fc.p.consume(token.Semicolon, "Expect ';' after return value.")
	fc.emitOp(bytecode.OpReturn)
}
