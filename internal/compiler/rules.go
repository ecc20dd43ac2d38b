package compiler

import "github.com/ashlang/ash/internal/token"

// precedence orders the operators from loosest to tightest binding (§4.E).
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // ()
	precPrimary
)

// parseFn is one half of a Pratt rule: a prefix or infix handler bound to
// the compiler that owns the function currently being compiled.
type parseFn func(fc *funcCompiler, canAssign bool)

type rule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// rules is the static table indexed by token kind (§4.E): "A static rule
// table indexed by token kind yields {prefix_fn, infix_fn, precedence}."
var rules map[token.Type]rule

func init() {
	rules = map[token.Type]rule{
		token.LeftParen:    {(*funcCompiler).grouping, (*funcCompiler).call, precCall},
		token.Minus:        {(*funcCompiler).unary, (*funcCompiler).binary, precTerm},
		token.Plus:         {nil, (*funcCompiler).binary, precTerm},
		token.Slash:        {nil, (*funcCompiler).binary, precFactor},
		token.Star:         {nil, (*funcCompiler).binary, precFactor},
		token.Bang:         {(*funcCompiler).unary, nil, precNone},
		token.BangEqual:    {nil, (*funcCompiler).binary, precEquality},
		token.EqualEqual:   {nil, (*funcCompiler).binary, precEquality},
		token.Greater:      {nil, (*funcCompiler).binary, precComparison},
		token.GreaterEqual: {nil, (*funcCompiler).binary, precComparison},
		token.Less:         {nil, (*funcCompiler).binary, precComparison},
		token.LessEqual:    {nil, (*funcCompiler).binary, precComparison},
		token.Ident:        {(*funcCompiler).variable, nil, precNone},
		token.String:       {(*funcCompiler).stringLiteral, nil, precNone},
		token.Number:       {(*funcCompiler).number, nil, precNone},
		token.And:          {nil, (*funcCompiler).and, precAnd},
		token.Or:           {nil, (*funcCompiler).or, precOr},
		token.False:        {(*funcCompiler).literal, nil, precNone},
		token.Nil:          {(*funcCompiler).literal, nil, precNone},
		token.True:         {(*funcCompiler).literal, nil, precNone},
	}
}

func ruleFor(kind token.Type) rule {
	return rules[kind]
}
