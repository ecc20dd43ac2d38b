package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, src string) (Result, string, error) {
	t.Helper()
	return Interpret(src, nil)
}

func TestInterpretArithmeticPrint(t *testing.T) {
	res, out, err := run(t, "print 1 + 2 * 3;")
	require.NoError(t, err)
	require.Equal(t, OK, res)
	require.Equal(t, "7\n", out)
}

func TestInterpretStringConcatenation(t *testing.T) {
	res, out, err := run(t, `print "foo" + "bar";`)
	require.NoError(t, err)
	require.Equal(t, OK, res)
	require.Equal(t, "foobar\n", out)
}

func TestInterpretClosureSharesUpvalue(t *testing.T) {
	src := `
fun makeCounter() {
  var i = 0;
  fun counter() {
    i = i + 1;
    return i;
  }
  return counter;
}
var counter = makeCounter();
print counter();
print counter();
print counter();
`
	res, out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, OK, res)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestInterpretForLoop(t *testing.T) {
	src := `for (var i = 0; i < 3; i = i + 1) { print i; }`
	res, out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, OK, res)
	require.Equal(t, "0\n1\n2\n", out)
}

func TestInterpretUndefinedVariableIsRuntimeError(t *testing.T) {
	res, _, err := run(t, "print x;")
	require.Error(t, err)
	require.Equal(t, RuntimeError, res)

	rerr, ok := err.(*RuntimeFailure)
	require.True(t, ok)
	require.Equal(t, "Undefined variable 'x'.", rerr.Message)
}

func TestInterpretArityMismatchIsRuntimeError(t *testing.T) {
	src := `
fun f(a, b) { return a + b; }
f(1);
`
	res, _, err := run(t, src)
	require.Error(t, err)
	require.Equal(t, RuntimeError, res)

	rerr, ok := err.(*RuntimeFailure)
	require.True(t, ok)
	require.Equal(t, "Expected 2 arguments but got 1.", rerr.Message)
}

func TestInterpretCompileErrorOnTopLevelReturn(t *testing.T) {
	res, _, err := run(t, "return 1;")
	require.Error(t, err)
	require.Equal(t, CompileError, res)
}

func TestInterpretReusesGlobalsAcrossCalls(t *testing.T) {
	v := New(nil)
	defer v.Free()

	_, err := v.Interpret("var x = 1;")
	require.NoError(t, err)
	res, err := v.Interpret("print x + 1;")
	require.NoError(t, err)
	require.Equal(t, OK, res)
	require.Equal(t, "2\n", v.Output())
}
