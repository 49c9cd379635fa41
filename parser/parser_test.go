package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.perlls.io/perlls/ast"
)

// checkSpans walks the tree verifying the span soundness invariants:
// 0 <= start <= end <= len(text), and children contained in parents.
func checkSpans(t *testing.T, text string, root ast.Node) {
	t.Helper()
	var rec func(n ast.Node, parent ast.Span)
	rec = func(n ast.Node, parent ast.Span) {
		sp := n.Span()
		assert.GreaterOrEqual(t, sp.Start, 0, "%T starts before the document", n)
		assert.LessOrEqual(t, sp.Start, sp.End, "%T has end < start", n)
		assert.LessOrEqual(t, sp.End, len(text), "%T ends after the document", n)
		assert.True(t, parent.Covers(sp) || sp.Len() == 0,
			"%T span %v escapes parent %v", n, sp, parent)
		for _, c := range n.Children() {
			if c != nil {
				rec(c, sp)
			}
		}
	}
	require.NotNil(t, root)
	rec(root, root.Span())
}

func mustParse(t *testing.T, src string) *Result {
	t.Helper()
	res := Parse(src)
	require.NotNil(t, res.Root)
	return res
}

func firstStatement(t *testing.T, src string) ast.Node {
	t.Helper()
	res := mustParse(t, src)
	require.NotEmpty(t, res.Root.Statements, "no statements for %q", src)
	return res.Root.Statements[0]
}

func TestParseTotality(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		";",
		"my $x = 42;",
		"}}}}",
		"((((((",
		"sub { sub { sub {",
		"my $x = ",
		"if",
		"\x00\x01\x02",
		strings.Repeat("+", 500),
	}
	for _, src := range inputs {
		src := src
		t.Run(src, func(t *testing.T) {
			t.Parallel()
			res := Parse(src)
			require.NotNil(t, res.Root, "parse must always return a Program")
			checkSpans(t, src, res.Root)
		})
	}
}

func TestStatementForms(t *testing.T) {
	t.Parallel()

	t.Run("package without block", func(t *testing.T) {
		t.Parallel()
		pkg, ok := firstStatement(t, "package Foo::Bar;").(*ast.Package)
		require.True(t, ok)
		assert.Equal(t, "Foo::Bar", pkg.Name)
		assert.Nil(t, pkg.Block)
	})

	t.Run("package with block", func(t *testing.T) {
		t.Parallel()
		pkg, ok := firstStatement(t, "package Foo { my $x = 1; }").(*ast.Package)
		require.True(t, ok)
		require.NotNil(t, pkg.Block)
		assert.Len(t, pkg.Block.Statements, 1)
	})

	t.Run("use with imports", func(t *testing.T) {
		t.Parallel()
		use, ok := firstStatement(t, `use List::Util qw(first max);`).(*ast.Use)
		require.True(t, ok)
		assert.Equal(t, "List::Util", use.Module)
		assert.False(t, use.No)
	})

	t.Run("no pragma", func(t *testing.T) {
		t.Parallel()
		use, ok := firstStatement(t, "no warnings;").(*ast.Use)
		require.True(t, ok)
		assert.True(t, use.No)
	})

	t.Run("named sub with signature", func(t *testing.T) {
		t.Parallel()
		sub, ok := firstStatement(t, "sub add($a, $b) { return $a + $b; }").(*ast.Subroutine)
		require.True(t, ok)
		assert.Equal(t, "add", sub.Name)
		require.Len(t, sub.Signature, 2)
		require.NotNil(t, sub.Body)
	})

	t.Run("sub with prototype", func(t *testing.T) {
		t.Parallel()
		sub, ok := firstStatement(t, "sub pairs ($$) { }").(*ast.Subroutine)
		require.True(t, ok)
		assert.Equal(t, "($$)", sub.Prototype)
		assert.Empty(t, sub.Signature)
	})

	t.Run("sub with attributes", func(t *testing.T) {
		t.Parallel()
		sub, ok := firstStatement(t, "sub handler :lvalue :method { }").(*ast.Subroutine)
		require.True(t, ok)
		assert.Equal(t, []string{"lvalue", "method"}, sub.Attributes)
	})

	t.Run("if elsif else", func(t *testing.T) {
		t.Parallel()
		stmt, ok := firstStatement(t, "if ($a) { 1; } elsif ($b) { 2; } else { 3; }").(*ast.If)
		require.True(t, ok)
		assert.Len(t, stmt.Elsifs, 1)
		assert.NotNil(t, stmt.Else)
		assert.False(t, stmt.Negated)
	})

	t.Run("unless", func(t *testing.T) {
		t.Parallel()
		stmt, ok := firstStatement(t, "unless ($done) { work(); }").(*ast.If)
		require.True(t, ok)
		assert.True(t, stmt.Negated)
	})

	t.Run("while and until", func(t *testing.T) {
		t.Parallel()
		w, ok := firstStatement(t, "while ($x) { }").(*ast.While)
		require.True(t, ok)
		assert.False(t, w.Until)

		u, ok := firstStatement(t, "until ($x) { }").(*ast.While)
		require.True(t, ok)
		assert.True(t, u.Until)
	})

	t.Run("c-style for", func(t *testing.T) {
		t.Parallel()
		f, ok := firstStatement(t, "for (my $i = 0; $i < 10; $i++) { }").(*ast.For)
		require.True(t, ok)
		assert.NotNil(t, f.Init)
		assert.NotNil(t, f.Cond)
		assert.NotNil(t, f.Update)
	})

	t.Run("foreach with my", func(t *testing.T) {
		t.Parallel()
		fe, ok := firstStatement(t, "foreach my $item (@items) { }").(*ast.Foreach)
		require.True(t, ok)
		require.IsType(t, &ast.VariableDeclaration{}, fe.Var)
	})

	t.Run("for as foreach", func(t *testing.T) {
		t.Parallel()
		_, ok := firstStatement(t, "for my $x (1, 2, 3) { }").(*ast.Foreach)
		require.True(t, ok)
	})

	t.Run("list declaration", func(t *testing.T) {
		t.Parallel()
		decl, ok := firstStatement(t, "my ($a, $b, @rest) = @_;").(*ast.VariableDeclaration)
		require.True(t, ok)
		require.Len(t, decl.Variables, 3)
		assert.Equal(t, "a", decl.Variables[0].Name)
		assert.Equal(t, "@", decl.Variables[2].Sigil)
		assert.NotNil(t, decl.Init)
	})

	t.Run("our declaration", func(t *testing.T) {
		t.Parallel()
		decl, ok := firstStatement(t, `our $VERSION = "1.0";`).(*ast.VariableDeclaration)
		require.True(t, ok)
		assert.Equal(t, "our", decl.Declarator)
	})

	t.Run("labeled loop with control", func(t *testing.T) {
		t.Parallel()
		res := mustParse(t, "OUTER: while (1) { last OUTER; }")
		label, ok := res.Root.Statements[0].(*ast.Label)
		require.True(t, ok)
		assert.Equal(t, "OUTER", label.Name)
		loop, ok := label.Stmt.(*ast.While)
		require.True(t, ok)
		lc, ok := loop.Body.Statements[0].(*ast.LoopControl)
		require.True(t, ok)
		assert.Equal(t, "last", lc.Keyword)
		assert.Equal(t, "OUTER", lc.Label)
	})

	t.Run("statement modifier", func(t *testing.T) {
		t.Parallel()
		stmt, ok := firstStatement(t, `print "yes" if $ok;`).(*ast.If)
		require.True(t, ok)
		require.Len(t, stmt.Then.Statements, 1)
		_, isCall := stmt.Then.Statements[0].(*ast.FunctionCall)
		assert.True(t, isCall)
	})

	t.Run("eval block", func(t *testing.T) {
		t.Parallel()
		ev, ok := firstStatement(t, "eval { risky(); };").(*ast.Eval)
		require.True(t, ok)
		require.IsType(t, &ast.Block{}, ev.Body)
	})

	t.Run("last statement needs no semicolon", func(t *testing.T) {
		t.Parallel()
		res := mustParse(t, "sub f { my $x = 1; $x }")
		require.Empty(t, res.Problems)
	})
}

func TestExpressions(t *testing.T) {
	t.Parallel()

	t.Run("precedence multiplicative over additive", func(t *testing.T) {
		t.Parallel()
		bin, ok := firstStatement(t, "1 + 2 * 3;").(*ast.Binary)
		require.True(t, ok)
		assert.Equal(t, "+", bin.Op)
		right, ok := bin.Right.(*ast.Binary)
		require.True(t, ok)
		assert.Equal(t, "*", right.Op)
	})

	t.Run("string concat at additive level", func(t *testing.T) {
		t.Parallel()
		bin, ok := firstStatement(t, `$a . $b eq "ab";`).(*ast.Binary)
		require.True(t, ok)
		assert.Equal(t, "eq", bin.Op)
	})

	t.Run("assignment right associative", func(t *testing.T) {
		t.Parallel()
		asg, ok := firstStatement(t, "$a = $b = 1;").(*ast.Assignment)
		require.True(t, ok)
		_, ok = asg.RHS.(*ast.Assignment)
		assert.True(t, ok)
	})

	t.Run("exponent right associative", func(t *testing.T) {
		t.Parallel()
		bin, ok := firstStatement(t, "2 ** 3 ** 2;").(*ast.Binary)
		require.True(t, ok)
		assert.Equal(t, "**", bin.Op)
		_, ok = bin.Right.(*ast.Binary)
		assert.True(t, ok)
	})

	t.Run("ternary", func(t *testing.T) {
		t.Parallel()
		_, ok := firstStatement(t, "$max = $a > $b ? $a : $b;").(*ast.Assignment)
		if !ok {
			// with the ladder's placement the ternary may own the root
			_, ok = firstStatement(t, "$max = $a > $b ? $a : $b;").(*ast.Ternary)
		}
		assert.True(t, ok)
	})

	t.Run("regex bind", func(t *testing.T) {
		t.Parallel()
		bin, ok := firstStatement(t, `$line =~ /pat/;`).(*ast.Binary)
		require.True(t, ok)
		assert.Equal(t, "=~", bin.Op)
		_, ok = bin.Right.(*ast.Match)
		assert.True(t, ok)
	})

	t.Run("method call chain", func(t *testing.T) {
		t.Parallel()
		mc, ok := firstStatement(t, `$obj->method(1)->other;`).(*ast.MethodCall)
		require.True(t, ok)
		assert.Equal(t, "other", mc.Method)
		inner, ok := mc.Object.(*ast.MethodCall)
		require.True(t, ok)
		assert.Equal(t, "method", inner.Method)
		assert.Len(t, inner.Args, 1)
	})

	t.Run("class method call", func(t *testing.T) {
		t.Parallel()
		mc, ok := firstStatement(t, `Foo::Bar->new(x => 1);`).(*ast.MethodCall)
		require.True(t, ok)
		assert.Equal(t, "new", mc.Method)
		id, ok := mc.Object.(*ast.Identifier)
		require.True(t, ok)
		assert.Equal(t, "Foo::Bar", id.Name)
	})

	t.Run("subscripts", func(t *testing.T) {
		t.Parallel()
		idx, ok := firstStatement(t, `$matrix[0]{row};`).(*ast.Index)
		require.True(t, ok)
		assert.True(t, idx.Brace)
		inner, ok := idx.Target.(*ast.Index)
		require.True(t, ok)
		assert.False(t, inner.Brace)
	})

	t.Run("list operator call", func(t *testing.T) {
		t.Parallel()
		call, ok := firstStatement(t, `push @stack, $item, 42;`).(*ast.FunctionCall)
		require.True(t, ok)
		assert.Equal(t, "push", call.Name)
		assert.Len(t, call.Args, 3)
	})

	t.Run("anonymous structures", func(t *testing.T) {
		t.Parallel()
		decl, ok := firstStatement(t, `my $cfg = { name => "x", list => [1, 2] };`).(*ast.VariableDeclaration)
		require.True(t, ok)
		require.IsType(t, &ast.AnonHash{}, decl.Init)
	})

	t.Run("heredoc primary", func(t *testing.T) {
		t.Parallel()
		res := mustParse(t, "my $msg = <<END;\nhello\nEND\n")
		decl, ok := res.Root.Statements[0].(*ast.VariableDeclaration)
		require.True(t, ok)
		hd, ok := decl.Init.(*ast.Heredoc)
		require.True(t, ok)
		assert.Equal(t, "END", hd.Tag)
		assert.True(t, hd.Interpolate)
		assert.Greater(t, hd.BodyEnd, hd.BodyStart)
	})
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("resumes at anchor keyword", func(t *testing.T) {
		t.Parallel()
		res := mustParse(t, "my $x = * ; sub ok_sub { 1; }")
		require.NotEmpty(t, res.Problems)
		var foundSub bool
		ast.Walk(res.Root, func(n ast.Node) bool {
			if sub, ok := n.(*ast.Subroutine); ok && sub.Name == "ok_sub" {
				foundSub = true
			}
			return true
		})
		assert.True(t, foundSub, "parser must recover and parse the sub after garbage")
	})

	t.Run("error node spans the bad region", func(t *testing.T) {
		t.Parallel()
		res := mustParse(t, "if { broken } my $ok = 1;")
		require.NotEmpty(t, res.Problems)
		var hasErrorOrMissing bool
		ast.Walk(res.Root, func(n ast.Node) bool {
			switch n.(type) {
			case *ast.Error, *ast.Missing:
				hasErrorOrMissing = true
			}
			return true
		})
		assert.True(t, hasErrorOrMissing)
		checkSpans(t, "if { broken } my $ok = 1;", res.Root)
	})

	t.Run("unclosed block is reported", func(t *testing.T) {
		t.Parallel()
		res := mustParse(t, "sub f { my $x = 1;")
		require.NotEmpty(t, res.Problems)
	})
}

func TestRecursionGuard(t *testing.T) {
	t.Parallel()

	deep := strings.Repeat("(", 2000) + "1" + strings.Repeat(")", 2000)
	done := make(chan *Result, 1)
	go func() { done <- Parse(deep) }()
	select {
	case res := <-done:
		require.NotNil(t, res.Root)
		require.NotEmpty(t, res.Problems, "depth bound must surface as a problem")
	case <-time.After(5 * time.Second):
		t.Fatal("parser did not terminate on deeply nested input")
	}
}

func TestMalformedInputStability(t *testing.T) {
	t.Parallel()

	// the library of broken files: each must parse within the budget and
	// produce a Program
	broken := []string{
		`my $x = "unterminated`,
		`sub foo { my $y = `,
		`if ($x { print; }`,
		`while (1 { }`,
		`package ;`,
		`my @list = (1, 2,`,
		`$h{key = 5;`,
		`print "a" . ;`,
		`foreach $x in (@l) {}`,
		`sub {{{{`,
		`}}}} sub f {}`,
		`use ;`,
		`my %h = (a => );`,
		`q(never closed`,
		`<<EOT
no end`,
		`s/only one`,
		`my $x = [1, {2, [3,`,
		`$obj->->method;`,
		`1 ? 2;`,
		"\xff\xfe binary garbage \x00",
	}
	require.GreaterOrEqual(t, len(broken), 20)

	for i, src := range broken {
		src := src
		i := i
		t.Run(string(rune('a'+i)), func(t *testing.T) {
			t.Parallel()
			done := make(chan *Result, 1)
			go func() { done <- Parse(src) }()
			select {
			case res := <-done:
				require.NotNil(t, res.Root)
				checkSpans(t, src, res.Root)
			case <-time.After(time.Second):
				t.Fatalf("input %d exceeded the 1s budget", i)
			}
		})
	}
}
