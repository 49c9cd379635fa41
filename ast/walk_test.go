package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureTree() *Program {
	// my $x = 1; sub f { $x }
	varX := &Variable{Sigil: "$", Name: "x", Loc: Span{Start: 3, End: 5}}
	decl := &VariableDeclaration{
		Declarator: "my",
		Variables:  []*Variable{varX},
		Init:       &Number{Value: "1", Loc: Span{Start: 8, End: 9}},
		Loc:        Span{Start: 0, End: 10},
	}
	use := &Variable{Sigil: "$", Name: "x", Loc: Span{Start: 19, End: 21}}
	body := &Block{Statements: []Node{use}, Loc: Span{Start: 17, End: 23}}
	sub := &Subroutine{Name: "f", NameLoc: Span{Start: 15, End: 16}, Body: body, Loc: Span{Start: 11, End: 23}}
	return &Program{Statements: []Node{decl, sub}, Loc: Span{Start: 0, End: 23}}
}

func TestWalkPreOrder(t *testing.T) {
	t.Parallel()

	var order []string
	Walk(fixtureTree(), func(n Node) bool {
		switch v := n.(type) {
		case *Program:
			order = append(order, "program")
		case *VariableDeclaration:
			order = append(order, "decl")
		case *Variable:
			order = append(order, "var:"+v.Name)
		case *Number:
			order = append(order, "num")
		case *Subroutine:
			order = append(order, "sub:"+v.Name)
		case *Block:
			order = append(order, "block")
		}
		return true
	})
	assert.Equal(t, []string{"program", "decl", "var:x", "num", "sub:f", "block", "var:x"}, order)
}

func TestWalkPrune(t *testing.T) {
	t.Parallel()

	var visited int
	Walk(fixtureTree(), func(n Node) bool {
		visited++
		_, isSub := n.(*Subroutine)
		return !isSub // skip the sub's subtree
	})
	// program, decl, var, num, sub — but not block or inner var
	assert.Equal(t, 5, visited)
}

func TestNodeAt(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	n, path := NodeAt(tree, 20) // inside the $x use in the sub body
	require.NotNil(t, n)
	v, ok := n.(*Variable)
	require.True(t, ok)
	assert.Equal(t, "x", v.Name)

	require.GreaterOrEqual(t, len(path), 3)
	_, ok = path[0].(*Program)
	assert.True(t, ok)
	_, ok = path[len(path)-1].(*Variable)
	assert.True(t, ok)
}

func TestBuildParentMap(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	parents := BuildParentMap(tree)

	_, hasRoot := parents[Node(tree)]
	assert.False(t, hasRoot, "the root has no parent")

	decl := tree.Statements[0].(*VariableDeclaration)
	assert.Equal(t, Node(tree), parents[decl])
	assert.Equal(t, Node(decl), parents[decl.Variables[0]])

	sub := tree.Statements[1].(*Subroutine)
	assert.Equal(t, Node(sub), parents[sub.Body])
	assert.Equal(t, Node(sub.Body), parents[sub.Body.Statements[0]])
}

func TestSpanHelpers(t *testing.T) {
	t.Parallel()

	s := Span{Start: 5, End: 10}
	assert.True(t, s.Contains(5))
	assert.True(t, s.Contains(9))
	assert.False(t, s.Contains(10))
	assert.Equal(t, 5, s.Len())
	assert.True(t, Span{Start: 0, End: 20}.Covers(s))
	assert.False(t, s.Covers(Span{Start: 0, End: 20}))
}
