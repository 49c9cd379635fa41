package ast

func (n *Program) Span() Span { return n.Loc }
func (n *Block) Span() Span   { return n.Loc }
func (n *Package) Span() Span { return n.Loc }
func (n *Use) Span() Span     { return n.Loc }

func (n *Subroutine) Span() Span          { return n.Loc }
func (n *VariableDeclaration) Span() Span { return n.Loc }
func (n *Variable) Span() Span            { return n.Loc }
func (n *Identifier) Span() Span          { return n.Loc }
func (n *FunctionCall) Span() Span        { return n.Loc }
func (n *MethodCall) Span() Span          { return n.Loc }
func (n *Assignment) Span() Span          { return n.Loc }
func (n *Binary) Span() Span              { return n.Loc }
func (n *Unary) Span() Span               { return n.Loc }
func (n *Ternary) Span() Span             { return n.Loc }
func (n *If) Span() Span                  { return n.Loc }
func (n *While) Span() Span               { return n.Loc }
func (n *For) Span() Span                 { return n.Loc }
func (n *Foreach) Span() Span             { return n.Loc }
func (n *Return) Span() Span              { return n.Loc }
func (n *LoopControl) Span() Span         { return n.Loc }
func (n *Label) Span() Span               { return n.Loc }
func (n *Eval) Span() Span                { return n.Loc }
func (n *String) Span() Span              { return n.Loc }
func (n *Number) Span() Span              { return n.Loc }
func (n *Match) Span() Span               { return n.Loc }
func (n *Substitution) Span() Span        { return n.Loc }
func (n *Transliteration) Span() Span     { return n.Loc }
func (n *Regex) Span() Span               { return n.Loc }
func (n *Heredoc) Span() Span             { return n.Loc }
func (n *List) Span() Span                { return n.Loc }
func (n *AnonArray) Span() Span           { return n.Loc }
func (n *AnonHash) Span() Span            { return n.Loc }
func (n *Index) Span() Span               { return n.Loc }
func (n *Error) Span() Span               { return n.Loc }
func (n *Missing) Span() Span             { return n.Loc }

func (n *Program) Children() []Node { return n.Statements }
func (n *Block) Children() []Node   { return n.Statements }

func (n *Package) Children() []Node {
	if n.Block != nil {
		return []Node{n.Block}
	}
	return nil
}

func (n *Use) Children() []Node { return n.Args }

func (n *Subroutine) Children() []Node {
	kids := make([]Node, 0, len(n.Signature)+1)
	kids = append(kids, n.Signature...)
	if n.Body != nil {
		kids = append(kids, n.Body)
	}
	return kids
}

func (n *VariableDeclaration) Children() []Node {
	kids := make([]Node, 0, len(n.Variables)+1)
	for _, v := range n.Variables {
		kids = append(kids, v)
	}
	if n.Init != nil {
		kids = append(kids, n.Init)
	}
	return kids
}

func (n *Variable) Children() []Node   { return nil }
func (n *Identifier) Children() []Node { return nil }

func (n *FunctionCall) Children() []Node { return n.Args }

func (n *MethodCall) Children() []Node {
	kids := make([]Node, 0, len(n.Args)+1)
	kids = append(kids, n.Object)
	kids = append(kids, n.Args...)
	return kids
}

func (n *Assignment) Children() []Node { return []Node{n.LHS, n.RHS} }
func (n *Binary) Children() []Node     { return []Node{n.Left, n.Right} }
func (n *Unary) Children() []Node      { return []Node{n.Operand} }
func (n *Ternary) Children() []Node    { return []Node{n.Cond, n.Then, n.Else} }

func (n *If) Children() []Node {
	kids := []Node{n.Cond, n.Then}
	for _, e := range n.Elsifs {
		kids = append(kids, e.Cond, e.Body)
	}
	if n.Else != nil {
		kids = append(kids, n.Else)
	}
	return kids
}

func (n *While) Children() []Node { return []Node{n.Cond, n.Body} }

func (n *For) Children() []Node {
	var kids []Node
	for _, c := range []Node{n.Init, n.Cond, n.Update} {
		if c != nil {
			kids = append(kids, c)
		}
	}
	return append(kids, n.Body)
}

func (n *Foreach) Children() []Node {
	var kids []Node
	if n.Var != nil {
		kids = append(kids, n.Var)
	}
	kids = append(kids, n.List...)
	return append(kids, n.Body)
}

func (n *Return) Children() []Node {
	if n.Value != nil {
		return []Node{n.Value}
	}
	return nil
}

func (n *LoopControl) Children() []Node { return nil }
func (n *Label) Children() []Node       { return []Node{n.Stmt} }
func (n *Eval) Children() []Node        { return []Node{n.Body} }

func (n *String) Children() []Node          { return nil }
func (n *Number) Children() []Node          { return nil }
func (n *Match) Children() []Node           { return nil }
func (n *Substitution) Children() []Node    { return nil }
func (n *Transliteration) Children() []Node { return nil }
func (n *Regex) Children() []Node           { return nil }
func (n *Heredoc) Children() []Node         { return nil }

func (n *List) Children() []Node      { return n.Elements }
func (n *AnonArray) Children() []Node { return n.Elements }
func (n *AnonHash) Children() []Node  { return n.Elements }

func (n *Index) Children() []Node { return []Node{n.Target, n.Index} }

func (n *Error) Children() []Node   { return nil }
func (n *Missing) Children() []Node { return nil }
