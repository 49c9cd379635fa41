package analysis

import (
	"strings"

	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/lexer"
	"go.perlls.io/perlls/parser"
)

// Extract runs the single pre-order pass over a parse result and returns
// the document's symbol table. src must be the exact text the result was
// parsed from; it is used for documentation harvesting and interpolation
// scanning only.
func Extract(res *parser.Result, src string) *Table {
	ex := &extractor{
		src: src,
		res: res,
		table: &Table{
			Symbols:    map[string][]*Symbol{},
			References: map[string][]*Reference{},
		},
		pkg: DefaultPackage,
	}
	root := res.Root
	global := &Scope{ID: 0, Parent: NoScope, Kind: ScopeGlobal, Names: map[string]struct{}{}}
	if root != nil {
		global.Loc = root.Loc
	}
	ex.table.Scopes = append(ex.table.Scopes, global)
	ex.stack = []ScopeID{0}

	if root != nil {
		for _, stmt := range root.Statements {
			ex.visit(stmt)
		}
	}
	return ex.table
}

type extractor struct {
	src   string
	res   *parser.Result
	table *Table
	stack []ScopeID
	pkg   string
}

func (ex *extractor) scope() ScopeID { return ex.stack[len(ex.stack)-1] }

func (ex *extractor) push(kind ScopeKind, loc ast.Span) ScopeID {
	id := ScopeID(len(ex.table.Scopes))
	ex.table.Scopes = append(ex.table.Scopes, &Scope{
		ID:     id,
		Parent: ex.scope(),
		Kind:   kind,
		Loc:    loc,
		Names:  map[string]struct{}{},
	})
	ex.stack = append(ex.stack, id)
	return id
}

func (ex *extractor) pop() { ex.stack = ex.stack[:len(ex.stack)-1] }

func (ex *extractor) addSymbol(s *Symbol) {
	if sc := ex.table.Scope(s.Scope); sc != nil {
		sc.Names[s.Name] = struct{}{}
	}
	ex.table.Symbols[s.Name] = append(ex.table.Symbols[s.Name], s)
}

func (ex *extractor) addReference(r *Reference) {
	ex.table.References[r.Name] = append(ex.table.References[r.Name], r)
}

func (ex *extractor) visitAll(nodes []ast.Node) {
	for _, n := range nodes {
		ex.visit(n)
	}
}

func (ex *extractor) visit(n ast.Node) {
	if n == nil {
		return
	}
	switch node := n.(type) {
	case *ast.Program:
		ex.visitAll(node.Statements)

	case *ast.Package:
		ex.addSymbol(&Symbol{
			Name:      node.Name,
			Qualified: node.Name,
			Kind:      KindPackage,
			Loc:       node.NameLoc,
			Scope:     ex.scope(),
			Doc:       ex.harvestDoc(node.Loc.Start),
		})
		ex.table.Packages = append(ex.table.Packages, node.Name)
		if node.Block != nil {
			prev := ex.pkg
			ex.pkg = node.Name
			ex.push(ScopePackage, node.Block.Loc)
			ex.visitAll(node.Block.Statements)
			ex.pop()
			ex.pkg = prev
		} else {
			// Block-less form: the package stays in effect for the rest
			// of the enclosing scope.
			ex.pkg = node.Name
		}

	case *ast.Use:
		ex.table.Uses = append(ex.table.Uses, Use{
			Module:  node.Module,
			Loc:     node.ModuleLoc,
			No:      node.No,
			Require: node.Require,
		})
		if node.Module == "constant" {
			ex.recordConstants(node)
		}
		// import arguments are not symbol references

	case *ast.Subroutine:
		ex.visitSubroutine(node)

	case *ast.VariableDeclaration:
		ex.visitDeclaration(node)

	case *ast.Variable:
		ex.referenceVariable(node, false)

	case *ast.Index:
		ex.visitIndexTarget(node, false)
		ex.visit(node.Index)

	case *ast.FunctionCall:
		if node.Name != "" && node.Name != "readline" && node.Name != "do" {
			ex.addReference(&Reference{
				Name:  node.Name,
				Kind:  KindSubroutine,
				Loc:   node.NameLoc,
				Scope: ex.scope(),
			})
		}
		ex.visitAll(node.Args)

	case *ast.MethodCall:
		ex.visit(node.Object)
		if node.Method != "" && !strings.HasPrefix(node.Method, "$") {
			ex.addReference(&Reference{
				Name:  ex.methodName(node),
				Kind:  KindSubroutine,
				Loc:   node.MethodLoc,
				Scope: ex.scope(),
			})
		}
		ex.visitAll(node.Args)

	case *ast.Assignment:
		ex.visitWrite(node.LHS)
		ex.visit(node.RHS)

	case *ast.Unary:
		if node.Op == "++" || node.Op == "--" {
			ex.visitWrite(node.Operand)
		} else {
			ex.visit(node.Operand)
		}

	case *ast.If:
		ex.visit(node.Cond)
		ex.visitBlockScope(node.Then)
		for _, e := range node.Elsifs {
			ex.visit(e.Cond)
			ex.visitBlockScope(e.Body)
		}
		if node.Else != nil {
			ex.visitBlockScope(node.Else)
		}

	case *ast.While:
		ex.visit(node.Cond)
		ex.visitBlockScope(node.Body)

	case *ast.For:
		// The init declaration is scoped to the loop, body included.
		ex.push(ScopeBlock, node.Loc)
		ex.visit(node.Init)
		ex.visit(node.Cond)
		ex.visit(node.Update)
		if node.Body != nil {
			ex.visitAll(node.Body.Statements)
		}
		ex.pop()

	case *ast.Foreach:
		ex.push(ScopeBlock, node.Loc)
		ex.visit(node.Var)
		ex.visitAll(node.List)
		if node.Body != nil {
			ex.visitAll(node.Body.Statements)
		}
		ex.pop()

	case *ast.Block:
		ex.visitBlockScope(node)

	case *ast.Eval:
		if blk, ok := node.Body.(*ast.Block); ok {
			ex.push(ScopeEval, blk.Loc)
			ex.visitAll(blk.Statements)
			ex.pop()
		} else {
			ex.visit(node.Body)
		}

	case *ast.Label:
		ex.addSymbol(&Symbol{
			Name:      node.Name,
			Qualified: node.Name,
			Kind:      KindLabel,
			Loc:       node.NameLoc,
			Scope:     ex.scope(),
		})
		ex.visit(node.Stmt)

	case *ast.LoopControl:
		if node.Label != "" {
			// The label span is inside the statement span after the
			// keyword; close enough for navigation is the whole span.
			ex.addReference(&Reference{
				Name:  node.Label,
				Kind:  KindLabel,
				Loc:   node.Loc,
				Scope: ex.scope(),
			})
		}

	case *ast.String:
		if node.Interpolated {
			ex.scanInterpolations(ex.src[node.Loc.Start:node.Loc.End], node.Loc.Start)
		}

	case *ast.Heredoc:
		if node.Interpolate && node.BodyEnd > node.BodyStart && node.BodyEnd <= len(ex.src) {
			ex.scanInterpolations(ex.src[node.BodyStart:node.BodyEnd], node.BodyStart)
		}

	default:
		for _, c := range n.Children() {
			ex.visit(c)
		}
	}
}

// visitBlockScope visits a block in its own Block scope.
func (ex *extractor) visitBlockScope(blk *ast.Block) {
	if blk == nil {
		return
	}
	ex.push(ScopeBlock, blk.Loc)
	ex.visitAll(blk.Statements)
	ex.pop()
}

func (ex *extractor) visitSubroutine(node *ast.Subroutine) {
	if node.Name != "" {
		ex.addSymbol(&Symbol{
			Name:       node.Name,
			Qualified:  qualify(ex.pkg, node.Name),
			Kind:       KindSubroutine,
			Loc:        node.NameLoc,
			Scope:      ex.scope(),
			Doc:        ex.harvestDoc(node.Loc.Start),
			Attributes: node.Attributes,
		})
	}
	bodyLoc := node.Loc
	if node.Body != nil {
		bodyLoc = node.Body.Loc
	}
	ex.push(ScopeSubroutine, bodyLoc)
	for _, param := range node.Signature {
		ex.visit(param)
	}
	if node.Body != nil {
		ex.visitAll(node.Body.Statements)
	}
	ex.pop()
}

func (ex *extractor) visitDeclaration(node *ast.VariableDeclaration) {
	doc := ex.harvestDoc(node.Loc.Start)
	for _, v := range node.Variables {
		kind, ok := KindForSigil(v.Sigil)
		if !ok {
			continue
		}
		sym := &Symbol{
			Name:       v.Name,
			Qualified:  v.Name,
			Kind:       kind,
			Loc:        v.Loc,
			Scope:      ex.scope(),
			Declarator: node.Declarator,
			Doc:        doc,
			Attributes: node.Attributes,
		}
		if node.Declarator == "our" {
			sym.Qualified = qualify(ex.pkg, v.Name)
		}
		ex.addSymbol(sym)
	}
	if node.Init != nil {
		ex.visit(node.Init)
	}
}

// recordConstants handles `use constant NAME => ...;` including the hash
// form `use constant { A => 1, B => 2 };`.
func (ex *extractor) recordConstants(node *ast.Use) {
	record := func(n ast.Node) {
		switch c := n.(type) {
		case *ast.Identifier:
			ex.addSymbol(&Symbol{
				Name:      c.Name,
				Qualified: qualify(ex.pkg, c.Name),
				Kind:      KindConstant,
				Loc:       c.Loc,
				Scope:     ex.scope(),
				Doc:       ex.harvestDoc(node.Loc.Start),
			})
		case *ast.String:
			name := strings.Trim(c.Value, `"'`)
			ex.addSymbol(&Symbol{
				Name:      name,
				Qualified: qualify(ex.pkg, name),
				Kind:      KindConstant,
				Loc:       c.Loc,
				Scope:     ex.scope(),
			})
		}
	}
	for _, arg := range node.Args {
		switch a := arg.(type) {
		case *ast.AnonHash:
			for i := 0; i < len(a.Elements); i += 2 {
				record(a.Elements[i])
			}
		case *ast.List:
			if len(a.Elements) > 0 {
				record(a.Elements[0])
			}
		default:
			record(arg)
			return // only the first bareword names the constant
		}
	}
}

// visitIndexTarget records the subscripted variable with its effective
// kind: $h{k} refers to the hash %h and $a[0] to the array @a, even
// though the element access is spelled with a scalar sigil.
func (ex *extractor) visitIndexTarget(node *ast.Index, write bool) {
	v, ok := node.Target.(*ast.Variable)
	if !ok {
		if write {
			ex.visitWrite(node.Target)
		} else {
			ex.visit(node.Target)
		}
		return
	}
	kind, sok := KindForSigil(v.Sigil)
	if !sok {
		return
	}
	// through an arrow the target really is a scalar holding a reference
	if (v.Sigil == "$" || v.Sigil == "@") && !node.Arrow {
		if node.Brace {
			kind = KindHash
		} else {
			kind = KindArray
		}
	}
	name := v.Name
	if name == "" || isSpecialVariable(name) {
		return
	}
	ex.addReference(&Reference{
		Name:  name,
		Kind:  kind,
		Loc:   v.Loc,
		Scope: ex.scope(),
		Write: write,
	})
}

func (ex *extractor) referenceVariable(v *ast.Variable, write bool) {
	kind, ok := KindForSigil(v.Sigil)
	if !ok {
		return
	}
	name := v.Name
	// $#array is an array property access.
	if strings.HasPrefix(name, "#") {
		name = name[1:]
		kind = KindArray
	}
	if name == "" || isSpecialVariable(name) {
		return
	}
	ex.addReference(&Reference{
		Name:  name,
		Kind:  kind,
		Loc:   v.Loc,
		Scope: ex.scope(),
		Write: write,
	})
}

// visitWrite visits an assignment target, recording variable occurrences
// with the write flag. Subscript index expressions inside the target are
// still reads.
func (ex *extractor) visitWrite(n ast.Node) {
	switch node := n.(type) {
	case *ast.Variable:
		ex.referenceVariable(node, true)
	case *ast.List:
		for _, e := range node.Elements {
			ex.visitWrite(e)
		}
	case *ast.Index:
		ex.visitIndexTarget(node, true)
		ex.visit(node.Index)
	default:
		ex.visit(n)
	}
}

func (ex *extractor) methodName(node *ast.MethodCall) string {
	// Class->method gets a qualified reference so the workspace index
	// can find it directly.
	if id, ok := node.Object.(*ast.Identifier); ok {
		return id.Name + "::" + node.Method
	}
	return node.Method
}

func (ex *extractor) scanInterpolations(body string, base int) {
	for _, in := range lexer.ScanInterpolations(body) {
		kind, ok := KindForSigil(string(in.Sigil))
		if !ok {
			continue
		}
		if isSpecialVariable(in.Name) {
			continue
		}
		ex.addReference(&Reference{
			Name:  in.Name,
			Kind:  kind,
			Loc:   ast.Span{Start: base + in.Start, End: base + in.End},
			Scope: ex.scope(),
		})
	}
}

func qualify(pkg, name string) string {
	if strings.Contains(name, "::") {
		return name
	}
	return pkg + "::" + name
}

// isSpecialVariable filters punctuation variables and the common implicit
// globals that would pollute reference lists.
func isSpecialVariable(name string) bool {
	switch name {
	case "_", "0", "a", "b", "ARGV", "ENV", "INC", "STDIN", "STDOUT", "STDERR":
		return true
	}
	if len(name) == 1 && !isAlpha(name[0]) {
		return true
	}
	if len(name) > 0 && name[0] >= '0' && name[0] <= '9' {
		return true
	}
	return false
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}
