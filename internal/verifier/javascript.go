package verifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/funcgen/api/internal/models"
)

// Rule identifiers reported in diagnostics
const (
	RuleParse       = "parse-error"
	RuleSemi        = "semi"
	RuleUndeclared  = "no-undef"
	RuleUnreachable = "no-unreachable"
	RuleUnused      = "no-unused-vars"
	RuleQuotes      = "quotes"
)

// statements that must end with an explicit semicolon
var terminatedStatements = map[string]bool{
	"expression_statement": true,
	"return_statement":     true,
	"lexical_declaration":  true,
	"variable_declaration": true,
	"throw_statement":      true,
	"break_statement":      true,
	"continue_statement":   true,
	"debugger_statement":   true,
	"import_statement":     true,
}

var jumpStatements = map[string]bool{
	"return_statement":   true,
	"throw_statement":    true,
	"break_statement":    true,
	"continue_statement": true,
}

var hoisted = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"empty_statement":                true,
	"comment":                        true,
}

var defaultGlobals = []string{
	// language
	"undefined", "NaN", "Infinity", "globalThis", "arguments", "eval",
	"isNaN", "isFinite", "parseInt", "parseFloat",
	"encodeURI", "encodeURIComponent", "decodeURI", "decodeURIComponent", "escape", "unescape",
	"Object", "Function", "Array", "String", "Number", "Boolean", "Symbol", "BigInt",
	"Math", "JSON", "Date", "RegExp", "Promise", "Proxy", "Reflect", "Intl",
	"Map", "Set", "WeakMap", "WeakSet", "WeakRef", "FinalizationRegistry",
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError", "EvalError", "URIError", "AggregateError",
	"ArrayBuffer", "SharedArrayBuffer", "DataView", "Atomics",
	"Int8Array", "Uint8Array", "Uint8ClampedArray", "Int16Array", "Uint16Array",
	"Int32Array", "Uint32Array", "Float32Array", "Float64Array", "BigInt64Array", "BigUint64Array",
	// host
	"console", "setTimeout", "clearTimeout", "setInterval", "clearInterval",
	"setImmediate", "clearImmediate", "queueMicrotask", "structuredClone",
	"fetch", "URL", "URLSearchParams", "TextEncoder", "TextDecoder",
	"AbortController", "AbortSignal", "Headers", "Request", "Response", "FormData", "Blob",
	"Event", "EventTarget", "WebSocket", "atob", "btoa", "crypto", "performance",
	"window", "document", "navigator", "localStorage", "sessionStorage", "alert",
	"require", "module", "exports", "process", "Buffer", "global", "__dirname", "__filename",
}

// JavaScript validates JavaScript sources with tree-sitter. It reports parse
// errors, missing semicolons, undeclared identifiers, unreachable code,
// unused bindings (as warnings) and inconsistent string quotes.
type JavaScript struct {
	globals map[string]bool
}

// NewJavaScript creates a validator that accepts the common ECMAScript,
// browser and Node.js globals
func NewJavaScript(extraGlobals ...string) *JavaScript {
	globals := make(map[string]bool, len(defaultGlobals)+len(extraGlobals))
	for _, g := range defaultGlobals {
		globals[g] = true
	}
	for _, g := range extraGlobals {
		globals[g] = true
	}
	return &JavaScript{globals: globals}
}

// Validate parses code and returns its diagnostics ordered by position
func (v *JavaScript) Validate(ctx context.Context, code string) ([]models.Diagnostic, error) {
	src := []byte(code)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse javascript: %w", err)
	}
	defer tree.Close()

	a := newAnalysis(src, v.globals)
	root := tree.RootNode()
	a.declare(root)
	a.inspect(root)
	a.reportUnused()

	sort.SliceStable(a.diags, func(i, j int) bool {
		if a.diags[i].Line != a.diags[j].Line {
			return a.diags[i].Line < a.diags[j].Line
		}
		return a.diags[i].Column < a.diags[j].Column
	})
	return a.diags, nil
}

type span struct {
	start, end uint32
}

func spanOf(n *sitter.Node) span {
	return span{start: n.StartByte(), end: n.EndByte()}
}

type binding struct {
	name string
	node *sitter.Node
	// top-level functions are the generated entry points and are never unused
	exported bool
}

type analysis struct {
	src     []byte
	globals map[string]bool

	declSites map[span]bool
	declared  map[string]bool
	bindings  []binding
	// parameter lists, checked with the after-used policy
	paramGroups [][]binding
	refs        map[string]int

	quote byte
	diags []models.Diagnostic
}

func newAnalysis(src []byte, globals map[string]bool) *analysis {
	return &analysis{
		src:       src,
		globals:   globals,
		declSites: make(map[span]bool),
		declared:  make(map[string]bool),
		refs:      make(map[string]int),
	}
}

func (a *analysis) report(n *sitter.Node, rule string, severity models.Severity, msg string) {
	p := n.StartPoint()
	a.diags = append(a.diags, models.Diagnostic{
		Rule:     rule,
		Message:  msg,
		Severity: severity,
		Line:     int(p.Row) + 1,
		Column:   int(p.Column) + 1,
	})
}

func (a *analysis) text(n *sitter.Node) string {
	return n.Content(a.src)
}

func children(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// declare records every binding in the program. Scoping is flat: a name
// declared anywhere counts as declared everywhere.
func (a *analysis) declare(n *sitter.Node) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "class_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			parent := n.Parent()
			topLevel := parent != nil && (parent.Type() == "program" || parent.Type() == "export_statement")
			a.bind(name, topLevel && n.Type() != "class_declaration")
		}
	case "function_expression", "function", "generator_function", "class":
		// the name of a function or class expression is only visible inside it
		if name := n.ChildByFieldName("name"); name != nil {
			a.bind(name, true)
		}
	case "variable_declarator":
		if name := n.ChildByFieldName("name"); name != nil {
			a.bindPattern(name, false)
		}
	case "formal_parameters":
		var group []binding
		for _, p := range children(n) {
			if !p.IsNamed() || p.Type() == "comment" {
				continue
			}
			before := len(a.bindings)
			a.bindPattern(p, false)
			group = append(group, a.bindings[before:]...)
			// parameters are tracked through their group only
			a.bindings = a.bindings[:before]
		}
		a.paramGroups = append(a.paramGroups, group)
	case "arrow_function":
		if p := n.ChildByFieldName("parameter"); p != nil {
			before := len(a.bindings)
			a.bindPattern(p, false)
			a.paramGroups = append(a.paramGroups, append([]binding(nil), a.bindings[before:]...))
			a.bindings = a.bindings[:before]
		}
	case "catch_clause":
		if p := n.ChildByFieldName("parameter"); p != nil {
			a.bindPattern(p, true)
		}
	case "for_in_statement":
		if declaresLoopVariable(n) {
			if left := n.ChildByFieldName("left"); left != nil {
				a.bindPattern(left, false)
			}
		}
	case "import_clause":
		a.bindPattern(n, false)
	}

	for _, c := range children(n) {
		a.declare(c)
	}
}

func declaresLoopVariable(n *sitter.Node) bool {
	if n.ChildByFieldName("kind") != nil {
		return true
	}
	for _, c := range children(n) {
		switch c.Type() {
		case "var", "let", "const":
			return true
		}
	}
	return false
}

func (a *analysis) bind(name *sitter.Node, exported bool) {
	a.declSites[spanOf(name)] = true
	a.declared[a.text(name)] = true
	a.bindings = append(a.bindings, binding{name: a.text(name), node: name, exported: exported})
}

// bindPattern binds every identifier introduced by a destructuring pattern.
// Default values are references and stay out of the binding set.
func (a *analysis) bindPattern(p *sitter.Node, exported bool) {
	switch p.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		a.bind(p, exported)
		return
	case "assignment_pattern", "object_assignment_pattern":
		if left := p.ChildByFieldName("left"); left != nil {
			a.bindPattern(left, exported)
		}
		return
	case "pair_pattern":
		if value := p.ChildByFieldName("value"); value != nil {
			a.bindPattern(value, exported)
		}
		return
	case "import_specifier":
		if alias := p.ChildByFieldName("alias"); alias != nil {
			a.bindPattern(alias, exported)
		} else if name := p.ChildByFieldName("name"); name != nil {
			a.bindPattern(name, exported)
		}
		return
	}
	for _, c := range children(p) {
		if c.IsNamed() {
			a.bindPattern(c, exported)
		}
	}
}

// inspect walks the tree once and applies the per-node rules
func (a *analysis) inspect(n *sitter.Node) {
	switch {
	case n.IsMissing():
		if n.Type() == ";" {
			a.report(n, RuleSemi, models.SeverityError, "Missing semicolon")
		} else {
			a.report(n, RuleParse, models.SeverityError, fmt.Sprintf("Missing %q", n.Type()))
		}
		return
	case n.Type() == "ERROR":
		a.report(n, RuleParse, models.SeverityError, fmt.Sprintf("Unexpected token %q", truncate(a.text(n), 20)))
	}

	t := n.Type()
	if terminatedStatements[t] && !n.HasError() {
		a.checkSemicolon(n)
	}

	switch t {
	case "identifier", "shorthand_property_identifier":
		a.checkReference(n)
	case "program", "statement_block", "switch_case", "switch_default":
		a.checkReachability(n)
	case "string":
		a.checkQuotes(n)
	}

	for _, c := range children(n) {
		a.inspect(c)
	}
}

func (a *analysis) checkSemicolon(n *sitter.Node) {
	count := int(n.ChildCount())
	if count == 0 {
		return
	}
	last := n.Child(count - 1)
	if last != nil && last.Type() == ";" && !last.IsMissing() {
		return
	}
	end := n.EndPoint()
	a.diags = append(a.diags, models.Diagnostic{
		Rule:     RuleSemi,
		Message:  "Missing semicolon",
		Severity: models.SeverityError,
		Line:     int(end.Row) + 1,
		Column:   int(end.Column) + 1,
	})
}

func (a *analysis) checkReference(n *sitter.Node) {
	if a.declSites[spanOf(n)] {
		return
	}
	name := a.text(n)
	a.refs[name]++

	if a.declared[name] || a.globals[name] {
		return
	}
	if parent := n.Parent(); parent != nil && parent.Type() == "unary_expression" {
		if op := parent.Child(0); op != nil && op.Type() == "typeof" {
			return
		}
	}
	a.report(n, RuleUndeclared, models.SeverityError, fmt.Sprintf("'%s' is not defined", name))
}

func (a *analysis) checkReachability(block *sitter.Node) {
	terminated := false
	for _, c := range children(block) {
		if !c.IsNamed() || !isStatement(c) {
			continue
		}
		if terminated {
			if hoisted[c.Type()] {
				continue
			}
			a.report(c, RuleUnreachable, models.SeverityError, "Unreachable code")
			return
		}
		if jumpStatements[c.Type()] {
			terminated = true
		}
	}
}

func isStatement(n *sitter.Node) bool {
	t := n.Type()
	return strings.HasSuffix(t, "_statement") || strings.HasSuffix(t, "_declaration")
}

func (a *analysis) checkQuotes(n *sitter.Node) {
	raw := a.text(n)
	if raw == "" {
		return
	}
	q := raw[0]
	if q != '\'' && q != '"' {
		return
	}
	if a.quote == 0 {
		a.quote = q
		return
	}
	if q == a.quote {
		return
	}
	// switching quotes is fine when it avoids escaping
	for i := 1; i < len(raw)-1; i++ {
		if raw[i] == a.quote {
			return
		}
	}
	style := "doublequote"
	if a.quote == '\'' {
		style = "singlequote"
	}
	a.report(n, RuleQuotes, models.SeverityError, "Strings must use "+style)
}

func (a *analysis) reportUnused() {
	for _, b := range a.bindings {
		if b.exported || a.refs[b.name] > 0 {
			continue
		}
		a.report(b.node, RuleUnused, models.SeverityWarning, fmt.Sprintf("'%s' is declared but never used", b.name))
	}

	for _, group := range a.paramGroups {
		lastUsed := -1
		for i, b := range group {
			if a.refs[b.name] > 0 {
				lastUsed = i
			}
		}
		for _, b := range group[lastUsed+1:] {
			a.report(b.node, RuleUnused, models.SeverityWarning, fmt.Sprintf("'%s' is defined but never used", b.name))
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
