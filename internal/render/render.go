// Package render recovers source-level text for the code property of
// body nodes when the extractor was handed .java sources rather than
// bare class files. Parsing goes through tree-sitter with the Java
// grammar; a bytecode-only input has no Source and keeps the
// lowering's synthetic rendering.
package render

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
)

// Source is one parsed Java compilation unit, queryable by position.
// Close must be called when the extraction of its file is done.
type Source struct {
	content []byte
	tree    *tree_sitter.Tree
	lines   []string
}

// Parse parses content as Java source.
func Parse(content []byte) (*Source, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(tree_sitter.NewLanguage(java.Language())); err != nil {
		return nil, fmt.Errorf("set java grammar: %w", err)
	}
	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse java source: no tree produced")
	}
	return &Source{
		content: content,
		tree:    tree,
		lines:   strings.Split(string(content), "\n"),
	}, nil
}

// Close releases the parse tree.
func (s *Source) Close() {
	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
}

// Line returns the trimmed text of the 1-based source line n, or ""
// when n is out of range.
func (s *Source) Line(n int) string {
	if n < 1 || n > len(s.lines) {
		return ""
	}
	return strings.TrimSpace(s.lines[n-1])
}

// ExprAt returns the source text of the expression or statement
// starting at the given 1-based line/column: the highest syntax node
// whose start position is exactly there. Returns "" when no node
// starts at that position (e.g. a position inside a token).
func (s *Source) ExprAt(line, col int) string {
	if s.tree == nil || line < 1 || col < 0 {
		return ""
	}
	point := tree_sitter.Point{Row: uint(line - 1), Column: uint(col)}
	node := s.tree.RootNode().NamedDescendantForPointRange(point, point)
	if node == nil || node.StartPosition() != point {
		return ""
	}
	// Climb to the outermost node anchored at the same position, so a
	// query at the start of "a = a + b;" yields the whole statement
	// rather than the identifier token "a".
	for {
		parent := node.Parent()
		if parent == nil || parent.StartPosition() != point || parent.Kind() == "program" {
			break
		}
		node = parent
	}
	text := string(s.content[node.StartByte():node.EndByte()])
	return strings.TrimRight(strings.TrimSpace(text), ";")
}
