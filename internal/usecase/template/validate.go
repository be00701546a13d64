package template

import (
	"fmt"

	"github.com/aymerick/raymond/ast"
	"github.com/aymerick/raymond/parser"
)

// contextRoots are the names resolvable from the render context.
var contextRoots = map[string]bool{
	"arguments": true,
	"user":      true,
	"channel":   true,
	"vars":      true,
}

// coreHelpers are the block helpers raymond registers globally.
var coreHelpers = map[string]bool{
	"if":     true,
	"unless": true,
	"with":   true,
	"each":   true,
	"log":    true,
	"lookup": true,
	"equal":  true,
}

// helperNames must list every helper registerHelpers installs.
var helperNames = map[string]bool{
	"args":         true,
	"username":     true,
	"concat":       true,
	"trim_matches": true,
	"choose":       true,
	"sleep":        true,
	"set":          true,
	"data_get":     true,
	"data_set":     true,
	"channel_get":  true,
	"channel_set":  true,
	"say":          true,
	"timeout":      true,
	"script":       true,
	"get":          true,
	"json":         true,
	"song":         true,
	"lastfm":       true,
	"translate":    true,
	"weather":      true,
	"stock":        true,
}

// validateSource rejects templates referencing a helper that does not exist.
// raymond resolves unknown names as missing context paths and renders them
// empty, which would make a typo like {{chose ...}} vanish without a trace.
func validateSource(source string) error {
	program, err := parser.Parse(source)
	if err != nil {
		return err
	}
	return validateNode(program, false)
}

// validateNode walks the template. scoped is true inside block bodies, where
// bare names resolve against the block's own context and cannot be checked
// statically.
func validateNode(node ast.Node, scoped bool) error {
	switch n := node.(type) {
	case *ast.Program:
		for _, body := range n.Body {
			if err := validateNode(body, scoped); err != nil {
				return err
			}
		}
	case *ast.MustacheStatement:
		return validateExpression(n.Expression, false, scoped)
	case *ast.BlockStatement:
		if err := validateExpression(n.Expression, true, scoped); err != nil {
			return err
		}
		if n.Program != nil {
			if err := validateNode(n.Program, true); err != nil {
				return err
			}
		}
		if n.Inverse != nil {
			if err := validateNode(n.Inverse, true); err != nil {
				return err
			}
		}
	case *ast.SubExpression:
		return validateExpression(n.Expression, false, scoped)
	}
	return nil
}

func validateExpression(expr *ast.Expression, block, scoped bool) error {
	if name := expr.HelperName(); name != "" {
		known := helperNames[name] || coreHelpers[name]
		called := block || len(expr.Params) > 0 || (expr.Hash != nil && len(expr.Hash.Pairs) > 0)
		switch {
		case called && !known:
			return fmt.Errorf("unknown helper %q", name)
		case !called && !known && !contextRoots[name] && !scoped:
			return fmt.Errorf("unknown helper %q", name)
		}
	} else if path, ok := expr.Path.(*ast.PathExpression); ok && !scoped {
		if !path.Data && !path.Scoped && path.Depth == 0 && len(path.Parts) > 0 && !contextRoots[path.Parts[0]] {
			return fmt.Errorf("unknown name %q", path.Parts[0])
		}
	}

	for _, param := range expr.Params {
		if err := validateNode(param, scoped); err != nil {
			return err
		}
	}
	if expr.Hash != nil {
		for _, pair := range expr.Hash.Pairs {
			if err := validateNode(pair.Val, scoped); err != nil {
				return err
			}
		}
	}
	return nil
}
