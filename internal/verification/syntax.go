package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

// SyntaxCheck parses generated source files. Any parse error fails the
// check with a score of 0.
type SyntaxCheck struct {
	files   FileReader
	exclude []string
}

func (c *SyntaxCheck) Name() models.CheckName { return models.CheckSyntax }

func (c *SyntaxCheck) Applies(res *models.ExecutionResult) bool {
	return res.Type == models.SubtaskTypeCode
}

func (c *SyntaxCheck) Run(ctx context.Context, _ models.Subtask, res *models.ExecutionResult) models.CheckResult {
	out := models.CheckResult{Passed: true, Score: 100}
	for _, f := range res.Files {
		if excluded(c.exclude, f.Path) {
			continue
		}
		content, err := contentOf(c.files, f)
		if err != nil {
			out.Issues = append(out.Issues, models.Issue{
				Type:     "verification-error",
				Message:  fmt.Sprintf("read %s: %v", f.Path, err),
				File:     f.Path,
				Severity: models.SeverityHigh,
			})
			continue
		}
		if issue := checkSyntax(ctx, f.Path, []byte(content)); issue != nil {
			out.Issues = append(out.Issues, *issue)
		}
	}
	if len(out.Issues) > 0 {
		out.Passed = false
		out.Score = 0
	}
	return out
}

// languageFor maps a file extension to its tree-sitter grammar.
func languageFor(file string) *sitter.Language {
	switch strings.ToLower(path.Ext(file)) {
	case ".go":
		return golang.GetLanguage()
	case ".py":
		return python.GetLanguage()
	case ".js", ".cjs", ".mjs", ".jsx":
		return javascript.GetLanguage()
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	default:
		return nil
	}
}

// checkSyntax returns an issue for the first syntax error in content, or nil
// when it parses or the language is not supported.
func checkSyntax(ctx context.Context, file string, content []byte) *models.Issue {
	if strings.EqualFold(path.Ext(file), ".json") {
		if json.Valid(content) {
			return nil
		}
		return &models.Issue{
			Type:     "syntax-error",
			Message:  "invalid JSON",
			File:     file,
			Severity: models.SeverityCritical,
		}
	}

	lang := languageFor(file)
	if lang == nil {
		return nil
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return &models.Issue{
			Type:     "verification-error",
			Message:  fmt.Sprintf("parse %s: %v", file, err),
			File:     file,
			Severity: models.SeverityHigh,
		}
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	issue := &models.Issue{
		Type:     "syntax-error",
		Message:  "syntax error",
		File:     file,
		Severity: models.SeverityCritical,
	}
	if n := firstError(root); n != nil {
		issue.Line = int(n.StartPoint().Row) + 1
		if n.IsMissing() {
			issue.Message = fmt.Sprintf("missing %s", n.Type())
		} else {
			issue.Message = fmt.Sprintf("unexpected %q", truncateLine(n.Content(content)))
		}
	}
	return issue
}

// firstError returns the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func truncateLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

func excluded(patterns []string, file string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, file); ok {
			return true
		}
	}
	return false
}
