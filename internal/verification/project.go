package verification

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Project describes how a repository is tested and linted.
type Project struct {
	Type        string // "go", "node", "rust", "python", "unknown"
	TestCommand string
	LintCommand string
}

// DetectProject inspects the repository root for well-known build files.
// Commands are empty when nothing suitable is found.
func DetectProject(root string) Project {
	switch {
	case fileExistsAtPath(filepath.Join(root, "go.mod")):
		p := Project{Type: "go", TestCommand: "go test ./..."}
		if hasExecutable("golangci-lint") {
			p.LintCommand = "golangci-lint run --out-format json ./..."
		}
		return p

	case fileExistsAtPath(filepath.Join(root, "Cargo.toml")):
		return Project{Type: "rust", TestCommand: "cargo test"}

	case fileExistsAtPath(filepath.Join(root, "pyproject.toml")) ||
		fileExistsAtPath(filepath.Join(root, "setup.py")) ||
		fileExistsAtPath(filepath.Join(root, "requirements.txt")):
		p := Project{Type: "python", TestCommand: "python -m unittest discover"}
		if dirExists(filepath.Join(root, "tests")) || fileExistsAtPath(filepath.Join(root, "pytest.ini")) {
			p.TestCommand = "pytest"
		}
		return p

	case fileExistsAtPath(filepath.Join(root, "package.json")):
		p := Project{Type: "node", TestCommand: "npm test"}
		pkg, _ := os.ReadFile(filepath.Join(root, "package.json"))
		content := string(pkg)
		switch {
		case strings.Contains(content, `"test"`):
		case strings.Contains(content, "jest"):
			p.TestCommand = "npx jest"
		case strings.Contains(content, "vitest"):
			p.TestCommand = "npx vitest run"
		case strings.Contains(content, "mocha"):
			p.TestCommand = "npx mocha"
		}
		if strings.Contains(content, "eslint") {
			p.LintCommand = "npx eslint . --format json"
		}
		return p

	default:
		return Project{Type: "unknown"}
	}
}

func fileExistsAtPath(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func hasExecutable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
