// Package workspace scaffolds a Python machine-learning project: the folder
// layout, starter files, notebook templates and a virtual environment.
package workspace

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"devsetup/internal/config"
	"devsetup/internal/logger"
	"devsetup/internal/runner"
)

// Dirs are created under the workspace root.
var Dirs = []string{
	"data/raw",
	"data/processed",
	"notebooks",
	"models",
	"src",
	"outputs",
}

const gitignore = `# Python
__pycache__/
*.py[cod]
.venv/
.ipynb_checkpoints/

# Data and artifacts
data/raw/
data/processed/
models/
outputs/

.env
.DS_Store
`

// Result lists what Create did.
type Result struct {
	Created []string // files and directories written
	Skipped []string // files left alone because they already existed
	Venv    bool     // a virtual environment was created
}

// Generator builds a workspace.
type Generator struct {
	cfg config.Workspace
	run runner.Runner
}

// New returns a generator that runs python through r.
func New(cfg config.Workspace, r runner.Runner) *Generator {
	return &Generator{cfg: cfg, run: r}
}

// Create scaffolds the workspace at cfg.Root. Existing files are never
// overwritten. A failing venv or pip step is returned as an error after the
// files are in place.
func (g *Generator) Create(ctx context.Context) (Result, error) {
	root := g.cfg.Root
	var res Result

	for _, d := range Dirs {
		p := filepath.Join(root, d)
		if err := os.MkdirAll(p, 0755); err != nil {
			return res, fmt.Errorf("create %s: %w", p, err)
		}
	}
	logger.Info("[INFO] Workspace layout ready in %s\n", root)

	files := []struct {
		rel  string
		body func() ([]byte, error)
	}{
		{"requirements.txt", func() ([]byte, error) { return []byte(strings.Join(g.cfg.Requirements, "\n") + "\n"), nil }},
		{".gitignore", func() ([]byte, error) { return []byte(gitignore), nil }},
		{"README.md", func() ([]byte, error) {
			return []byte(readme(filepath.Base(root), cmp.Or(g.cfg.Python, "python3"))), nil
		}},
		{"notebooks/01_exploration.ipynb", func() ([]byte, error) { return explorationNotebook() }},
		{"notebooks/02_modeling.ipynb", func() ([]byte, error) { return modelingNotebook() }},
		{"src/__init__.py", func() ([]byte, error) { return nil, nil }},
	}
	for _, f := range files {
		path := filepath.Join(root, f.rel)
		created, err := writeNew(path, f.body)
		if err != nil {
			return res, err
		}
		if created {
			res.Created = append(res.Created, f.rel)
			logger.Info("[INFO] Created %s\n", f.rel)
		} else {
			res.Skipped = append(res.Skipped, f.rel)
			logger.Info("[INFO] %s already exists; leaving it unchanged\n", f.rel)
		}
	}

	if g.cfg.Python == "" {
		logger.Info("[INFO] No Python interpreter configured; skipping the virtual environment\n")
		return res, nil
	}

	venv := filepath.Join(root, ".venv")
	if _, err := os.Stat(venv); err == nil {
		logger.Info("[INFO] Virtual environment already exists\n")
	} else {
		logger.Info("[INFO] Creating virtual environment with %s\n", g.cfg.Python)
		if _, err := g.run.Run(ctx, runner.Command(g.cfg.Python, "-m", "venv", venv)); err != nil {
			return res, fmt.Errorf("create virtual environment: %w", err)
		}
		res.Venv = true
	}

	if g.cfg.InstallRequirements && len(g.cfg.Requirements) > 0 {
		pip := filepath.Join(venv, "bin", "pip")
		logger.Info("[INFO] Installing requirements (this can take a while)\n")
		cmd := runner.Command(pip, "install", "-r", filepath.Join(root, "requirements.txt"))
		cmd.Dir = root
		if _, err := g.run.Run(ctx, cmd); err != nil {
			return res, fmt.Errorf("install requirements: %w", err)
		}
	}
	return res, nil
}

// writeNew writes path only when it does not exist yet.
func writeNew(path string, body func() ([]byte, error)) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	data, err := body()
	if err != nil {
		return false, err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func readme(name, python string) string {
	return fmt.Sprintf(`# %s

Machine-learning workspace generated by devsetup.

## Layout

| Path | Contents |
|---|---|
| data/raw | original, immutable data |
| data/processed | cleaned datasets |
| notebooks | exploration and modeling notebooks |
| models | trained model files |
| src | reusable Python code |
| outputs | figures and reports |

## Getting started

`+"```"+`sh
source .venv/bin/activate
pip install -r requirements.txt
jupyter lab
`+"```"+`

Recreate the environment with `+"`%s -m venv .venv`"+`.
`, name, python)
}

// Notebook cells follow nbformat 4.
type cell struct {
	CellType string         `json:"cell_type"`
	Metadata map[string]any `json:"metadata"`
	Source   []string       `json:"source"`
}

func markdown(lines ...string) cell {
	return cell{CellType: "markdown", Metadata: map[string]any{}, Source: sourceLines(lines)}
}

// code cells always carry execution_count (null) and outputs ([]).
type codeCell struct {
	CellType       string         `json:"cell_type"`
	Metadata       map[string]any `json:"metadata"`
	Source         []string       `json:"source"`
	ExecutionCount *int           `json:"execution_count"`
	Outputs        []any          `json:"outputs"`
}

func sourceLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if i < len(lines)-1 {
			l += "\n"
		}
		out[i] = l
	}
	return out
}

func encodeNotebook(cells ...any) ([]byte, error) {
	nb := struct {
		Cells         []any          `json:"cells"`
		Metadata      map[string]any `json:"metadata"`
		NBFormat      int            `json:"nbformat"`
		NBFormatMinor int            `json:"nbformat_minor"`
	}{
		Cells: cells,
		Metadata: map[string]any{
			"kernelspec": map[string]string{
				"display_name": "Python 3",
				"language":     "python",
				"name":         "python3",
			},
			"language_info": map[string]string{"name": "python"},
		},
		NBFormat:      4,
		NBFormatMinor: 4,
	}
	data, err := json.MarshalIndent(nb, "", " ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func code(lines ...string) codeCell {
	return codeCell{CellType: "code", Metadata: map[string]any{}, Source: sourceLines(lines), Outputs: []any{}}
}

func explorationNotebook() ([]byte, error) {
	return encodeNotebook(
		markdown("# Exploration", "", "Load the raw data and get a first look."),
		code("import pandas as pd", "import matplotlib.pyplot as plt", "", "pd.set_option('display.max_columns', 50)"),
		code("df = pd.read_csv('../data/raw/data.csv')", "df.head()"),
		code("df.describe(include='all')"),
	)
}

func modelingNotebook() ([]byte, error) {
	return encodeNotebook(
		markdown("# Modeling", "", "Train a baseline and record its score."),
		code("import pandas as pd", "from sklearn.model_selection import train_test_split", "from sklearn.linear_model import LogisticRegression"),
		code("df = pd.read_csv('../data/processed/train.csv')", "X, y = df.drop(columns=['target']), df['target']",
			"X_train, X_test, y_train, y_test = train_test_split(X, y, test_size=0.2, random_state=42)"),
		code("model = LogisticRegression(max_iter=1000).fit(X_train, y_train)", "model.score(X_test, y_test)"),
	)
}
