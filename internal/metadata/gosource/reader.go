// Package gosource reads Go modules as metadata modules.
//
// A directory holding go.mod is one module. Its require lines are the
// module references; packages, types and call instructions come from the
// type checker and the SSA form of every package matched by "./...".
//
// Go has no namespaces or nested types, so a package import path is the
// namespace of its types and "/" separates namespace segments. Package
// level functions belong to no type and are not graphed.
package gosource

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/mod/modfile"

	"github.com/conduit-lang/codegraph/internal/metadata"
)

// Reader opens Go modules
type Reader struct {
	logger *zap.Logger
}

// NewReader creates a Go module reader. A nil logger disables logging.
func NewReader(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{logger: logger}
}

// IsModule reports whether path is a go.mod file or a directory holding one
func IsModule(path string) bool {
	return isFile(modFilePath(path))
}

// Open reads the go.mod of the module at path. Packages are loaded on the
// first call to Types.
func (r *Reader) Open(path string) (metadata.Module, error) {
	gomod := modFilePath(path)
	mf, err := parseModFile(gomod)
	if err != nil {
		return nil, err
	}

	var refs []string
	for _, req := range mf.Require {
		if req.Indirect {
			continue
		}
		refs = append(refs, req.Mod.Path)
	}

	r.logger.Debug("opened go module",
		zap.String("path", gomod),
		zap.String("module", mf.Module.Mod.Path),
		zap.Int("requires", len(refs)))

	return &Module{
		logger:     r.logger,
		name:       mf.Module.Mod.Path,
		path:       gomod,
		dir:        filepath.Dir(gomod),
		references: refs,
	}, nil
}

// Locate finds the module called name through a local replace directive of
// the source module, or as a sibling directory named after the last
// element of name
func (r *Reader) Locate(sourcePath, name string) (string, bool) {
	gomod := modFilePath(sourcePath)
	dir := filepath.Dir(gomod)

	if mf, err := parseModFile(gomod); err == nil {
		for _, rep := range mf.Replace {
			// a versioned replacement points at the module cache, not a directory
			if rep.Old.Path != name || rep.New.Version != "" {
				continue
			}
			target := rep.New.Path
			if !filepath.IsAbs(target) {
				target = filepath.Join(dir, target)
			}
			if candidate := filepath.Join(target, "go.mod"); isFile(candidate) {
				return candidate, true
			}
		}
	}

	candidate := filepath.Join(filepath.Dir(dir), path.Base(name), "go.mod")
	if !isFile(candidate) {
		return "", false
	}
	mf, err := parseModFile(candidate)
	if err != nil || mf.Module.Mod.Path != name {
		return "", false
	}
	return candidate, true
}

func parseModFile(gomod string) (*modfile.File, error) {
	data, err := os.ReadFile(gomod)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", gomod, err)
	}
	mf, err := modfile.Parse(gomod, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", gomod, err)
	}
	if mf.Module == nil {
		return nil, fmt.Errorf("%s has no module directive", gomod)
	}
	return mf, nil
}

// modFilePath maps a module directory to its go.mod
func modFilePath(path string) string {
	if filepath.Base(path) == "go.mod" {
		return path
	}
	return filepath.Join(path, "go.mod")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
