package commands

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/codegraph/internal/metadata"
	"github.com/conduit-lang/codegraph/internal/metadata/gosource"
	"github.com/conduit-lang/codegraph/internal/metadata/manifest"
)

// inputReader opens each input with the reader for its kind: Go modules
// (a go.mod or a directory holding one) or metadata manifests
type inputReader struct {
	modules   *gosource.Reader
	manifests *manifest.Reader
}

func newInputReader(logger *zap.Logger) *inputReader {
	return &inputReader{
		modules:   gosource.NewReader(logger),
		manifests: manifest.NewReader(logger),
	}
}

func (r *inputReader) Open(path string) (metadata.Module, error) {
	reader, err := r.readerFor(path)
	if err != nil {
		return nil, err
	}
	return reader.Open(path)
}

func (r *inputReader) Locate(sourcePath, name string) (string, bool) {
	reader, err := r.readerFor(sourcePath)
	if err != nil {
		return "", false
	}
	return reader.Locate(sourcePath, name)
}

func (r *inputReader) readerFor(path string) (metadata.Reader, error) {
	switch {
	case gosource.IsModule(path):
		return r.modules, nil
	case manifest.IsManifest(path):
		return r.manifests, nil
	default:
		return nil, fmt.Errorf("%s is neither a Go module nor a manifest (%v)", path, manifest.Extensions)
	}
}

// inputKind names the reader used for path
func inputKind(path string) string {
	switch {
	case gosource.IsModule(path):
		return "go module"
	case manifest.IsManifest(path):
		return "manifest"
	default:
		return "unknown"
	}
}
