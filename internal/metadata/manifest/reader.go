package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/codegraph/internal/metadata"
)

// Extensions lists the file extensions recognized as manifests
var Extensions = []string{".yaml", ".yml", ".json"}

// Reader opens manifest files
type Reader struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewReader creates a manifest reader. A nil logger disables logging.
func NewReader(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		validate: validator.New(),
		logger:   logger,
	}
}

// IsManifest reports whether path has a manifest extension
func IsManifest(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range Extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// Open reads and validates the manifest at path
func (r *Reader) Open(path string) (metadata.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	module, err := r.Parse(data, path)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("opened manifest",
		zap.String("path", path),
		zap.String("module", module.Name()),
		zap.Int("types", len(module.types)))
	return module, nil
}

// Parse decodes manifest bytes; path is recorded as the module path
func (r *Reader) Parse(data []byte, path string) (*Module, error) {
	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if err := r.validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	return newModule(&file, path)
}

// Locate looks for a manifest called name in the directory of sourcePath,
// preferring the extension of sourcePath
func (r *Reader) Locate(sourcePath, name string) (string, bool) {
	dir := filepath.Dir(sourcePath)
	exts := append([]string{filepath.Ext(sourcePath)}, Extensions...)
	for _, ext := range exts {
		if ext == "" {
			continue
		}
		candidate := filepath.Join(dir, name+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
