package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options controls how a file is turned into a Dataset.
type Options struct {
	// Delimiter for CSV. If 0, ".tsv" files use tab and everything else
	// is sniffed from the header line among ',', ';', '\t'.
	Delimiter rune
	// Sheet selects an XLSX sheet by name; SheetIndex (1-based) is used
	// when Sheet is empty. Both zero means the first sheet.
	Sheet      string
	SheetIndex int
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
}

// Loader turns raw file content into a Dataset.
type Loader interface {
	CanLoad(filename string) bool
	Load(name string, content []byte, opt Options) (*Dataset, error)
}

var registry []Loader

// Register adds a loader implementation to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

// ErrUnsupported indicates no loader accepts the file extension.
var ErrUnsupported = errors.New("unsupported dataset format")

// LoadFile reads path and picks a loader by extension.
func LoadFile(path string, opt Options) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return LoadBytes(filepath.Base(path), data, opt)
}

// LoadBytes picks a loader by the extension of name. Uploaded content
// without a known extension is treated as CSV.
func LoadBytes(name string, data []byte, opt Options) (*Dataset, error) {
	for _, l := range registry {
		if l.CanLoad(name) {
			return l.Load(name, data, opt)
		}
	}
	if filepath.Ext(name) == "" {
		return csvLoader{}.Load(name, data, opt)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, strings.ToLower(filepath.Ext(name)))
}

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
}
