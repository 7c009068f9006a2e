package terms

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed templates/*.txt
var builtin embed.FS

// BuiltinTemplates returns the contract templates shipped with the binary,
// keyed by file name without extension.
func BuiltinTemplates() map[string]string {
	out, err := readTemplates(builtin, "templates")
	if err != nil {
		panic(fmt.Sprintf("embedded contract templates: %v", err))
	}
	return out
}

// LoadTemplates returns the built-in templates overlaid with every *.txt file
// in dir. An empty dir yields the built-in set.
func LoadTemplates(dir string) (map[string]string, error) {
	out := BuiltinTemplates()
	if dir == "" {
		return out, nil
	}
	extra, err := readTemplates(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("load contract templates from %s: %w", dir, err)
	}
	for id, text := range extra {
		out[id] = text
	}
	return out, nil
}

func readTemplates(fsys fs.FS, dir string) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, errors.New(e.Name() + " is empty")
		}
		out[strings.TrimSuffix(e.Name(), ".txt")] = text
	}
	return out, nil
}
