// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesByExtension searches the given root path for all files ending with
// the specified extension and returns their full paths in lexical order. When
// recursive is false only the files directly inside rootPath are returned.
func FindFilesByExtension(rootPath string, extension string, recursive bool) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// ResolveModelFile turns a bare model name into a file path inside dir. A
// name without a .json or .dtdl suffix gets .json appended.
func ResolveModelFile(dir, name string) string {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".json") && !strings.HasSuffix(lower, ".dtdl") {
		name += ".json"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Exists reports whether path exists on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
