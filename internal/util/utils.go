// Package util holds small path and file-discovery helpers shared by
// internal/extractor, covering the two source kinds the extractor ever
// walks: .java sources and compiled .class files.
package util

import (
	"path/filepath"
	"strings"
)

// ShouldSkipDirectory reports whether a directory should be excluded
// from extraction traversal (VCS metadata, build output, hidden dirs).
func ShouldSkipDirectory(path string) bool {
	skipDirs := []string{
		".git", "target", "build", "out", ".idea", ".vscode",
	}

	baseName := filepath.Base(path)
	for _, skip := range skipDirs {
		if baseName == skip {
			return true
		}
	}

	return len(baseName) > 0 && baseName[0] == '.' && baseName != "." && baseName != ".."
}

// ShouldSkipFile reports whether filePath should be excluded from
// extraction: anything that is not a .java source or a .class file.
func ShouldSkipFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return ext != ".java" && ext != ".class"
}

// IsJavaSource reports whether filePath is a .java source file, as
// opposed to an already-compiled .class file.
func IsJavaSource(filePath string) bool {
	return strings.ToLower(filepath.Ext(filePath)) == ".java"
}

// ToRelativePath returns fullPath relative to rootPath, or fullPath
// unchanged if it cannot be made relative.
func ToRelativePath(rootPath, fullPath string) string {
	relPath, err := filepath.Rel(rootPath, fullPath)
	if err != nil {
		return fullPath
	}
	return relPath
}
