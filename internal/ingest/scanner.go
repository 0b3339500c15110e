// Package ingest turns a directory of civic record files into searchable
// records: it scans the corpus, parses front matter, indexes both engine
// variants, and keeps the record store in sync with the filesystem.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxFileSize is the largest corpus file Scan will pick up (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// FileInfo describes a corpus file discovered by Scan.
type FileInfo struct {
	// Path is relative to the corpus root.
	Path string

	// AbsPath is the absolute path on disk.
	AbsPath string

	Size    int64
	ModTime time.Time
}

// ScanOptions configures a corpus walk.
type ScanOptions struct {
	// RootDir is the corpus root directory.
	RootDir string

	// IncludePatterns selects files relative to the root.
	// Empty means every .md and .txt file.
	IncludePatterns []string

	// ExcludePatterns removes files from the selection.
	ExcludePatterns []string

	// MaxFileSize caps file size in bytes (0 = 10MB default).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool
}

// ScanResult is streamed from the scan channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// Directories never walked, regardless of configuration.
var defaultExcludeDirs = []string{
	"**/.git/**",
	"**/.cividex/**",
	"**/node_modules/**",
}

// Files never picked up, regardless of configuration.
var defaultExcludeFiles = []string{
	"**/*.tmp",
	"**/*.bak",
}

// Scan discovers corpus files under opts.RootDir and streams them on the
// returned channel. The channel is closed when the walk completes.
func Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	results := make(chan ScanResult, 64)

	go func() {
		defer close(results)
		walkCorpus(ctx, absRoot, opts, maxFileSize, results)
	}()

	return results, nil
}

// walkCorpus performs the directory traversal.
func walkCorpus(ctx context.Context, absRoot string, opts *ScanOptions, maxFileSize int64, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip files we can't access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		// Skip root directory itself
		if relPath == "." {
			return nil
		}

		if d.IsDir() {
			if shouldExcludeDir(relPath, opts) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}

		if shouldExcludeFile(relPath, opts) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if info.Size() > maxFileSize {
			return nil
		}

		if len(opts.IncludePatterns) > 0 {
			if !matchesAnyPattern(relPath, opts.IncludePatterns) {
				return nil
			}
		} else if !isCorpusFile(relPath) {
			return nil
		}

		if isBinaryFile(path) {
			return nil
		}

		fileInfo := &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		select {
		case results <- ScanResult{File: fileInfo}:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// isCorpusFile reports whether the path has a record file extension.
func isCorpusFile(relPath string) bool {
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".md", ".txt":
		return true
	}
	return false
}

// shouldExcludeDir checks if a directory should be skipped entirely.
func shouldExcludeDir(relPath string, opts *ScanOptions) bool {
	for _, pattern := range defaultExcludeDirs {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

// shouldExcludeFile checks if a file should be excluded.
func shouldExcludeFile(relPath string, opts *ScanOptions) bool {
	baseName := filepath.Base(relPath)

	for _, pattern := range defaultExcludeFiles {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

// matchDirPattern checks if a directory path matches a pattern.
// Supports **/name/** (any depth), name/** (root anchored), and plain
// path prefixes.
func matchDirPattern(relPath, pattern string) bool {
	if strings.HasPrefix(pattern, "**/") {
		name := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(relPath, string(filepath.Separator)) {
			if part == name {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	return relPath == pattern || strings.HasPrefix(relPath, pattern+string(filepath.Separator))
}

// matchFilePattern checks if a file matches a pattern.
func matchFilePattern(baseName, relPath, pattern string) bool {
	// dir/** patterns match everything below the directory
	if strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	// **/ prefix patterns match against the base name at any depth
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasPrefix(suffix, "*.") {
			return strings.HasSuffix(baseName, strings.TrimPrefix(suffix, "*"))
		}
		if !strings.ContainsAny(suffix, "*?[") {
			return baseName == suffix
		}
		matched, err := filepath.Match(suffix, baseName)
		return err == nil && matched
	}

	// *suffix patterns
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(baseName, strings.TrimPrefix(pattern, "*"))
	}

	// prefix* patterns
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(baseName, strings.TrimSuffix(pattern, "*"))
	}

	// Patterns with a directory component match the full relative path
	if strings.Contains(pattern, string(filepath.Separator)) {
		return relPath == pattern
	}

	return baseName == pattern
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func matchesAnyPattern(relPath string, patterns []string) bool {
	baseName := filepath.Base(relPath)
	for _, pattern := range patterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

// isBinaryFile checks if a file is binary by looking for null bytes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}

	return bytes.Contains(buf[:n], []byte{0})
}
