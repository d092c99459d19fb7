// Package corpus discovers and loads the markdown knowledge base.
//
// Documents are identified by their path relative to the KB root, with
// forward slashes on every platform. Load returns documents sorted by
// path so downstream chunking and indexing see a deterministic order.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-access-policies/policy-crew/internal/config"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// Document is one loaded knowledge base file.
type Document struct {
	// Path is relative to the KB root, forward slashes.
	Path    string
	Content string
	Size    int64
}

// Loader discovers files under a KB root by glob patterns.
type Loader struct {
	kbDir    string
	globs    []string
	exclude  []string
	maxFiles int
	logger   *slog.Logger
}

// NewLoader creates a Loader for the given KB root.
func NewLoader(kbDir string, cfg config.LoaderConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		kbDir:    kbDir,
		globs:    cfg.Globs,
		exclude:  cfg.Exclude,
		maxFiles: cfg.MaxFiles,
		logger:   logger,
	}
}

// Load walks the KB root and reads every file that matches an include
// glob and no exclude pattern. Results are sorted by path; when
// max_files is positive the sorted list is truncated to that many
// documents.
func (l *Loader) Load(ctx context.Context) ([]Document, error) {
	absRoot, err := filepath.Abs(l.kbDir)
	if err != nil {
		return nil, herrors.ValidationError("cannot resolve knowledge base path "+l.kbDir, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, herrors.Newf(herrors.ErrCodeInvalidInput,
			"knowledge base directory not found: %s", l.kbDir).
			WithSuggestion("Check paths.kb_dir or set RAG_KB_DIR")
	}
	if !info.IsDir() {
		return nil, herrors.Newf(herrors.ErrCodeInvalidInput,
			"knowledge base path is not a directory: %s", l.kbDir)
	}

	var paths []string
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we cannot access
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matchesAny(rel+"/", l.exclude) || matchesAny(rel, l.exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !matchesAny(rel, l.globs) {
			return nil
		}
		if matchesAny(rel, l.exclude) {
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if walkErr != nil {
		return nil, herrors.ValidationError("knowledge base walk failed", walkErr)
	}

	sort.Strings(paths)

	total := len(paths)
	if l.maxFiles > 0 && len(paths) > l.maxFiles {
		paths = paths[:l.maxFiles]
		l.logger.Warn("corpus truncated by max_files",
			slog.Int("matched", total),
			slog.Int("loaded", l.maxFiles))
	}

	docs := make([]Document, 0, len(paths))
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(absRoot, filepath.FromSlash(rel)))
		if err != nil {
			l.logger.Warn("skipping unreadable file",
				slog.String("path", rel),
				slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, Document{
			Path:    rel,
			Content: string(data),
			Size:    int64(len(data)),
		})
	}

	l.logger.Debug("corpus loaded",
		slog.String("kb_dir", l.kbDir),
		slog.Int("documents", len(docs)))

	return docs, nil
}

// matchesAny reports whether the slash-separated relative path matches
// any of the patterns.
func matchesAny(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

// matchPattern matches one glob pattern against a slash-separated
// relative path. Supported forms: "**/*.ext", "**/name/**", "dir/**",
// "*.ext", and exact paths. This covers the loader configuration
// surface without pulling in a full glob engine.
func matchPattern(relPath, pattern string) bool {
	relPath = strings.TrimSuffix(relPath, "/")
	base := relPath
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		base = relPath[i+1:]
	}

	// "**/name/**": any path containing the segment.
	if strings.HasPrefix(pattern, "**/") && strings.HasSuffix(pattern, "/**") {
		segment := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(relPath, "/") {
			if part == segment {
				return true
			}
		}
		return false
	}

	// "**/*.ext": extension match at any depth.
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasPrefix(suffix, "*") {
			return strings.HasSuffix(base, strings.TrimPrefix(suffix, "*"))
		}
		return base == suffix || strings.HasSuffix(relPath, "/"+suffix)
	}

	// "dir/**": the directory itself or anything under it.
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
	}

	// "*.ext": extension match on the base name.
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(base, strings.TrimPrefix(pattern, "*"))
	}

	return relPath == pattern || base == pattern
}

// Fingerprint hashes the corpus identity: every document path and
// content, in sorted order. Persisted indexes are reused only while
// this value is unchanged.
func Fingerprint(docs []Document) string {
	h := sha256.New()
	for _, doc := range docs {
		h.Write([]byte(doc.Path))
		h.Write([]byte{0})
		h.Write([]byte(doc.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
