// Package storage writes PDF attachments to a local, date-partitioned
// directory tree and enforces the retention window.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/logger"
)

const (
	dateDirLayout   = "2006-01-02"
	maxFilenameLen  = 180
	defaultFilename = "document.pdf"
)

var illegalFilenameRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
var collapseSpacesRe = regexp.MustCompile(`\s+`)

type LocalStore struct {
	baseDir string
	log     logger.Logger
}

// NewLocalStore creates the base directory up front so the first message
// never races directory creation.
func NewLocalStore(baseDir string, log logger.Logger) (*LocalStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve home directory")
		}
		baseDir = filepath.Join(home, "shipmail", "attachments")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create attachments dir")
	}
	return &LocalStore{baseDir: baseDir, log: log}, nil
}

func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Save writes the content under <base>/<YYYY-MM-DD>/ with a sanitized,
// collision-free name and returns the stored metadata.
func (s *LocalStore) Save(when time.Time, filename string, content []byte) (*interfaces.SavedDocument, error) {
	dateDir := filepath.Join(s.baseDir, when.Format(dateDirLayout))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create date dir")
	}

	safeName := uniqueName(dateDir, SanitizeFilename(filename))
	fullPath := filepath.Join(dateDir, safeName)

	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to write attachment")
	}

	sum := sha256.Sum256(content)

	return &interfaces.SavedDocument{
		Path:     fullPath,
		Filename: safeName,
		Size:     int64(len(content)),
		SHA256:   hex.EncodeToString(sum[:]),
	}, nil
}

// Remove deletes a stored file. Missing files are fine: cleanup runs
// unconditionally and may race an earlier purge.
func (s *LocalStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove attachment")
	}
	return nil
}

// PurgeOlderThan removes whole date directories whose name falls before the
// retention cutoff. Directories with unparseable names are left alone.
func (s *LocalStore) PurgeOlderThan(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read attachments dir")
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirDate, err := time.Parse(dateDirLayout, entry.Name())
		if err != nil {
			continue
		}
		if !dirDate.Before(cutoff) {
			continue
		}
		full := filepath.Join(s.baseDir, entry.Name())
		if err := os.RemoveAll(full); err != nil {
			s.log.Errorf("failed to purge attachment dir %s: %v", full, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// SanitizeFilename strips path and control characters, collapses whitespace
// and caps the length at 180 chars, keeping a short extension intact.
func SanitizeFilename(name string) string {
	s := illegalFilenameRe.ReplaceAllString(name, "_")
	s = collapseSpacesRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) > maxFilenameLen {
		extIdx := strings.LastIndex(s, ".")
		if extIdx > 0 && extIdx >= len(s)-10 {
			s = s[:maxFilenameLen-5] + s[extIdx:]
		} else {
			s = s[:maxFilenameLen]
		}
	}

	if s == "" {
		return defaultFilename
	}
	return s
}

// uniqueName appends "(n)" before the extension until the candidate does not
// exist in dir.
func uniqueName(dir, baseName string) string {
	name, ext := baseName, ""
	if dot := strings.LastIndex(baseName, "."); dot > 0 {
		name, ext = baseName[:dot], baseName[dot:]
	}

	candidate := baseName
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s(%d)%s", name, i, ext)
	}
}
