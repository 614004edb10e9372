package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output_dir is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("output_dir cannot contain path traversal")
		}
	}

	cleaned := filepath.Clean(dir)
	if cleaned != dir {
		return fmt.Errorf("output_dir must be clean path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output_dir does not exist")
		}
		return fmt.Errorf("invalid output_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output_dir is not a directory")
	}

	return nil
}

const (
	maxTitleLen      = 120
	defaultTitleStem = "heimdex_export"
	outputTimeLayout = "20060102_150405"
	outputExtension  = ".mp4"
)

// SanitizeTitle turns a user title into a file stem. Path separators and
// characters outside the allowed set become underscores.
func SanitizeTitle(title string) string {
	title = strings.NewReplacer("/", "_", "\\", "_").Replace(title)
	return SanitizeName(title, maxTitleLen)
}

// OutputFileName is "<title>_YYYYMMDD_HHMMSS.mp4", falling back to
// heimdex_export when the title sanitizes to nothing.
func OutputFileName(title string, now time.Time) string {
	stem := SanitizeTitle(title)
	if stem == "" || strings.Trim(stem, "._") == "" {
		stem = defaultTitleStem
	}
	return stem + "_" + now.Format(outputTimeLayout) + outputExtension
}

// OutputPath joins dir with OutputFileName.
func OutputPath(dir, title string, now time.Time) string {
	return filepath.Join(dir, OutputFileName(title, now))
}
