package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/config"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/model"
)

const auditStampLayout = "060102150405"

// EnsureDataDirs creates the images, search_results and logs directories.
func EnsureDataDirs(cfg config.Config) error {
	for _, dir := range []string{cfg.ImagesDir(), cfg.SearchResultsDir(), cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// AuditPath is <dir>/<name>_<searchID>_<YYMMDDhhmmss>.json.
func AuditPath(dir, name, searchID string, at time.Time) string {
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.json", name, searchID, at.UTC().Format(auditStampLayout)))
}

// WriteAudit stores the raw search features as a JSON array.
func WriteAudit(dir, name, searchID string, scenes []model.Scene, at time.Time) (string, error) {
	raw := make([]json.RawMessage, 0, len(scenes))
	for _, s := range scenes {
		if len(s.Raw) == 0 {
			continue
		}
		raw = append(raw, s.Raw)
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode audit: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := AuditPath(dir, name, searchID, at)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write audit %s: %w", path, err)
	}
	return path, nil
}
