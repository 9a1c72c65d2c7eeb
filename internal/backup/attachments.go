package backup

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rowanhale/labwise/internal/repository"
)

// attachmentsKey is the snapshot data key holding bundled files. It is
// not a repository collection; restore writes these back to disk.
const attachmentsKey = "attachments"

// collectAttachments bundles every regular file under dir into snapshot
// records of {path, content(base64)}.
func collectAttachments(dir string) ([]repository.Record, error) {
	records := []repository.Record{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read attachment %s: %w", rel, err)
		}
		records = append(records, repository.Record{
			"path":    filepath.ToSlash(rel),
			"content": base64.StdEncoding.EncodeToString(content),
		})
		return nil
	})
	if os.IsNotExist(err) {
		return records, nil
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// restoreAttachments writes bundled files back under dir. Paths are
// relative and must stay inside dir.
func restoreAttachments(dir string, records []repository.Record) error {
	for _, rec := range records {
		rel, _ := rec["path"].(string)
		encoded, _ := rec["content"].(string)
		if rel == "" {
			continue
		}

		target := filepath.Join(dir, filepath.FromSlash(rel))
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return fmt.Errorf("attachment path %q escapes the files directory", rel)
		}

		content, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("decode attachment %s: %w", rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create attachment directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, content, 0o600); err != nil {
			return fmt.Errorf("write attachment %s: %w", rel, err)
		}
	}
	return nil
}
