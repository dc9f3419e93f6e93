package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"sleeve/internal/buildplan"
	"sleeve/internal/contentkey"
	"sleeve/internal/coordinator"
	"sleeve/internal/fileutil"
)

// publishSite copies every resolved artifact to its place under root.
// Downloads are nested under a token derived from the content key and salt so
// their URLs change whenever the artifact or the salt does.
func publishSite(root string, items []buildplan.Item, report coordinator.Report, salt string) (int, error) {
	if len(items) != len(report.Results) {
		return 0, fmt.Errorf("publish: %d items but %d results", len(items), len(report.Results))
	}
	published := 0
	for i, item := range items {
		res := report.Results[i]
		if res.Outcome == coordinator.OutcomeFailed {
			continue
		}
		rel := item.Output
		if item.Role == buildplan.RoleDownload || item.Role == buildplan.RoleArchive {
			dir, name := path.Split(rel)
			rel = path.Join(dir, contentkey.PublicToken(res.Key, salt), name)
		}
		dst := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return published, fmt.Errorf("publish %s: %w", rel, err)
		}
		if err := fileutil.CopyFile(res.Entry.PayloadPath, dst); err != nil {
			return published, fmt.Errorf("publish %s: %w", rel, err)
		}
		published++
	}
	return published, nil
}
