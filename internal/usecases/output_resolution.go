package usecases

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spatelier/internal/ledgererr"
)

// resolveOutputFile implements spec.md §4.5 DownloadVideo step 6's
// resolution order verbatim: the download engine's announced path is only
// trusted if it exists with non-zero size; otherwise the working
// directory is searched by video id, then (only for non-identifiable
// URLs) by recency, and failing all of that the job fails. This exists
// because yt-dlp-class engines frequently remux or rename the file they
// initially announce (audio+video merges, container re-muxing) after
// reporting their first guess.
func resolveOutputFile(announcedPath, workDir, sourceID string, videoExtensions []string) (string, error) {
	if announcedPath != "" && nonEmptyFile(announcedPath) {
		return announcedPath, nil
	}

	identifiable := sourceID != "" && sourceID != "<nil>" && sourceID != "unknown"
	if identifiable {
		if found := latestMatching(workDir, videoExtensions, func(name string) bool {
			return strings.Contains(name, sourceID)
		}); found != "" {
			return found, nil
		}
	}

	if !identifiable {
		if found := latestMatching(workDir, videoExtensions, func(string) bool { return true }); found != "" {
			slog.Warn("output file resolved by recency only, not by source id", "work_dir", workDir)
			return found, nil
		}
	}

	return "", ledgererr.New(ledgererr.KindPermanent, "no output file found after download in "+workDir)
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// latestMatching scans dir (non-recursively) for files whose extension is
// in extensions and whose name satisfies match, among size>0 candidates
// returning the one with the latest modification time.
func latestMatching(dir string, extensions []string, match func(name string) bool) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var best string
	var bestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !hasVideoExtension(name, extensions) || !match(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, name)
			bestMod = info.ModTime()
		}
	}
	return best
}

func hasVideoExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
