package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"spatelier/internal/ledgererr"
)

// YtDlpEngine is the Downloader/PlaylistResolver pair backed by the yt-dlp
// binary, grounded on the same exec.CommandContext + CombinedOutput shape
// as internal/audio/processor.go's ffmpeg call: build argv, run, wrap any
// non-zero exit (plus its combined output) into the returned error.
type YtDlpEngine struct {
	// Binary is the yt-dlp executable name or path. Defaults to "yt-dlp".
	Binary string
	// Format is the yt-dlp format selector (e.g. "best"). Empty uses
	// yt-dlp's own default.
	Format string
}

// NewYtDlpEngine builds a YtDlpEngine with the standard binary name.
func NewYtDlpEngine(format string) *YtDlpEngine {
	return &YtDlpEngine{Binary: "yt-dlp", Format: format}
}

func (e *YtDlpEngine) binary() string {
	if e.Binary == "" {
		return "yt-dlp"
	}
	return e.Binary
}

// ExtractMetadata runs yt-dlp in info-only mode and maps the resulting
// JSON document onto VideoMetadata. A parse or exit failure is treated as
// "no metadata available" by the caller (spec.md §4.5 step 4: "failures
// are non-fatal"), so this returns an error the use-case layer is expected
// to log and ignore.
func (e *YtDlpEngine) ExtractMetadata(ctx context.Context, url string) (VideoMetadata, error) {
	info, err := e.dumpJSON(ctx, url, false)
	if err != nil {
		return VideoMetadata{}, err
	}
	return metadataFromInfo(info), nil
}

// Download runs yt-dlp against url, writing into outputDir using a
// normalized output template, and reports the path yt-dlp itself resolved
// the download to via --print after_move:filepath. That announced path is
// only the starting point for spec.md §4.5 step 6's resolution heuristic,
// implemented at the use-case layer, not here.
func (e *YtDlpEngine) Download(ctx context.Context, url, outputDir string) (DownloadResult, error) {
	outTmpl := filepath.Join(outputDir, "%(title)s [%(id)s].%(ext)s")
	args := []string{
		"--no-warnings",
		"--no-playlist",
		"-o", outTmpl,
		"--print", "after_move:filepath",
	}
	if e.Format != "" {
		args = append(args, "-f", e.Format)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, e.binary(), args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var combined bytes.Buffer
	cmd.Stderr = &combined

	if err := cmd.Run(); err != nil {
		return DownloadResult{}, ledgererr.Permanent(
			fmt.Sprintf("yt-dlp download failed, output: %s", combined.String()), err)
	}

	announced := strings.TrimSpace(lastLine(stdout.String()))

	info, _ := e.dumpJSON(ctx, url, false)
	return DownloadResult{
		AnnouncedPath: announced,
		SourceID:      fmt.Sprint(info["id"]),
		Metadata:      metadataFromInfo(info),
	}, nil
}

// ResolvePlaylist runs yt-dlp in flat-playlist info mode and maps each
// entry onto a PlaylistEntry, grounded on download_playlist_use_case.py's
// reliance on a playlist service that ultimately shells out to yt-dlp for
// the same purpose.
func (e *YtDlpEngine) ResolvePlaylist(ctx context.Context, url string) (PlaylistMetadata, error) {
	cmd := exec.CommandContext(ctx, e.binary(), "--no-warnings", "--flat-playlist", "--dump-single-json", url)
	output, err := cmd.Output()
	if err != nil {
		return PlaylistMetadata{}, ledgererr.Permanent("yt-dlp playlist resolution failed", err)
	}

	var info map[string]any
	if err := json.Unmarshal(output, &info); err != nil {
		return PlaylistMetadata{}, ledgererr.Permanent("parse yt-dlp playlist output", err)
	}

	meta := PlaylistMetadata{
		PlaylistID:  fmt.Sprint(info["id"]),
		Title:       stringField(info, "title"),
		Description: stringField(info, "description"),
		Uploader:    stringField(info, "uploader"),
		UploaderID:  stringField(info, "uploader_id"),
		Thumbnail:   stringField(info, "thumbnail"),
	}
	if vc, ok := info["view_count"].(float64); ok {
		n := int64(vc)
		meta.ViewCount = &n
	}

	entries, _ := info["entries"].([]any)
	for i, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id := fmt.Sprint(entry["id"])
		entryURL := stringField(entry, "url")
		if entryURL == "" && id != "" {
			entryURL = "https://www.youtube.com/watch?v=" + id
		}
		meta.Entries = append(meta.Entries, PlaylistEntry{
			Position: i + 1,
			URL:      entryURL,
			ID:       id,
			Title:    stringField(entry, "title"),
		})
	}
	return meta, nil
}

func (e *YtDlpEngine) dumpJSON(ctx context.Context, url string, flatPlaylist bool) (map[string]any, error) {
	args := []string{"--no-warnings", "--no-playlist", "--dump-single-json"}
	if flatPlaylist {
		args = append(args, "--flat-playlist")
	}
	args = append(args, url)
	cmd := exec.CommandContext(ctx, e.binary(), args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, ledgererr.Transient("yt-dlp metadata extraction failed", err)
	}
	var info map[string]any
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, ledgererr.Permanent("parse yt-dlp metadata output", err)
	}
	return info, nil
}

func metadataFromInfo(info map[string]any) VideoMetadata {
	m := VideoMetadata{
		Title:       stringField(info, "title"),
		Description: stringField(info, "description"),
		Uploader:    stringField(info, "uploader"),
		UploaderID:  stringField(info, "uploader_id"),
		UploadDate:  stringField(info, "upload_date"),
		Language:    stringField(info, "language"),
	}
	if vc, ok := info["view_count"].(float64); ok {
		n := int64(vc)
		m.ViewCount = &n
	}
	if lc, ok := info["like_count"].(float64); ok {
		n := int64(lc)
		m.LikeCount = &n
	}
	if d, ok := info["duration"].(float64); ok {
		m.Duration = &d
	}
	return m
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
