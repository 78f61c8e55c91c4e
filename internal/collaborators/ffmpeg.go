package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"spatelier/internal/ledgererr"
)

// FFmpegMuxer embeds a subtitle track into a video's container via
// ffmpeg. A line-for-line descendant of
// internal/audio/processor.go's processAudioWithFFmpeg: build argv, run
// with exec.CommandContext, fold CombinedOutput into the wrapped error.
type FFmpegMuxer struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg".
	Binary string
}

// NewFFmpegMuxer builds an FFmpegMuxer with the standard binary name.
func NewFFmpegMuxer() *FFmpegMuxer { return &FFmpegMuxer{Binary: "ffmpeg"} }

func (m *FFmpegMuxer) binary() string {
	if m.Binary == "" {
		return "ffmpeg"
	}
	return m.Binary
}

// EmbedSubtitles writes segments as an SRT file, then muxes it into
// videoPath's container as a soft subtitle track tagged with markerTitle,
// writing the result to a new sibling file (spec.md §6's subtitle marker
// convention: the embedded track's title tag must contain markerTitle
// case-insensitively, so future smart-overwrite checks detect it).
func (m *FFmpegMuxer) EmbedSubtitles(ctx context.Context, videoPath string, segments []Segment, markerTitle string) (string, error) {
	srtPath := videoPath + ".srt"
	if err := os.WriteFile(srtPath, []byte(renderSRT(segments)), 0o644); err != nil {
		return "", ledgererr.Storage("write subtitle file", err)
	}
	defer os.Remove(srtPath)

	ext := filepath.Ext(videoPath)
	outPath := strings.TrimSuffix(videoPath, ext) + ".subtitled" + ext

	cmd := exec.CommandContext(ctx, m.binary(),
		"-i", videoPath,
		"-i", srtPath,
		"-map", "0",
		"-map", "1",
		"-c", "copy",
		"-c:s", "mov_text",
		"-metadata:s:s:0", "title="+markerTitle,
		"-y", outPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", ledgererr.Transient(
			fmt.Sprintf("ffmpeg subtitle embedding failed, output: %s", string(output)), err)
	}
	return outPath, nil
}

func renderSRT(segments []Segment) string {
	var b strings.Builder
	for i, s := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(s.Start), srtTimestamp(s.End), s.Text)
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	total := int64(seconds * 1000)
	ms := total % 1000
	total /= 1000
	s := total % 60
	total /= 60
	mnt := total % 60
	total /= 60
	h := total
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, mnt, s, ms)
}

// FFprobeSubtitleProbe detects the smart-overwrite marker by inspecting a
// file's subtitle streams via ffprobe, grounded directly on
// original_source's VideoDownloadService._has_whisper_subtitles (same
// ffprobe invocation and the same streams[].tags.title substring check).
type FFprobeSubtitleProbe struct {
	// Binary is the ffprobe executable. Defaults to "ffprobe".
	Binary string
}

// NewFFprobeSubtitleProbe builds an FFprobeSubtitleProbe with the
// standard binary name.
func NewFFprobeSubtitleProbe() *FFprobeSubtitleProbe { return &FFprobeSubtitleProbe{Binary: "ffprobe"} }

func (p *FFprobeSubtitleProbe) binary() string {
	if p.Binary == "" {
		return "ffprobe"
	}
	return p.Binary
}

type ffprobeStream struct {
	CodecType string            `json:"codec_type"`
	Tags      map[string]string `json:"tags"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

// HasMarkedSubtitles reports whether filePath has a subtitle stream whose
// title tag contains marker, case-insensitively. Any ffprobe failure
// (missing binary, unreadable file) is treated as "no marked subtitles"
// rather than propagated, mirroring _has_whisper_subtitles's broad
// except-and-return-False.
func (p *FFprobeSubtitleProbe) HasMarkedSubtitles(ctx context.Context, filePath, marker string) (bool, error) {
	cmd := exec.CommandContext(ctx, p.binary(),
		"-v", "quiet", "-print_format", "json", "-show_streams", filePath)
	output, err := cmd.Output()
	if err != nil {
		return false, nil
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return false, nil
	}

	markerLower := strings.ToLower(marker)
	for _, s := range parsed.Streams {
		if s.CodecType != "subtitle" {
			continue
		}
		if strings.Contains(strings.ToLower(s.Tags["title"]), markerLower) {
			return true, nil
		}
	}
	return false, nil
}
