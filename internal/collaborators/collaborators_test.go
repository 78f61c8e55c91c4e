package collaborators

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataFromInfo(t *testing.T) {
	info := map[string]any{
		"title":        "a video",
		"description":  "desc",
		"uploader":     "someone",
		"uploader_id":  "u1",
		"upload_date":  "20240101",
		"language":     "en",
		"view_count":   float64(42),
		"like_count":   float64(7),
		"duration":     float64(123.5),
	}
	m := metadataFromInfo(info)
	require.Equal(t, "a video", m.Title)
	require.Equal(t, "u1", m.UploaderID)
	require.NotNil(t, m.ViewCount)
	require.EqualValues(t, 42, *m.ViewCount)
	require.NotNil(t, m.LikeCount)
	require.EqualValues(t, 7, *m.LikeCount)
	require.NotNil(t, m.Duration)
	require.Equal(t, 123.5, *m.Duration)
}

func TestMetadataFromInfo_MissingFieldsYieldZeroValues(t *testing.T) {
	m := metadataFromInfo(nil)
	require.Equal(t, VideoMetadata{}, m)
}

func TestStringField(t *testing.T) {
	require.Equal(t, "x", stringField(map[string]any{"k": "x"}, "k"))
	require.Equal(t, "", stringField(map[string]any{"k": 5}, "k"))
	require.Equal(t, "", stringField(nil, "k"))
}

func TestLastLine(t *testing.T) {
	require.Equal(t, "c", lastLine("a\nb\nc\n"))
	require.Equal(t, "a", lastLine("a"))
	require.Equal(t, "", lastLine(""))
}

func TestSrtTimestamp(t *testing.T) {
	require.Equal(t, "00:00:00,000", srtTimestamp(0))
	require.Equal(t, "00:01:01,500", srtTimestamp(61.5))
	require.Equal(t, "01:00:00,000", srtTimestamp(3600))
}

func TestRenderSRT(t *testing.T) {
	out := renderSRT([]Segment{
		{Start: 0, End: 1, Text: "hello"},
		{Start: 1, End: 2.25, Text: "world"},
	})
	require.Contains(t, out, "1\n00:00:00,000 --> 00:00:01,000\nhello\n\n")
	require.Contains(t, out, "2\n00:00:01,000 --> 00:00:02,250\nworld\n\n")
}

// writeFakeBinary writes an executable shell script to dir/name and
// returns its path, standing in for a real CLI engine so Download/
// Transcribe/probe paths can be exercised without the real yt-dlp,
// whisper, or ffprobe binaries installed.
func writeFakeBinary(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestYtDlpEngine_DownloadReportsAnnouncedPathAndMetadata(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "fake-yt-dlp", `
if [ "$1" = "--no-warnings" ] && echo "$@" | grep -q -- "--print"; then
  echo '/out/video [abc123].mp4'
  exit 0
fi
echo '{"id":"abc123","title":"t","uploader":"u"}'
`)
	e := &YtDlpEngine{Binary: bin}
	result, err := e.Download(context.Background(), "https://example/v/1", "/out")
	require.NoError(t, err)
	require.Equal(t, "/out/video [abc123].mp4", result.AnnouncedPath)
	require.Equal(t, "abc123", result.SourceID)
	require.Equal(t, "t", result.Metadata.Title)
}

func TestYtDlpEngine_ResolvePlaylistParsesEntries(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "fake-yt-dlp", `
cat <<'JSON'
{"id":"PL1","title":"mylist","uploader":"u","view_count":10,
 "entries":[{"id":"v1","title":"one"},{"id":"v2","title":"two","url":"https://x/2"}]}
JSON
`)
	e := &YtDlpEngine{Binary: bin}
	meta, err := e.ResolvePlaylist(context.Background(), "https://example/pl/1")
	require.NoError(t, err)
	require.Equal(t, "PL1", meta.PlaylistID)
	require.Len(t, meta.Entries, 2)
	require.Equal(t, 1, meta.Entries[0].Position)
	require.Equal(t, "https://www.youtube.com/watch?v=v1", meta.Entries[0].URL)
	require.Equal(t, "https://x/2", meta.Entries[1].URL)
}

func TestFFprobeSubtitleProbe_HasMarkedSubtitles(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "fake-ffprobe", `
cat <<'JSON'
{"streams":[{"codec_type":"video"},{"codec_type":"subtitle","tags":{"title":"WhisperAI transcript"}}]}
JSON
`)
	p := &FFprobeSubtitleProbe{Binary: bin}
	has, err := p.HasMarkedSubtitles(context.Background(), "/tmp/f.mp4", "whisperai")
	require.NoError(t, err)
	require.True(t, has)

	noMatch := &FFprobeSubtitleProbe{Binary: bin}
	has2, err := noMatch.HasMarkedSubtitles(context.Background(), "/tmp/f.mp4", "somethingelse")
	require.NoError(t, err)
	require.False(t, has2)
}

func TestFFprobeSubtitleProbe_MissingBinaryIsNotAnError(t *testing.T) {
	p := &FFprobeSubtitleProbe{Binary: "/nonexistent/ffprobe-binary"}
	has, err := p.HasMarkedSubtitles(context.Background(), "/tmp/f.mp4", "whisperai")
	require.NoError(t, err)
	require.False(t, has)
}
