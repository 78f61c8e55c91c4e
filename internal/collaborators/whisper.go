package collaborators

import (
	"encoding/json"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"spatelier/internal/ledgererr"
)

// WhisperEngine is the Transcriber backed by the whisper CLI, grounded on
// internal/audio/processor.go's processAudioWithFFmpeg invocation shape:
// build argv, run with exec.CommandContext, fold CombinedOutput into the
// error on failure.
type WhisperEngine struct {
	// Binary is the whisper executable. Defaults to "whisper".
	Binary string
	// Model is the model name passed via --model (e.g. "base", "small").
	Model string
	// Language pins transcription to a language; empty lets whisper
	// auto-detect.
	Language string
}

// NewWhisperEngine builds a WhisperEngine with the standard binary name.
func NewWhisperEngine(model, language string) *WhisperEngine {
	return &WhisperEngine{Binary: "whisper", Model: model, Language: language}
}

func (e *WhisperEngine) binary() string {
	if e.Binary == "" {
		return "whisper"
	}
	return e.Binary
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperOutput struct {
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

// Transcribe runs whisper against filePath, writing its JSON transcript
// into a temporary directory, then parses that file into a
// TranscriptionResult.
func (e *WhisperEngine) Transcribe(ctx context.Context, filePath string) (TranscriptionResult, error) {
	outputDir, err := os.MkdirTemp("", "spatelier-whisper-*")
	if err != nil {
		return TranscriptionResult{}, ledgererr.Storage("create whisper output dir", err)
	}
	defer os.RemoveAll(outputDir)

	args := []string{filePath, "--output_format", "json", "--output_dir", outputDir}
	if e.Model != "" {
		args = append(args, "--model", e.Model)
	}
	if e.Language != "" {
		args = append(args, "--language", e.Language)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.binary(), args...)
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return TranscriptionResult{}, ledgererr.Transient(
			fmt.Sprintf("whisper transcription failed, output: %s", string(output)), err)
	}

	stem := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	jsonPath := filepath.Join(outputDir, stem+".json")
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return TranscriptionResult{}, ledgererr.Permanent("read whisper transcript", err)
	}

	var parsed whisperOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return TranscriptionResult{}, ledgererr.Permanent("parse whisper transcript", err)
	}

	segments := make([]Segment, len(parsed.Segments))
	var duration float64
	for i, s := range parsed.Segments {
		segments[i] = Segment{Start: s.Start, End: s.End, Text: s.Text}
		if s.End > duration {
			duration = s.End
		}
	}

	language := parsed.Language
	if language == "" {
		language = e.Language
	}

	return TranscriptionResult{
		Language:       language,
		Duration:       duration,
		ProcessingTime: elapsed,
		ModelUsed:      e.Model,
		Segments:       segments,
	}, nil
}
