//go:build unix

package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"videobatch.dev/internal/process"
	"videobatch.dev/internal/task"
)

// writeScript creates an executable shell script standing in for a tool.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really a video"), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

func testRunner(t *testing.T) *process.Runner {
	t.Helper()
	return process.NewRunner(process.WithTempDir(t.TempDir()), process.WithLogger(zerolog.Nop()))
}

func hasMessage(ec *task.ExecutionContext, substr string) bool {
	for _, m := range ec.Messages() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// fakeFFmpeg writes "audio" to its last argument.
const fakeFFmpeg = `for last; do :; done
echo "ffmpeg version fake" >&2
echo "audio" > "$last"
`

func runExtract(t *testing.T, exe, input string, props map[string]interface{}) (*task.ExecutionContext, string) {
	t.Helper()
	outDir := t.TempDir()
	if props == nil {
		props = map[string]interface{}{}
	}
	props[propFFmpegPath] = exe
	props[propOutputDirectory] = outDir

	ec := task.NewExecutionContext(input, props)
	e := NewExtractAudio(testRunner(t), Config{})
	return task.Execute(context.Background(), e, ec), outDir
}

func TestExtractAudioSuccess(t *testing.T) {
	exe := writeScript(t, "ffmpeg", fakeFFmpeg)
	input := writeInput(t, "clip one.mp4")

	ec, outDir := runExtract(t, exe, input, nil)
	if ec.HasError() {
		t.Fatalf("unexpected error: %v", ec.Messages())
	}

	want := filepath.Join(outDir, "clip one_audio.aac")
	if ec.OutputFilePath != want {
		t.Errorf("output = %q, want %q", ec.OutputFilePath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || strings.TrimSpace(string(data)) != "audio" {
		t.Errorf("output file content = %q, %v", data, err)
	}

	for _, msg := range []string{
		"[Extract Audio (ffmpeg) v1.1] Starting execution.",
		"[FFMPEG_ERR] ffmpeg version fake",
		"Exit Code: 0",
		"Successfully extracted audio to: " + want,
		"[Extract Audio (ffmpeg)] Execution finished.",
	} {
		if !hasMessage(ec, msg) {
			t.Errorf("missing message %q in %v", msg, ec.Messages())
		}
	}
}

func TestExtractAudioCustomExtension(t *testing.T) {
	exe := writeScript(t, "ffmpeg", fakeFFmpeg)
	input := writeInput(t, "song.mkv")

	ec, outDir := runExtract(t, exe, input, map[string]interface{}{propOutputExtension: ".opus"})
	if ec.HasError() {
		t.Fatalf("unexpected error: %v", ec.Messages())
	}
	if ec.OutputFilePath != filepath.Join(outDir, "song_audio.opus") {
		t.Errorf("output = %q", ec.OutputFilePath)
	}
}

func TestExtractAudioMissingOutput(t *testing.T) {
	exe := writeScript(t, "ffmpeg", "exit 0\n")
	input := writeInput(t, "clip.mp4")

	ec, outDir := runExtract(t, exe, input, nil)
	if !ec.HasError() {
		t.Fatal("exit code 0 without an output file must be an error")
	}
	expected := filepath.Join(outDir, "clip_audio.aac")
	if !hasMessage(ec, "Expected file: "+expected) {
		t.Errorf("expected diagnostic naming %s, got %v", expected, ec.Messages())
	}
	if ec.OutputFilePath != "" {
		t.Errorf("output must stay empty, got %q", ec.OutputFilePath)
	}
}

func TestExtractAudioFailureRemovesPartialOutput(t *testing.T) {
	exe := writeScript(t, "ffmpeg", `for last; do :; done
echo "partial" > "$last"
echo "Conversion failed!" >&2
exit 1
`)
	input := writeInput(t, "clip.mp4")

	ec, outDir := runExtract(t, exe, input, nil)
	if !ec.HasError() {
		t.Fatal("expected error")
	}
	for _, msg := range []string{"Exit Code: 1", "[ERROR] ffmpeg process failed.", "[FFMPEG_ERR] Conversion failed!"} {
		if !hasMessage(ec, msg) {
			t.Errorf("missing message %q in %v", msg, ec.Messages())
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "clip_audio.aac")); !os.IsNotExist(err) {
		t.Errorf("partial output should have been removed, stat err = %v", err)
	}
}

func TestExtractAudioTimeout(t *testing.T) {
	exe := writeScript(t, "ffmpeg", "sleep 30\n")
	input := writeInput(t, "clip.mp4")

	ec, _ := runExtract(t, exe, input, map[string]interface{}{propTimeoutSeconds: "0.2"})
	if !ec.HasError() {
		t.Fatal("expected error")
	}
	if !hasMessage(ec, "Reason: Process timed out.") {
		t.Errorf("expected timeout reason, got %v", ec.Messages())
	}
}

func TestExtractAudioInputValidation(t *testing.T) {
	exe := writeScript(t, "ffmpeg", fakeFFmpeg)

	ec, _ := runExtract(t, exe, "", nil)
	if !ec.HasError() || !hasMessage(ec, "[ERROR] Input file path is missing.") {
		t.Errorf("expected missing input error, got %v", ec.Messages())
	}

	missing := filepath.Join(t.TempDir(), "gone.mp4")
	ec, _ = runExtract(t, exe, missing, nil)
	if !ec.HasError() || !hasMessage(ec, "[ERROR] Input file not found: "+missing) {
		t.Errorf("expected input not found error, got %v", ec.Messages())
	}
}

func TestExtractAudioMissingExecutable(t *testing.T) {
	input := writeInput(t, "clip.mp4")

	ec, _ := runExtract(t, filepath.Join(t.TempDir(), "no-ffmpeg"), input, nil)
	if !ec.HasError() || !hasMessage(ec, "[ERROR] Could not run ffmpeg") {
		t.Errorf("expected launch diagnostic, got %v", ec.Messages())
	}
}

func TestExtractAudioKeepsUpstreamError(t *testing.T) {
	exe := writeScript(t, "ffmpeg", fakeFFmpeg)
	input := writeInput(t, "clip.mp4")

	ec := task.NewExecutionContext(input, map[string]interface{}{
		propFFmpegPath:      exe,
		propOutputDirectory: t.TempDir(),
	})
	ec.Fail("upstream failure")

	out := NewExtractAudio(testRunner(t), Config{}).Execute(context.Background(), ec)
	if !out.HasError() {
		t.Error("a successful run must not clear an earlier error")
	}
	if out.OutputFilePath == "" {
		t.Error("expected the output to be produced anyway")
	}
}

func TestExtractAudioSessionTeeFiles(t *testing.T) {
	exe := writeScript(t, "ffmpeg", fakeFFmpeg)
	input := writeInput(t, "clip.mp4")
	sessionDir := t.TempDir()

	ec := task.NewExecutionContext(input, map[string]interface{}{
		propFFmpegPath:      exe,
		propOutputDirectory: t.TempDir(),
	})
	ec.SessionDir = sessionDir

	ec = task.Execute(context.Background(), NewExtractAudio(testRunner(t), Config{}), ec)
	if ec.HasError() {
		t.Fatalf("unexpected error: %v", ec.Messages())
	}

	matches, _ := filepath.Glob(filepath.Join(sessionDir, "ffmpeg-*.stderr.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one stderr log in session dir, found %v", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if string(data) != "ffmpeg version fake\n" {
		t.Errorf("stderr log = %q", data)
	}
}

func TestProbeMedia(t *testing.T) {
	exe := writeScript(t, "ffprobe", "cat <<'EOF'\n"+sampleProbe+"\nEOF\n")
	input := writeInput(t, "clip.mp4")

	ec := task.NewExecutionContext(input, map[string]interface{}{propFFprobePath: exe})
	ec = task.Execute(context.Background(), NewProbeMedia(testRunner(t), Config{}), ec)
	if ec.HasError() {
		t.Fatalf("unexpected error: %v", ec.Messages())
	}

	info, ok := ec.Properties[MediaInfoProperty].(*MediaInfo)
	if !ok {
		t.Fatalf("media_info not stored, properties: %v", ec.Properties)
	}
	if info.Resolution != "1920x1080" {
		t.Errorf("resolution = %q", info.Resolution)
	}
	if ec.OutputFilePath != input {
		t.Errorf("probe should pass the input through, got %q", ec.OutputFilePath)
	}
	if hasMessage(ec, "[FFPROBE_OUT]") {
		t.Error("ffprobe JSON should not be copied into the log")
	}
	if !hasMessage(ec, "Resolution: 1920x1080") {
		t.Errorf("expected resolution message, got %v", ec.Messages())
	}
}

func TestProbeMediaBadOutput(t *testing.T) {
	exe := writeScript(t, "ffprobe", "echo garbage\n")
	input := writeInput(t, "clip.mp4")

	ec := task.NewExecutionContext(input, map[string]interface{}{propFFprobePath: exe})
	ec = task.Execute(context.Background(), NewProbeMedia(testRunner(t), Config{}), ec)
	if !ec.HasError() || !hasMessage(ec, "Could not read ffprobe output") {
		t.Errorf("expected parse failure, got %v", ec.Messages())
	}
}
