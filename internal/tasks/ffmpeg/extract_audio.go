package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"videobatch.dev/internal/process"
	"videobatch.dev/internal/task"
	"videobatch.dev/internal/tasks/toolrun"
	"videobatch.dev/internal/template"
)

// Config carries tool locations and defaults shared by the ffmpeg tasks
type Config struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
	OutputDir   string
}

func (c Config) ffmpeg() string {
	if c.FFmpegPath == "" {
		return "ffmpeg"
	}
	return c.FFmpegPath
}

func (c Config) ffprobe() string {
	if c.FFprobePath == "" {
		return "ffprobe"
	}
	return c.FFprobePath
}

const (
	propFFmpegPath      = "ffmpeg_path"
	propOutputDirectory = "output_directory"
	propOutputExtension = "output_extension"
	propTimeoutSeconds  = "timeout_seconds"
)

var extractAudioID = uuid.MustParse("a1b2c3d4-e5f6-7788-9900-aabbccddeeff")

// ExtractAudio copies the audio stream of the input file into its own file
// without re-encoding.
type ExtractAudio struct {
	runner toolrun.Runner
	cfg    Config
}

// NewExtractAudio creates the task
func NewExtractAudio(r toolrun.Runner, cfg Config) *ExtractAudio {
	return &ExtractAudio{runner: r, cfg: cfg}
}

func (e *ExtractAudio) Descriptor() task.Descriptor {
	return task.Descriptor{
		ID:          extractAudioID,
		Name:        "Extract Audio (ffmpeg)",
		Description: "Extracts the audio stream from the input video file without re-encoding (copies the codec). Outputs an AAC file by default.",
		Version:     "1.1",
	}
}

func (e *ExtractAudio) PropertyDefinitions() []task.PropertyDefinition {
	return []task.PropertyDefinition{
		{
			Name:        propFFmpegPath,
			Type:        task.PropertyPath,
			Description: "ffmpeg executable; bare names are looked up on PATH.",
			Default:     e.cfg.ffmpeg(),
		},
		{
			Name:        propOutputDirectory,
			Type:        task.PropertyPath,
			Description: "Directory for the extracted audio. Defaults to the system temp directory.",
		},
		{
			Name:        propOutputExtension,
			Type:        task.PropertyString,
			Description: "Extension of the output container; must match the source audio codec.",
			Default:     "aac",
		},
		{
			Name:        propTimeoutSeconds,
			Type:        task.PropertyDuration,
			Description: "Kill ffmpeg after this many seconds. 0 disables the timeout.",
			Default:     int(e.cfg.Timeout / time.Second),
		},
	}
}

func (e *ExtractAudio) Execute(ctx context.Context, ec *task.ExecutionContext) *task.ExecutionContext {
	desc := e.Descriptor()
	ec.Logf("[%s v%s] Starting execution.", desc.Name, desc.Version)
	defer ec.Logf("[%s] Execution finished.", desc.Name)

	if !toolrun.CheckInput(ec) {
		return ec
	}

	timeout, err := ec.Duration(propTimeoutSeconds, e.cfg.Timeout)
	if err != nil {
		ec.Failf("[ERROR] %v", err)
		return ec
	}

	outputDir := ec.String(propOutputDirectory)
	if outputDir == "" {
		outputDir = e.cfg.OutputDir
	}
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	ext := strings.TrimPrefix(ec.String(propOutputExtension), ".")
	if ext == "" {
		ext = "aac"
	}

	input := ec.InputFilePath
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	output := filepath.Join(outputDir, base+"_audio."+ext)

	exe := ec.String(propFFmpegPath)
	if exe == "" {
		exe = e.cfg.ffmpeg()
	}
	args := []string{"-i", input, "-vn", "-acodec", "copy", "-y", output}

	ec.Logf("Input: %s", input)
	ec.Logf("Output: %s", output)
	ec.Logf("Command: %s", template.CommandLine(exe, args))

	if ctx.Err() != nil {
		ec.Fail("[CANCELLED] Task cancelled before ffmpeg was started.")
		return ec
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		ec.Failf("[ERROR] Could not create output directory %s: %v", outputDir, err)
		return ec
	}

	res, ok := toolrun.Run(ctx, e.runner, ec, "ffmpeg", process.Spec{
		Path:    exe,
		Args:    args,
		Dir:     outputDir,
		Timeout: timeout,
	})
	if !ok {
		return ec
	}

	if !res.Success() {
		toolrun.ReportFailure(ec, "ffmpeg", res)
		toolrun.RemovePartial(ec, output)
		return ec
	}

	if !toolrun.RequireOutput(ec, "ffmpeg", output) {
		return ec
	}
	ec.Logf("Successfully extracted audio to: %s", output)
	ec.OutputFilePath = output
	return ec
}
