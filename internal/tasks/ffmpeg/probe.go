package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"videobatch.dev/internal/process"
	"videobatch.dev/internal/task"
	"videobatch.dev/internal/tasks/toolrun"
	"videobatch.dev/internal/template"
)

// MediaInfoProperty is the property ProbeMedia stores its findings under
const MediaInfoProperty = "media_info"

const propFFprobePath = "ffprobe_path"

var probeMediaID = uuid.MustParse("5f0c2d8e-3b7a-4c61-9d2e-7a1b4c9e8f03")

// MediaInfo is the container and stream metadata of a media file
type MediaInfo struct {
	FileSize   int64         `json:"file_size"`
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`
	Resolution string        `json:"resolution,omitempty"`
	FPS        float64       `json:"fps,omitempty"`
	BitRateKbs int64         `json:"bit_rate_kbs"`
	Format     string        `json:"format,omitempty"`
	VideoCodec string        `json:"video_codec,omitempty"`
	AudioCodec string        `json:"audio_codec,omitempty"`
}

// ParseProbe reads ffprobe's -print_format json output
func ParseProbe(data string) (*MediaInfo, error) {
	if !gjson.Valid(data) {
		return nil, fmt.Errorf("ffprobe output is not valid JSON")
	}
	format := gjson.Get(data, "format")
	if !format.Exists() {
		return nil, fmt.Errorf("ffprobe output has no format section")
	}

	info := &MediaInfo{
		FileSize:   format.Get("size").Int(),
		Duration:   time.Duration(format.Get("duration").Float() * float64(time.Second)),
		BitRateKbs: format.Get("bit_rate").Int() / 1000,
		Format:     format.Get("format_name").String(),
	}

	video := gjson.Get(data, `streams.#(codec_type=="video")`)
	if video.Exists() {
		info.VideoCodec = video.Get("codec_name").String()
		info.Width = int(video.Get("width").Int())
		info.Height = int(video.Get("height").Int())
		if info.Width > 0 && info.Height > 0 {
			info.Resolution = fmt.Sprintf("%dx%d", info.Width, info.Height)
		}
		info.FPS = parseRate(video.Get("avg_frame_rate").String())
		if info.FPS == 0 {
			info.FPS = parseRate(video.Get("r_frame_rate").String())
		}
	}

	if audio := gjson.Get(data, `streams.#(codec_type=="audio")`); audio.Exists() {
		info.AudioCodec = audio.Get("codec_name").String()
	}

	return info, nil
}

// parseRate turns "30000/1001" or "25" into frames per second
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// ProbeMedia records media metadata in the context and passes the input
// through as its output.
type ProbeMedia struct {
	runner toolrun.Runner
	cfg    Config
}

// NewProbeMedia creates the task
func NewProbeMedia(r toolrun.Runner, cfg Config) *ProbeMedia {
	return &ProbeMedia{runner: r, cfg: cfg}
}

func (p *ProbeMedia) Descriptor() task.Descriptor {
	return task.Descriptor{
		ID:          probeMediaID,
		Name:        "Probe Media (ffprobe)",
		Description: "Reads duration, size, bit rate, resolution and frame rate of the input with ffprobe. The input file passes through unchanged.",
		Version:     "1.0",
	}
}

func (p *ProbeMedia) PropertyDefinitions() []task.PropertyDefinition {
	return []task.PropertyDefinition{
		{
			Name:        propFFprobePath,
			Type:        task.PropertyPath,
			Description: "ffprobe executable; bare names are looked up on PATH.",
			Default:     p.cfg.ffprobe(),
		},
		{
			Name:        propTimeoutSeconds,
			Type:        task.PropertyDuration,
			Description: "Kill ffprobe after this many seconds. 0 disables the timeout.",
			Default:     int(p.cfg.Timeout / time.Second),
		},
	}
}

func (p *ProbeMedia) Execute(ctx context.Context, ec *task.ExecutionContext) *task.ExecutionContext {
	desc := p.Descriptor()
	ec.Logf("[%s v%s] Starting execution.", desc.Name, desc.Version)
	defer ec.Logf("[%s] Execution finished.", desc.Name)

	if !toolrun.CheckInput(ec) {
		return ec
	}
	timeout, err := ec.Duration(propTimeoutSeconds, p.cfg.Timeout)
	if err != nil {
		ec.Failf("[ERROR] %v", err)
		return ec
	}

	exe := ec.String(propFFprobePath)
	if exe == "" {
		exe = p.cfg.ffprobe()
	}
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", ec.InputFilePath}
	ec.Logf("Command: %s", template.CommandLine(exe, args))

	if ctx.Err() != nil {
		ec.Fail("[CANCELLED] Task cancelled before ffprobe was started.")
		return ec
	}

	// stdout is JSON for us, not for the log
	var out strings.Builder
	res, ok := toolrun.Run(ctx, p.runner, ec, "ffprobe", process.Spec{
		Path:    exe,
		Args:    args,
		Timeout: timeout,
		Stdout: func(line string) {
			out.WriteString(line)
			out.WriteByte('\n')
		},
	})
	if !ok {
		return ec
	}
	if !res.Success() {
		toolrun.ReportFailure(ec, "ffprobe", res)
		return ec
	}

	info, err := ParseProbe(out.String())
	if err != nil {
		ec.Failf("[ERROR] Could not read ffprobe output: %v", err)
		return ec
	}
	if info.FileSize == 0 {
		if st, err := os.Stat(ec.InputFilePath); err == nil {
			info.FileSize = st.Size()
		}
	}

	ec.Logf("Duration: %s", info.Duration.Round(time.Millisecond))
	ec.Logf("File size: %d bytes", info.FileSize)
	ec.Logf("Bit rate: %d kb/s", info.BitRateKbs)
	if info.Resolution != "" {
		ec.Logf("Resolution: %s @ %.3f fps (%s)", info.Resolution, info.FPS, info.VideoCodec)
	}
	if info.AudioCodec != "" {
		ec.Logf("Audio codec: %s", info.AudioCodec)
	}

	if ec.Properties == nil {
		ec.Properties = make(map[string]interface{})
	}
	ec.Properties[MediaInfoProperty] = info
	ec.OutputFilePath = ec.InputFilePath
	return ec
}
