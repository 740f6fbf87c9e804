package samplelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"videobatch.dev/internal/task"
)

const (
	messageProperty = "Message"
	defaultMessage  = "Default log message!"
)

var sampleLogID = uuid.MustParse("8D3D50DF-52B1-4550-8665-B4322D6757FE")

// SampleLog logs a message and writes a small report file. Every run
// writes a new uniquely named file, so repeated runs are not idempotent.
type SampleLog struct {
	outputDir string
}

// New creates the task. An empty outputDir means the system temp directory.
func New(outputDir string) *SampleLog {
	return &SampleLog{outputDir: outputDir}
}

func (s *SampleLog) Descriptor() task.Descriptor {
	return task.Descriptor{
		ID:          sampleLogID,
		Name:        "Sample Log Task",
		Description: "Logs a configurable message and demonstrates input/output file path handling.",
		Version:     "1.1",
	}
}

func (s *SampleLog) PropertyDefinitions() []task.PropertyDefinition {
	return []task.PropertyDefinition{
		{
			Name:        messageProperty,
			Type:        task.PropertyString,
			Description: "The text message to log.",
			Default:     defaultMessage,
			Required:    true,
		},
	}
}

func (s *SampleLog) Execute(ctx context.Context, ec *task.ExecutionContext) *task.ExecutionContext {
	input := ec.InputFilePath
	if input == "" {
		input = "<None>"
	}
	ec.Logf("InputFilePath received: %s", input)

	if ctx.Err() != nil {
		ec.Fail("[CANCELLED] Task cancelled before execution started.")
		return ec
	}

	message, ok := ec.Properties[messageProperty].(string)
	if !ok {
		message = defaultMessage + " (Used Default)"
		ec.Logf("Warning: Property '%s' not found or not a string in context. Using fallback/default.", messageProperty)
	}
	ec.Logf("Executing %s: %s", s.Descriptor().Name, message)

	if ctx.Err() != nil {
		ec.Fail("[CANCELLED] Task cancelled before the output file was written.")
		return ec
	}

	dir := s.outputDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("SampleLogTaskOutput_%s.txt", uuid.New()))

	if err := os.WriteFile(path, []byte(s.report(ec, input, message)), 0644); err != nil {
		ec.Failf("Error creating dummy output file: %v", err)
		return ec
	}

	ec.OutputFilePath = path
	ec.Logf("Created dummy output file: %s", path)
	return ec
}

func (s *SampleLog) report(ec *task.ExecutionContext, input, message string) string {
	var b strings.Builder
	b.WriteString("--- SampleLogTask Execution ---\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", time.Now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "Input Path: %s\n", input)
	fmt.Fprintf(&b, "Message Logged: %s\n", message)
	b.WriteString("Properties Provided: \n")

	keys := make([]string, 0, len(ec.Properties))
	for k := range ec.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  - %s: %v\n", k, ec.Properties[k])
	}
	return b.String()
}
