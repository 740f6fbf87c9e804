package template

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/kballard/go-shellquote"
)

// Data is what a command template can reference:
// {{.Input}}, {{.Output}} and {{.Props.name}}.
type Data struct {
	Input  string
	Output string
	Props  map[string]interface{}
}

// stem returns the file name without directory or extension
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var funcs = template.FuncMap{
	"base":  filepath.Base,
	"dir":   filepath.Dir,
	"ext":   filepath.Ext,
	"stem":  stem,
	"quote": func(s string) string { return shellquote.Join(s) },
}

// Expand substitutes data into text.
// Fails if a referenced property is missing (strict mode)
func Expand(text string, data Data) (string, error) {
	if data.Props == nil {
		data.Props = map[string]interface{}{}
	}

	tmpl, err := template.New("command").
		Funcs(funcs).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse command template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute command template: %w", err)
	}

	return buf.String(), nil
}

// ExpandArgs splits line into words using shell quoting rules, then expands
// each word on its own. A substituted path containing spaces therefore stays
// a single argument.
func ExpandArgs(line string, data Data) ([]string, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("split arguments: %w", err)
	}

	args := make([]string, 0, len(words))
	for _, w := range words {
		expanded, err := Expand(w, data)
		if err != nil {
			return nil, err
		}
		args = append(args, expanded)
	}
	return args, nil
}

// CommandLine renders an argv for display, quoting where a shell would need it
func CommandLine(exe string, args []string) string {
	return shellquote.Join(append([]string{exe}, args...)...)
}
