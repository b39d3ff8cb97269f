package pdf

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// DefaultViewer opens PDFs with the desktop's default application.
const DefaultViewer = "system"

// viewers maps a viewer name to its launch command per platform.
var viewers = map[string]map[string][]string{
	"darwin": {
		DefaultViewer: {"open"},
		"skim":        {"open", "-a", "Skim"},
		"preview":     {"open", "-a", "Preview"},
	},
	"linux": {
		DefaultViewer: {"xdg-open"},
		"zathura":     {"zathura"},
		"evince":      {"evince"},
		"okular":      {"okular"},
	},
}

// Viewer launches an external PDF viewer.
type Viewer struct {
	name string
	goos string
}

// NewViewer returns a viewer by name; an empty name means DefaultViewer.
func NewViewer(name string) *Viewer {
	if name == "" {
		name = DefaultViewer
	}
	return &Viewer{name: name, goos: runtime.GOOS}
}

// Command builds the command that opens path, without starting it.
func (v *Viewer) Command(path string) (*exec.Cmd, error) {
	byName, ok := viewers[v.goos]
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %s", v.goos)
	}
	argv, ok := byName[v.name]
	if !ok {
		return nil, fmt.Errorf("unknown pdf viewer %q on %s", v.name, v.goos)
	}
	args := append(append([]string{}, argv[1:]...), path)
	return exec.Command(argv[0], args...), nil
}

// Open starts the viewer on an existing file and returns without waiting.
func (v *Viewer) Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("PDF file does not exist: %s", path)
		}
		return fmt.Errorf("checking PDF file: %w", err)
	}
	cmd, err := v.Command(path)
	if err != nil {
		return err
	}
	return cmd.Start()
}
