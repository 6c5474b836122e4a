package jgroup

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// editor reads and writes cgroup controller files rooted at one directory.
// Grounded on cgroupslib's editor abstraction in the reference corpus: a
// thin synchronized wrapper around one cgroup directory.
type editor struct {
	mu    sync.Mutex
	dpath string
}

func newEditor(dpath string) *editor {
	return &editor{dpath: dpath}
}

// keyController extracts the controller name from a "controller.name" key,
// e.g. "cpu.shares" -> "cpu", "cpuset.cpus" -> "cpuset".
func keyController(key string) (string, error) {
	idx := strings.IndexByte(key, '.')
	if idx <= 0 {
		return "", fmt.Errorf("cgroup key %q does not follow controller.name syntax", key)
	}
	return key[:idx], nil
}

// get reads the named file's trimmed contents. A missing file returns
// ("", nil): a missing file reads as "None", never an
// error.
func (e *editor) get(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := os.ReadFile(e.path(name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// set writes value to the named file. A missing file is a silent no-op;
// any other I/O error is returned to the caller unchanged.
func (e *editor) set(name, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.path(name)
	if !pathExists(path) {
		return nil
	}
	return os.WriteFile(path, []byte(value), 0o644)
}

// appendTasks appends a newline-delimited list of decimal thread ids to
// this directory's tasks file (cgroup v1 append-only task migration).
func (e *editor) appendTasks(ids []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	f, err := os.OpenFile(e.path("tasks"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, id := range ids {
		if _, err := f.WriteString(id + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// readTasks reads this directory's tasks file as a slice of decimal thread
// ids, skipping blank lines.
func (e *editor) readTasks() ([]string, error) {
	raw, err := e.get("tasks")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func (e *editor) path(name string) string {
	return e.dpath + string(os.PathSeparator) + name
}
