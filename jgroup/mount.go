//go:build linux

package jgroup

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/moby/sys/mountinfo"
)

// Controller names the cgroup v1 controllers this adapter cares about.
const (
	ControllerCPU     = "cpu"
	ControllerCPUAcct = "cpuacct"
	ControllerCPUSet  = "cpuset"
)

var allControllers = []string{ControllerCPU, ControllerCPUAcct, ControllerCPUSet}

// MountTable is the process-wide, per-controller mount root table,
// discovered once at init ("small per-controller mount-point
// table, initialized once").
type MountTable struct {
	// Roots maps controller name to the absolute, symlink-resolved
	// filesystem path of its mount point. A controller absent from the
	// map is not mounted/enabled on this host.
	Roots map[string]string

	// VictimRoots is Roots' values, deduplicated by resolved canonical
	// path: co-mounted controllers (e.g. cpu+cpuacct sharing one
	// directory) collapse to a single entry so teardown visits each
	// filesystem subtree exactly once.
	VictimRoots []string
}

var (
	discoverOnce  sync.Once
	discovered    *MountTable
	discoverError error
)

// Discover finds the mount table exactly once per process and caches the
// result; subsequent calls return the cached table (or error).
func Discover() (*MountTable, error) {
	discoverOnce.Do(func() {
		discovered, discoverError = discoverMounts()
	})
	return discovered, discoverError
}

// resetDiscoveryForTest allows tests to force a fresh discovery pass.
func resetDiscoveryForTest() {
	discoverOnce = sync.Once{}
	discovered = nil
	discoverError = nil
}

func discoverMounts() (*MountTable, error) {
	infos, err := mountinfo.GetMounts(mountinfo.FSTypeFilter("cgroup"))
	if err != nil {
		return nil, err
	}
	return buildTable(infos, resolveSymlink)
}

// buildTable is the testable core of discovery: given parsed mountinfo
// entries and a symlink resolver, build the per-controller mount table and
// its deduplicated victim-root list.
func buildTable(infos []*mountinfo.Info, resolve func(string) (string, error)) (*MountTable, error) {
	t := &MountTable{Roots: make(map[string]string)}
	seen := make(map[string]bool)

	for _, info := range infos {
		opts := info.VFSOptions + "," + info.Options
		for _, c := range allControllers {
			if _, exists := t.Roots[c]; exists {
				continue
			}
			if !hasOption(opts, c) {
				continue
			}
			resolved, err := resolve(info.Mountpoint)
			if err != nil {
				resolved = info.Mountpoint
			}
			t.Roots[c] = resolved
			if !seen[resolved] {
				seen[resolved] = true
				t.VictimRoots = append(t.VictimRoots, resolved)
			}
		}
	}

	return t, nil
}

func resolveSymlink(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

func hasOption(opts, name string) bool {
	for _, field := range splitComma(opts) {
		if field == name {
			return true
		}
	}
	return false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// ControllerEnabled reports whether the given controller has a discovered
// mount root.
func (t *MountTable) ControllerEnabled(controller string) bool {
	if t == nil {
		return false
	}
	_, ok := t.Roots[controller]
	return ok
}

// Root returns the mount root for a controller, or "" if not mounted.
func (t *MountTable) Root(controller string) string {
	if t == nil {
		return ""
	}
	return t.Roots[controller]
}

// pathExists is a small helper used by callers constructing directories
// under a mount root.
func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
