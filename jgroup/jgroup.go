//go:build linux

// Package jgroup is the cgroup v1 adapter ("JGroup"): a
// mirror of a cgroup directory tree, responsible for creating/destroying
// the directory, reading/writing controller files, attaching the calling
// OS thread, and evacuating leftover tasks on teardown.
package jgroup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ErrBadArgument is returned by Create when given an empty path.
type ErrBadArgument struct{ Reason string }

func (e *ErrBadArgument) Error() string { return "bad argument: " + e.Reason }

// ErrFatal signals a directory-creation failure that must abort the
// process ("Initialization failures of the cgroup adapter
// during process start abort the process").
type ErrFatal struct{ Cause error }

func (e *ErrFatal) Error() string { return fmt.Sprintf("fatal jgroup error: %v", e.Cause) }
func (e *ErrFatal) Unwrap() error { return e.Cause }

// ErrAttachFailed wraps a tasks-file write failure during Attach.
type ErrAttachFailed struct{ Cause error }

func (e *ErrAttachFailed) Error() string { return fmt.Sprintf("attach failed: %v", e.Cause) }
func (e *ErrAttachFailed) Unwrap() error { return e.Cause }

// JGroup mirrors one cgroup directory across every enabled controller's
// mount root. Non-root groups live at "<parent>/t<tenant-id>".
type JGroup struct {
	logger  hclog.Logger
	mounts  *MountTable
	relPath string
	parent  *JGroup

	editors map[string]*editor // controller -> editor rooted at this group's dir on that controller
}

// NewJVMGroup constructs the process-wide top-level "jvmGroup"
// invariant a: "exactly one top JGroup per process"). It must be Create'd
// before use.
func NewJVMGroup(logger hclog.Logger, mounts *MountTable, layout Layout) *JGroup {
	return &JGroup{
		logger:  logger.Named("jgroup"),
		mounts:  mounts,
		relPath: layout.jvmGroupPath(currentPID()),
		editors: make(map[string]*editor),
	}
}

// NewChild constructs a (not-yet-created) JGroup for a tenant, nested under
// parent at "<parent>/t<tenant-id>". Pass the relSuffix ("t<id>")
// computed via TenantRelPath.
func NewChild(parent *JGroup, relSuffix string) *JGroup {
	return &JGroup{
		logger:  parent.logger,
		mounts:  parent.mounts,
		relPath: joinPath(parent.relPath, relSuffix),
		parent:  parent,
		editors: make(map[string]*editor),
	}
}

// Path returns this group's path relative to each controller's mount root.
func (g *JGroup) Path() string { return g.relPath }

// Parent returns this group's parent, or nil for the jvmGroup.
func (g *JGroup) Parent() *JGroup { return g.parent }

// Create makes the cgroup directory on every enabled controller's mount
// root and, if cpuset is enabled, seeds cpuset.cpus/cpuset.mems by copying
// them from the parent (or, for the jvmGroup, leaves the kernel-provided
// defaults in place).
func (g *JGroup) Create() error {
	if g.relPath == "" || g.relPath == "/" {
		return &ErrBadArgument{Reason: "jgroup path must not be empty"}
	}

	for _, controller := range allControllers {
		root := g.mounts.Root(controller)
		if root == "" {
			continue
		}
		dir := root + g.relPath
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &ErrFatal{Cause: fmt.Errorf("mkdir %s: %w", dir, err)}
		}
		// The kernel auto-populates a freshly created cgroup v1
		// directory with its controller's control files, including
		// "tasks". touchIfMissing is a no-op there; it only matters
		// against a non-cgroupfs test double.
		touchIfMissing(dir + "/tasks")
		g.editors[controller] = newEditor(dir)
	}

	if g.ControllerEnabled(ControllerCPUSet) && g.parent != nil {
		if err := g.seedCpuset(); err != nil {
			g.logger.Warn("failed to seed cpuset from parent", "error", err)
		}
	}

	return nil
}

func (g *JGroup) seedCpuset() error {
	for _, name := range []string{"cpuset.cpus", "cpuset.mems"} {
		val, err := g.parent.GetValue("cpuset." + trimPrefix(name, "cpuset."))
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		if err := g.SetValue(name, val); err != nil {
			return err
		}
	}
	return nil
}

func touchIfMissing(path string) {
	if !pathExists(path) {
		_ = os.WriteFile(path, nil, 0o644)
	}
}

func trimPrefix(s, prefix string) string {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// ControllerEnabled reports whether controller is mounted and this group
// has an editor for it (i.e. Create has run).
func (g *JGroup) ControllerEnabled(controller string) bool {
	_, ok := g.editors[controller]
	return ok
}

// SetValue writes a "controller.name" key. Routed to the controller's
// editor; a missing file is a silent no-op. The controller not
// being enabled is also a silent no-op, consistent with ResourceLimit.Sync.
func (g *JGroup) SetValue(key, value string) error {
	controller, err := keyController(key)
	if err != nil {
		return err
	}
	ed, ok := g.editors[controller]
	if !ok {
		return nil
	}
	return ed.set(key, value)
}

// GetValue reads a "controller.name" key, returning "" if the controller
// isn't enabled or the file doesn't exist.
func (g *JGroup) GetValue(key string) (string, error) {
	controller, err := keyController(key)
	if err != nil {
		return "", err
	}
	ed, ok := g.editors[controller]
	if !ok {
		return "", nil
	}
	return ed.get(key)
}

// Attach writes the current OS thread id into this group's tasks file on
// every enabled controller, once per distinct directory (co-mounted
// controllers share one tasks file).
func (g *JGroup) Attach() error {
	tid := strconv.Itoa(currentThreadID())
	written := make(map[string]bool)
	for controller, ed := range g.editors {
		if written[ed.dpath] {
			continue
		}
		written[ed.dpath] = true
		if err := ed.appendTasks([]string{tid}); err != nil {
			return &ErrAttachFailed{Cause: fmt.Errorf("controller %s: %w", controller, err)}
		}
	}
	return nil
}

// Detach moves the calling thread back to jvmGroup
// ("detach is defined as attach(jvm_group)").
func (g *JGroup) Detach(jvmGroup *JGroup) error {
	return jvmGroup.Attach()
}

// Destroy tears down this group: for every victim root (the mount table's
// deduplicated set of canonical controller roots, so a co-mounted
// controller pair such as cpu+cpuacct is visited once, not once per
// controller), it recursively evacuates this subtree's tasks files into
// the parent's tasks file (or, for the jvmGroup itself, its own parent
// directory, which is the caller's concern -- the jvmGroup is destroyed
// only at process exit), and removes the directory together with any
// group directories below it, deepest first. Best-effort: I/O
// errors are aggregated and logged, never propagated.
func (g *JGroup) Destroy() {
	var merr *multierror.Error

	for _, root := range g.mounts.VictimRoots {
		ed := g.editorForRoot(root)
		if ed == nil {
			continue
		}
		if err := evacuate(ed, g.parentEditorForRoot(root)); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("evacuate %s: %w", ed.dpath, err))
		}
		if err := os.RemoveAll(ed.dpath); err != nil && !os.IsNotExist(err) {
			merr = multierror.Append(merr, fmt.Errorf("rmdir %s: %w", ed.dpath, err))
		}
	}

	if merr.ErrorOrNil() != nil {
		g.logger.Warn("jgroup teardown encountered errors", "error", merr)
	}
}

// editorForRoot returns this group's editor mounted at the given
// (deduplicated) controller root, or nil if none of this group's
// controllers resolve there.
func (g *JGroup) editorForRoot(root string) *editor {
	for controller, ed := range g.editors {
		if g.mounts.Roots[controller] == root {
			return ed
		}
	}
	return nil
}

func (g *JGroup) parentEditorForRoot(root string) *editor {
	if g.parent == nil {
		return nil
	}
	return g.parent.editorForRoot(root)
}

// evacuate drains the tasks of src's directory and of every directory
// below it into dst's tasks (append semantics). A nil
// dst (no parent, e.g. destroying the jvmGroup) is a no-op: there is
// nowhere to evacuate to, so the caller relies on the kernel auto-reaping
// an empty cgroup.
func evacuate(src, dst *editor) error {
	if dst == nil {
		return nil
	}
	return filepath.WalkDir(src.dpath, func(dir string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		ids, err := newEditor(dir).readTasks()
		if err == nil {
			err = dst.appendTasks(ids)
		}
		return err
	})
}
