//go:build linux

package jgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/shoenig/test/must"
)

func testMounts(t *testing.T) *MountTable {
	base := t.TempDir()
	roots := map[string]string{
		ControllerCPU:     filepath.Join(base, "cpu,cpuacct"),
		ControllerCPUAcct: filepath.Join(base, "cpu,cpuacct"),
		ControllerCPUSet:  filepath.Join(base, "cpuset"),
	}
	for _, r := range roots {
		must.NoError(t, os.MkdirAll(r, 0o755))
	}
	var victims []string
	seen := map[string]bool{}
	for _, r := range roots {
		if !seen[r] {
			seen[r] = true
			victims = append(victims, r)
		}
	}
	return &MountTable{Roots: roots, VictimRoots: victims}
}

func testJVMGroup(t *testing.T) *JGroup {
	mounts := testMounts(t)
	jvm := NewJVMGroup(hclog.NewNullLogger(), mounts, DefaultLayout())
	must.NoError(t, jvm.Create())
	return jvm
}

func TestCreate_EmptyPath(t *testing.T) {
	mounts := testMounts(t)
	g := &JGroup{logger: hclog.NewNullLogger(), mounts: mounts, editors: map[string]*editor{}}
	err := g.Create()
	var bad *ErrBadArgument
	must.ErrorAs(t, err, &bad)
}

func TestCreate_ChildPath(t *testing.T) {
	jvm := testJVMGroup(t)
	child := NewChild(jvm, TenantRelPath(11))
	must.NoError(t, child.Create())

	must.Eq(t, jvm.Path()+"/t11", child.Path())
	must.True(t, child.ControllerEnabled(ControllerCPU))
	must.True(t, child.ControllerEnabled(ControllerCPUSet))
}

func TestSetValue_GetValue_RoundTrip(t *testing.T) {
	jvm := testJVMGroup(t)
	child := NewChild(jvm, TenantRelPath(10))
	must.NoError(t, child.Create())

	// cpu.shares doesn't exist until the "kernel" (in our test double,
	// nothing) creates it; simulate that.
	for _, name := range []string{"cpu.shares", "cpuset.cpus"} {
		for _, controller := range []string{ControllerCPU, ControllerCPUSet} {
			dir := child.editors[controller]
			if dir == nil {
				continue
			}
			touchIfMissing(dir.path(name))
		}
	}

	must.NoError(t, child.SetValue("cpu.shares", "512"))
	got, err := child.GetValue("cpu.shares")
	must.NoError(t, err)
	must.Eq(t, "512", got)

	must.NoError(t, child.SetValue("cpuset.cpus", "0-3"))
	got, err = child.GetValue("cpuset.cpus")
	must.NoError(t, err)
	must.Eq(t, "0-3", got)
}

func TestGetValue_MissingFileIsEmpty(t *testing.T) {
	jvm := testJVMGroup(t)
	val, err := jvm.GetValue("cpu.shares")
	must.NoError(t, err)
	must.Eq(t, "", val)
}

func TestSetValue_DisabledControllerIsNoop(t *testing.T) {
	jvm := testJVMGroup(t)
	// memory isn't a tracked controller at all: keyController still
	// parses it but no editor exists for it.
	must.NoError(t, jvm.SetValue("memory.limit_in_bytes", "100"))
}

func TestAttach_Detach(t *testing.T) {
	jvm := testJVMGroup(t)
	child := NewChild(jvm, TenantRelPath(12))
	must.NoError(t, child.Create())

	must.NoError(t, child.Attach())
	for _, ed := range child.editors {
		ids, err := ed.readTasks()
		must.NoError(t, err)
		must.Len(t, 1, ids)
	}

	must.NoError(t, child.Detach(jvm))
	for _, ed := range jvm.editors {
		ids, err := ed.readTasks()
		must.NoError(t, err)
		must.Len(t, 1, ids)
	}
}

func TestDestroy_EvacuatesIntoParent(t *testing.T) {
	jvm := testJVMGroup(t)
	child := NewChild(jvm, TenantRelPath(13))
	must.NoError(t, child.Create())
	must.NoError(t, child.Attach())

	child.Destroy()

	for controller, ed := range jvm.editors {
		ids, err := ed.readTasks()
		must.NoError(t, err)
		must.Len(t, 1, ids, must.Sprint("controller", controller))
	}
	for _, ed := range child.editors {
		must.False(t, pathExists(ed.dpath))
	}
}

func TestDestroy_CoMountedControllers_EvacuatesOnce(t *testing.T) {
	jvm := testJVMGroup(t)
	child := NewChild(jvm, TenantRelPath(14))
	must.NoError(t, child.Create())
	must.NoError(t, child.Attach())

	child.Destroy()

	// cpu and cpuacct share one directory on disk; a correct Destroy
	// visits that directory once, so the shared tasks file holds exactly
	// one migrated id, not two.
	must.Eq(t, jvm.editors[ControllerCPU].dpath, jvm.editors[ControllerCPUAcct].dpath)
	ids, err := jvm.editors[ControllerCPU].readTasks()
	must.NoError(t, err)
	must.Len(t, 1, ids)

	must.Len(t, 2, jvm.mounts.VictimRoots) // the shared cpu,cpuacct dir plus cpuset
}

func TestNestedJGroup_GrandchildPath(t *testing.T) {
	jvm := testJVMGroup(t)
	parent := NewChild(jvm, TenantRelPath(10))
	must.NoError(t, parent.Create())
	child := NewChild(parent, TenantRelPath(11))
	must.NoError(t, child.Create())

	must.Eq(t, jvm.Path()+"/t10/t11", child.Path())

	// destroying the child must not remove the parent's directory.
	child.Destroy()
	must.True(t, pathExists(parent.editors[ControllerCPU].dpath))
}
