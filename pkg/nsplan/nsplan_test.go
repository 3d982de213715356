package nsplan

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBuildAlwaysSetsCoreNamespaces(t *testing.T) {
	p, err := Build("", false)
	require.NoError(t, err)

	assert.NotZero(t, p.CloneFlags&uintptr(unix.CLONE_NEWUSER))
	assert.NotZero(t, p.CloneFlags&uintptr(unix.CLONE_NEWPID))
	assert.NotZero(t, p.CloneFlags&uintptr(unix.CLONE_NEWIPC))
	assert.NotZero(t, p.CloneFlags&uintptr(unix.CLONE_NEWNS))
	assert.False(t, p.HasNet())
}

func TestBuildUnshareNetAddsNetNamespace(t *testing.T) {
	p, err := Build("", true)
	require.NoError(t, err)
	assert.True(t, p.HasNet())
}

func TestBuildIdentityMapping(t *testing.T) {
	p, err := Build("", false)
	require.NoError(t, err)

	require.Len(t, p.UIDMap, 1)
	assert.EqualValues(t, 0, p.UIDMap[0].ContainerID)
	assert.EqualValues(t, 0, p.UIDMap[0].HostID)
	assert.EqualValues(t, IdentityMapCount, p.UIDMap[0].Size)

	require.Len(t, p.GIDMap, 1)
	assert.EqualValues(t, 0, p.GIDMap[0].ContainerID)
	assert.EqualValues(t, 0, p.GIDMap[0].HostID)
	assert.EqualValues(t, IdentityMapCount, p.GIDMap[0].Size)
}

func TestBuildResolvesRootToAbsolutePath(t *testing.T) {
	p, err := Build("relative/root", false)
	require.NoError(t, err)
	require.True(t, p.HasChroot)
	assert.True(t, len(p.Chroot) > 0 && p.Chroot[0] == '/')
}

func TestBuildNoRootLeavesChrootUnset(t *testing.T) {
	p, err := Build("", false)
	require.NoError(t, err)
	assert.False(t, p.HasChroot)
	assert.Empty(t, p.Chroot)
}

func TestApplySetsSysProcAttr(t *testing.T) {
	p, err := Build("/var/tmp", true)
	require.NoError(t, err)

	attr := &syscall.SysProcAttr{}
	p.Apply(attr)

	assert.Equal(t, p.CloneFlags, attr.Cloneflags)
	assert.Len(t, attr.UidMappings, 1)
	assert.Len(t, attr.GidMappings, 1)
	assert.False(t, attr.GidMappingsEnableSetgroups)
}

// Apply must never set attr.Chroot: the SysProcAttr it writes onto launches
// picotin's own re-exec, whose argv0 is picotin's own absolute host path.
// Chrooting that launch would make the re-exec unable to find its own
// binary under the new root. See pkg/engine.RunChild for where the chroot
// the Plan carries actually gets applied.
func TestApplyNeverSetsChroot(t *testing.T) {
	p, err := Build("/var/tmp", true)
	require.NoError(t, err)
	require.True(t, p.HasChroot)

	attr := &syscall.SysProcAttr{}
	p.Apply(attr)

	assert.Empty(t, attr.Chroot)
}
