// Package nsplan turns a ContainerConfig into the clone flags and ID
// mappings a spawn needs, without itself spawning anything.
//
// The identity UID/GID mapping is expressed with
// opencontainers/runtime-spec's LinuxIDMapping, the same struct the OCI
// runtime spec and runc use to describe a uid/gid map entry, before being
// lowered into the syscall package's own SysProcIDMap.
package nsplan

import (
	"fmt"
	"path/filepath"
	"syscall"

	"github.com/kazurin775/picotin/pkg/perr"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// IdentityMapCount is the size of the identity UID/GID map: outside 0 maps
// to inside 0 for a range of 65536 ids, the same range runc uses for its
// default identity mapping.
const IdentityMapCount = 65536

// Plan is the namespace configuration derived from a ContainerConfig,
// ready to apply onto an exec.Cmd's SysProcAttr.
type Plan struct {
	CloneFlags uintptr
	UIDMap     []specs.LinuxIDMapping
	GIDMap     []specs.LinuxIDMapping
	Chroot     string
	HasChroot  bool
}

// Build derives a Plan: user, pid, ipc, and mount namespaces always, plus a
// network namespace when unshareNet is set. root, if non-empty, is
// canonicalized with filepath.Abs so later chroot calls don't depend on
// the caller's current working directory.
func Build(root string, unshareNet bool) (*Plan, error) {
	flags := uintptr(unix.CLONE_NEWUSER | unix.CLONE_NEWPID | unix.CLONE_NEWIPC | unix.CLONE_NEWNS)
	if unshareNet {
		flags |= uintptr(unix.CLONE_NEWNET)
	}

	p := &Plan{
		CloneFlags: flags,
		UIDMap: []specs.LinuxIDMapping{
			{ContainerID: 0, HostID: 0, Size: IdentityMapCount},
		},
		GIDMap: []specs.LinuxIDMapping{
			{ContainerID: 0, HostID: 0, Size: IdentityMapCount},
		},
	}

	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, perr.Wrap(perr.InvalidInput, fmt.Sprintf("resolve root %q", root), err)
		}
		p.Chroot = abs
		p.HasChroot = true
	}

	return p, nil
}

// HasNet reports whether the plan unshares the network namespace.
func (p *Plan) HasNet() bool {
	return p.CloneFlags&uintptr(unix.CLONE_NEWNET) != 0
}

// SysProcIDMaps lowers the planner's uid/gid mapping into the shape
// syscall.SysProcAttr expects.
func (p *Plan) SysProcIDMaps() (uid []syscall.SysProcIDMap, gid []syscall.SysProcIDMap) {
	for _, m := range p.UIDMap {
		uid = append(uid, syscall.SysProcIDMap{
			ContainerID: int(m.ContainerID),
			HostID:      int(m.HostID),
			Size:        int(m.Size),
		})
	}
	for _, m := range p.GIDMap {
		gid = append(gid, syscall.SysProcIDMap{
			ContainerID: int(m.ContainerID),
			HostID:      int(m.HostID),
			Size:        int(m.Size),
		})
	}
	return uid, gid
}

// Apply writes the plan onto a SysProcAttr, the way the spawn path in
// pkg/engine needs before calling cmd.Start. GidMappingsEnableSetgroups is
// left false: the child never needs supplementary groups since it always
// runs as the mapped root.
//
// It deliberately does not set attr.Chroot: the process launched under this
// SysProcAttr is picotin's own re-exec (argv0 is picotin's own absolute
// path, not the target command), and the kernel chroots before the execve
// of that argv0, not before whatever the re-exec'd process execs next. A
// chroot applied here would make the re-exec itself fail to find its own
// binary under the new root. The chroot path travels to pkg/engine.RunChild
// instead, which calls unix.Chroot after its own execve has already
// succeeded and before it execs the target command.
func (p *Plan) Apply(attr *syscall.SysProcAttr) {
	attr.Cloneflags = uintptr(p.CloneFlags)
	uid, gid := p.SysProcIDMaps()
	attr.UidMappings = uid
	attr.GidMappings = gid
	attr.GidMappingsEnableSetgroups = false
}
