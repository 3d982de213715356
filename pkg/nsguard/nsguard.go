// Package nsguard provides a scoped way to enter another process's network
// namespace for the duration of a netlink call and reliably switch back.
//
// It is grounded on vishvananda/netns (the library vishvananda/netlink
// itself depends on for cross-namespace use), and on the access pattern
// sandia-minimega-minimega uses in its symlinkNetns/unlinkNetns functions
// (src/minimega/container.go): reach a namespace through
// /proc/<pid>/ns/net rather than a bind-mounted path, since picotin never
// persists a namespace handle beyond a single veth linking operation.
package nsguard

import (
	"fmt"
	"runtime"

	"github.com/kazurin775/picotin/pkg/perr"
	"github.com/vishvananda/netns"
)

// Enter switches the calling goroutine's OS thread into the network
// namespace of pid, and returns a restore function that must be called to
// switch back and unlock the thread.
//
// Netlink sockets do not follow setns: the handle connected in the caller's
// original namespace keeps talking to that namespace even after this call
// returns. Anyone that needs to operate inside the target namespace must
// open a fresh netlink handle only after Enter has returned, and close it
// before calling restore.
func Enter(pid int) (restore func() error, err error) {
	runtime.LockOSThread()

	original, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, perr.Wrap(perr.KernelReject, "capture current network namespace", err)
	}

	target, err := netns.GetFromPid(pid)
	if err != nil {
		original.Close()
		runtime.UnlockOSThread()
		return nil, perr.Wrap(perr.KernelReject, fmt.Sprintf("open network namespace of pid %d", pid), err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		original.Close()
		runtime.UnlockOSThread()
		return nil, perr.Wrap(perr.KernelReject, fmt.Sprintf("enter network namespace of pid %d", pid), err)
	}

	restore = func() error {
		defer runtime.UnlockOSThread()
		defer original.Close()
		if err := netns.Set(original); err != nil {
			return perr.Wrap(perr.KernelReject, "restore original network namespace", err)
		}
		return nil
	}
	return restore, nil
}
