// Package veth pairs two running containers: creating a veth pair in the
// host namespace, moving each peer into one container's network namespace,
// and addressing both ends.
//
// A netlink socket opened before a setns keeps operating on the old
// namespace, so a fresh socket has to be opened after the switch. pkg/nsguard
// handles that switch; addressing happens in two separate excursions rather
// than one for this reason.
package veth

import (
	"fmt"
	"net"

	"github.com/kazurin775/picotin/pkg/nsguard"
	"github.com/kazurin775/picotin/pkg/perr"
	"github.com/kazurin775/picotin/pkg/registry"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// AddressA and AddressB are the fixed addresses assigned to the two ends
// of a link, the left-hand side getting the lower address.
var (
	AddressA = &net.IPNet{IP: net.IPv4(192, 168, 1, 1), Mask: net.CIDRMask(24, 32)}
	AddressB = &net.IPNet{IP: net.IPv4(192, 168, 1, 2), Mask: net.CIDRMask(24, 32)}
)

// Linker pairs two containers' network namespaces with a veth link.
type Linker struct {
	reg *registry.Registry
	log *logrus.Entry
}

// New returns a Linker backed by reg.
func New(reg *registry.Registry, log *logrus.Entry) *Linker {
	return &Linker{reg: reg, log: log}
}

// vethNames derives the veth-⟨name⟩ interface names for the two ends of a
// link, truncating the container name where needed since the Linux kernel
// caps interface names at 15 bytes (IFNAMSIZ - 1).
func vethNames(lhs, rhs string) (nameLHS, nameRHS string) {
	const prefix = "veth-"
	trim := func(s string) string {
		max := 15 - len(prefix)
		if len(s) > max {
			return s[:max]
		}
		return s
	}
	return prefix + trim(lhs), prefix + trim(rhs)
}

// Link pairs containers named a and b. Both must already be registered and
// running with their own network namespace.
func (l *Linker) Link(a, b string) error {
	if err := registry.ValidateName(a); err != nil {
		return err
	}
	if err := registry.ValidateName(b); err != nil {
		return err
	}
	if a == b {
		return perr.New(perr.InvalidInput, fmt.Sprintf("cannot link %q to itself", a))
	}

	pidA, err := l.reg.ReadPID(a)
	if err != nil {
		return err
	}
	pidB, err := l.reg.ReadPID(b)
	if err != nil {
		return err
	}

	if err := l.reg.RecordPair(a, b); err != nil {
		return err
	}

	nameA, nameB := vethNames(a, b)
	l.log.WithFields(logrus.Fields{"a": a, "b": b, "ifaceA": nameA, "ifaceB": nameB}).Debug("creating veth pair")

	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: nameA},
		PeerName:  nameB,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return perr.Wrap(perr.KernelReject, "create veth pair", err)
	}

	linkA, err := netlink.LinkByName(nameA)
	if err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("look up %s after creation", nameA), err)
	}
	linkB, err := netlink.LinkByName(nameB)
	if err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("look up %s after creation", nameB), err)
	}

	// Bring each end up and move it into its target namespace while the
	// interface is still addressable from the host socket; once it moves,
	// only a socket opened inside that namespace can reach it again.
	if err := netlink.LinkSetUp(linkA); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("set %s up", nameA), err)
	}
	if err := netlink.LinkSetNsPid(linkA, pidA); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("move %s into namespace of pid %d", nameA, pidA), err)
	}
	if err := netlink.LinkSetUp(linkB); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("set %s up", nameB), err)
	}
	if err := netlink.LinkSetNsPid(linkB, pidB); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("move %s into namespace of pid %d", nameB, pidB), err)
	}

	if err := l.addressUp(pidA, nameA, AddressA); err != nil {
		return err
	}
	if err := l.addressUp(pidB, nameB, AddressB); err != nil {
		return err
	}

	return nil
}

// addressUp enters the namespace of pid, assigns addr to the interface
// named iface, and brings it up. It uses the package-level netlink
// functions, which open a new socket for each request, so every request is
// made from inside the namespace the thread has just entered.
func (l *Linker) addressUp(pid int, iface string, addr *net.IPNet) error {
	restore, err := nsguard.Enter(pid)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := restore(); rerr != nil {
			l.log.WithError(rerr).Error("failed to restore network namespace")
		}
	}()

	link, err := netlink.LinkByName(iface)
	if err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("look up %s inside target namespace", iface), err)
	}

	if err := netlink.AddrAdd(link, &netlink.Addr{IPNet: addr}); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("assign address to %s", iface), err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("bring %s up", iface), err)
	}

	loopback, err := netlink.LinkByName("lo")
	if err == nil {
		_ = netlink.LinkSetUp(loopback)
	}

	return nil
}
