package veth

import (
	"testing"

	"github.com/kazurin775/picotin/pkg/registry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The actual netlink choreography (LinkAdd, LinkSetNsPid, AddrAdd) needs
// CAP_NET_ADMIN and real namespaces, so it is only exercised on a real Linux
// host with root. These tests cover the parts of Link that run before any
// syscall: name validation and interface-name derivation.

func TestVethNamesStayWithinIfnamsiz(t *testing.T) {
	a, b := vethNames("a-very-long-container-name", "another-very-long-one")
	assert.LessOrEqual(t, len(a), 15)
	assert.LessOrEqual(t, len(b), 15)
}

func TestVethNamesAreDistinctAndDeterministic(t *testing.T) {
	a1, b1 := vethNames("left", "right")
	a2, b2 := vethNames("left", "right")
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.NotEqual(t, a1, b1)
}

func TestLinkRejectsSelfPairing(t *testing.T) {
	root := t.TempDir()
	reg := registry.New(root, logrus.NewEntry(logrus.New()))
	l := New(reg, logrus.NewEntry(logrus.New()))

	err := l.Link("same", "same")
	assert.Error(t, err)
}

func TestLinkRejectsInvalidNames(t *testing.T) {
	root := t.TempDir()
	reg := registry.New(root, logrus.NewEntry(logrus.New()))
	l := New(reg, logrus.NewEntry(logrus.New()))

	err := l.Link("has/slash", "other")
	assert.Error(t, err)
}

func TestLinkFailsForUnknownContainer(t *testing.T) {
	root := t.TempDir()
	reg := registry.New(root, logrus.NewEntry(logrus.New()))
	require.NoError(t, reg.EnsureRoot())
	l := New(reg, logrus.NewEntry(logrus.New()))

	err := l.Link("ghost-a", "ghost-b")
	assert.Error(t, err)
}

func TestAddressAssignments(t *testing.T) {
	assert.Equal(t, "192.168.1.1", AddressA.IP.String())
	assert.Equal(t, "192.168.1.2", AddressB.IP.String())
}
