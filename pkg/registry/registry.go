// Package registry is the on-disk rendezvous under a well-known root
// directory that records, per live container, its identifier, init PID,
// and pairing partner.
//
// Allocate generates a random candidate name, then lets an exclusive
// directory creation decide uniqueness, retrying on collision rather than
// deriving the ID from a PID (PIDs get reused; random IDs don't).
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kazurin775/picotin/pkg/perr"
	"github.com/sirupsen/logrus"
)

// InitPIDFile and PairedWithFile are the two well-known files kept inside
// each container's directory.
const (
	InitPIDFile    = "init_pid"
	PairedWithFile = "paired_with"
)

// Registry is a handle on the runtime root directory.
type Registry struct {
	root string
	log  *logrus.Entry
}

// New returns a Registry rooted at root.
func New(root string, log *logrus.Entry) *Registry {
	return &Registry{root: root, log: log}
}

// Root returns the runtime root directory.
func (r *Registry) Root() string {
	return r.root
}

// ValidateName rejects any container name containing '/', since a name is
// joined directly into a filesystem path. It is called at every external
// entry point before any side effect runs.
func ValidateName(name string) error {
	if strings.Contains(name, "/") {
		return perr.New(perr.InvalidInput, fmt.Sprintf("container name %q must not contain '/'", name))
	}
	if name == "" {
		return perr.New(perr.InvalidInput, "container name must not be empty")
	}
	return nil
}

// EnsureRoot creates the runtime root directory, succeeding if it already
// exists.
func (r *Registry) EnsureRoot() error {
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return perr.Wrap(perr.IOFailure, "create runtime root directory", err)
	}
	return nil
}

// Allocate generates a unique 8-hex-digit container ID and creates its
// directory with exclusive semantics, retrying on collision. It returns the
// ID and the path to its directory.
func (r *Registry) Allocate() (id string, path string, err error) {
	for {
		id = randomID()
		path = filepath.Join(r.root, id)

		mkErr := os.Mkdir(path, 0o755)
		if mkErr == nil {
			r.log.WithField("id", id).Debug("allocated container directory")
			return id, path, nil
		}
		if os.IsExist(mkErr) {
			r.log.WithField("id", id).Debug("container id collided, retrying")
			continue
		}
		return "", "", perr.Wrap(perr.IOFailure, "create container info directory", mkErr)
	}
}

// randomID draws a uniform random 32-bit integer and formats it as 8 hex
// digits. The source of randomness is uuid.New's CSPRNG-backed generator,
// truncated to its low 32 bits, rather than math/rand.
func randomID() string {
	u := uuid.New()
	b := u[:]
	v := uint32(b[12])<<24 | uint32(b[13])<<16 | uint32(b[14])<<8 | uint32(b[15])
	return fmt.Sprintf("%08x", v)
}

// PublishPID writes the decimal PID into init_pid within the container's
// directory.
func (r *Registry) PublishPID(path string, pid int) error {
	data := []byte(strconv.Itoa(pid))
	if err := os.WriteFile(filepath.Join(path, InitPIDFile), data, 0o644); err != nil {
		return perr.Wrap(perr.IOFailure, "publish init_pid", err)
	}
	return nil
}

// ReadPID parses <root>/<name>/init_pid.
func (r *Registry) ReadPID(name string) (int, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}

	path := filepath.Join(r.root, name, InitPIDFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, perr.Wrap(perr.NotFound, fmt.Sprintf("container %q has no init_pid", name), err)
		}
		return 0, perr.Wrap(perr.IOFailure, "read init_pid", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, perr.Wrap(perr.Malformed, fmt.Sprintf("init_pid for %q is not a decimal integer", name), err)
	}
	return pid, nil
}

// RecordPair writes each name into the other's paired_with file. This is
// not atomic across the two writes: a crash between them leaves one side
// recorded and the other not.
func (r *Registry) RecordPair(a, b string) error {
	if err := ValidateName(a); err != nil {
		return err
	}
	if err := ValidateName(b); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(r.root, a, PairedWithFile), []byte(b), 0o644); err != nil {
		return perr.Wrap(perr.IOFailure, fmt.Sprintf("write paired_with for %q", a), err)
	}
	if err := os.WriteFile(filepath.Join(r.root, b, PairedWithFile), []byte(a), 0o644); err != nil {
		return perr.Wrap(perr.IOFailure, fmt.Sprintf("write paired_with for %q", b), err)
	}
	return nil
}

// Exists reports whether a container directory exists in the registry.
func (r *Registry) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(r.root, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, perr.Wrap(perr.IOFailure, "stat container directory", err)
}

// List returns the names of all containers currently registered (every
// directory directly under the runtime root), for bookkeeping and cleanup
// tooling.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.Wrap(perr.IOFailure, "list runtime root", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Destroy recursively removes a container's directory. Errors are logged,
// not propagated, since Destroy runs on teardown paths with no caller left
// to report to.
func (r *Registry) Destroy(path string) {
	if err := os.RemoveAll(path); err != nil {
		r.log.WithError(err).WithField("path", path).Error("failed to remove container directory")
	}
}
