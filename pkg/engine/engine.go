// Package engine drives one container's lifecycle: it assembles a Runtime
// Registry entry, a Namespace Planner plan, and a Cgroup Manager handle
// into one container, and drives it from creation through exit and
// teardown.
//
// New does all the fallible setup (allocate the registry directory, build
// the namespace plan, create the cgroup) and unwinds whatever it has
// already built on any later failure; Run spawns one child and waits on
// it, jailing the child's PID into the cgroup before the child's first
// instruction runs; Close (called by the caller via defer) does the final
// teardown.
//
// exec.Cmd has no hook for running setup code between clone and exec, so
// the "jailed before the target program's first instruction" ordering is
// reconstructed with a synchronization pipe around a re-exec of picotin
// itself: the child blocks on a pipe read until the parent has published
// its PID and jailed it, then execs the real command.
package engine

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/kazurin775/picotin/pkg/cgroup"
	"github.com/kazurin775/picotin/pkg/config"
	"github.com/kazurin775/picotin/pkg/nsplan"
	"github.com/kazurin775/picotin/pkg/perr"
	"github.com/kazurin775/picotin/pkg/registry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ReexecSubcommand is the hidden argv[1] picotin recognizes as "this
// process is the re-exec'd container init, not a user invocation." main.go
// must check for it before doing any flag parsing of its own.
const ReexecSubcommand = "__picotin_spawn__"

// ChrootEnvVar carries the planned chroot directory, if any, from Run to
// RunChild across the re-exec. It cannot travel via SysProcAttr.Chroot: that
// field would chroot the re-exec's own execve of picotin's own binary, not
// the target command RunChild execs afterward (see nsplan.Plan.Apply).
const ChrootEnvVar = "PICOTIN_CHROOT"

// State names each step of a container's life, in the order New and Run
// move it through.
type State int

const (
	Configured State = iota
	DirAllocated
	Planned
	CgroupReady
	Spawning
	Running
	Exited
	TornDown
)

func (s State) String() string {
	switch s {
	case Configured:
		return "Configured"
	case DirAllocated:
		return "DirAllocated"
	case Planned:
		return "Planned"
	case CgroupReady:
		return "CgroupReady"
	case Spawning:
		return "Spawning"
	case Running:
		return "Running"
	case Exited:
		return "Exited"
	case TornDown:
		return "TornDown"
	default:
		return "Unknown"
	}
}

// Container is a single allocated, not-yet-necessarily-running container.
type Container struct {
	ID    string
	dir   string
	cfg   config.ContainerConfig
	plan  *nsplan.Plan
	cg    *cgroup.Handle
	reg   *registry.Registry
	log   *logrus.Entry
	state State
}

// New allocates a Registry directory, builds the namespace plan, and
// creates the cgroup for cfg, unwinding whatever partial state it built if
// a later step fails.
func New(cfg config.ContainerConfig, reg *registry.Registry, log *logrus.Entry) (*Container, error) {
	if err := reg.EnsureRoot(); err != nil {
		return nil, err
	}

	id, dir, err := reg.Allocate()
	if err != nil {
		return nil, err
	}
	c := &Container{ID: id, dir: dir, cfg: cfg, reg: reg, log: log.WithField("container", id), state: DirAllocated}

	root := ""
	if cfg.HasRoot {
		root = cfg.Root
	}
	plan, err := nsplan.Build(root, cfg.UnshareNet)
	if err != nil {
		reg.Destroy(dir)
		return nil, err
	}
	c.plan = plan
	c.state = Planned

	cg, err := cgroup.Create(id, cfg, c.log)
	if err != nil {
		reg.Destroy(dir)
		return nil, err
	}
	c.cg = cg
	c.state = CgroupReady

	return c, nil
}

// Run spawns the configured command inside the planned namespaces, jails
// it into the cgroup before it reaches its first instruction, waits for it
// to exit, and returns its exit code.
func (c *Container) Run() (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, perr.Wrap(perr.SpawnFailure, "resolve picotin's own executable path", err)
	}

	argv := append([]string{ReexecSubcommand}, c.cfg.CommandOrDefault()...)
	cmd := exec.Command(self, argv...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = os.Environ()
	if c.plan.HasChroot {
		cmd.Env = append(cmd.Env, ChrootEnvVar+"="+c.plan.Chroot)
	}

	attr := &syscall.SysProcAttr{}
	c.plan.Apply(attr)
	cmd.SysProcAttr = attr

	syncRead, syncWrite, err := os.Pipe()
	if err != nil {
		return 0, perr.Wrap(perr.SpawnFailure, "create synchronization pipe", err)
	}
	cmd.ExtraFiles = []*os.File{syncRead}

	c.state = Spawning
	c.log.Debug("spawning container process")
	if err := cmd.Start(); err != nil {
		syncRead.Close()
		syncWrite.Close()
		return 0, perr.Wrap(perr.SpawnFailure, "spawn container process", err)
	}
	syncRead.Close()

	pid := cmd.Process.Pid
	c.log.WithField("pid", pid).Debug("container process spawned")

	if err := c.reg.PublishPID(c.dir, pid); err != nil {
		syncWrite.Close()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return 0, err
	}

	if err := c.cg.Jail(pid); err != nil {
		syncWrite.Close()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return 0, err
	}

	// Release the child now that it is registered and jailed, mirroring the
	// moment the Rust implementation's before_unfreeze hook returns Ok.
	if _, err := syncWrite.Write([]byte{0}); err != nil {
		syncWrite.Close()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return 0, perr.Wrap(perr.SpawnFailure, "release spawned container process", err)
	}
	syncWrite.Close()

	c.state = Running
	err = cmd.Wait()
	c.state = Exited
	if err == nil {
		c.log.Debug("container process exited 0")
		return 0, nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 0, perr.Wrap(perr.WaitFailure, "wait for container process", err)
	}
	code := exitErr.ExitCode()
	c.log.WithField("code", code).Debug("container process exited")
	return code, nil
}

// Close tears the container down: the cgroup is deleted and the Registry
// directory is removed. Both steps log their own errors rather than
// propagate them, since by the time Close runs there is no caller left to
// hand a failure to.
func (c *Container) Close() {
	c.log.Debug("tearing down container")
	if c.cg != nil {
		c.cg.Destroy()
	}
	c.reg.Destroy(c.dir)
	c.state = TornDown
}

// State reports the container's current lifecycle state.
func (c *Container) State() State {
	return c.state
}

// RunChild is the re-exec'd container init. main.go calls this when
// os.Args[1] == ReexecSubcommand, before doing any of its own flag
// parsing — this process is already inside the new namespaces by the time
// Go's runtime starts, courtesy of SysProcAttr.
//
// It blocks on the synchronization pipe inherited as fd 3 until the parent
// has published this PID to the Registry and jailed it into the cgroup,
// then chroots (if Run set ChrootEnvVar), mounts a fresh /proc for the new
// PID namespace, and execs the target command, replacing itself so the
// target becomes PID 1.
//
// The chroot happens here rather than in the SysProcAttr that launched this
// very process: that launch's argv0 is picotin's own absolute host path, and
// the kernel chroots before execve-ing argv0, not before whatever argv0
// execs next. Doing it here, after this process's own execve has already
// succeeded, is the same pattern gclone's runChildProcess uses for a
// self-re-exec chroot.
func RunChild(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "picotin: internal error: re-exec with no command")
		return 1
	}

	sync := os.NewFile(3, "picotin-sync")
	var buf [1]byte
	if _, err := sync.Read(buf[:]); err != nil {
		fmt.Fprintf(os.Stderr, "picotin: internal error: wait for release: %v\n", err)
		return 1
	}
	sync.Close()

	if chroot := os.Getenv(ChrootEnvVar); chroot != "" {
		if err := unix.Chroot(chroot); err != nil {
			fmt.Fprintf(os.Stderr, "picotin: chroot %s: %v\n", chroot, err)
			return 1
		}
		if err := os.Chdir("/"); err != nil {
			fmt.Fprintf(os.Stderr, "picotin: chdir to new root: %v\n", err)
			return 1
		}
	}

	if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil {
		fmt.Fprintf(os.Stderr, "picotin: mount /proc: %v\n", err)
		return 1
	}

	path, err := exec.LookPath(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "picotin: %s: %v\n", args[0], err)
		return 1
	}

	env := childEnviron()
	if err := syscall.Exec(path, args, env); err != nil {
		fmt.Fprintf(os.Stderr, "picotin: exec %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// childEnviron returns the current environment with ChrootEnvVar stripped:
// it is picotin's own internal plumbing between Run and RunChild, not
// something the target command should see.
func childEnviron() []string {
	prefix := ChrootEnvVar + "="
	env := os.Environ()
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
