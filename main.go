package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/kazurin775/picotin/pkg/app"
	"github.com/kazurin775/picotin/pkg/config"
	"github.com/kazurin775/picotin/pkg/engine"
	"github.com/kazurin775/picotin/pkg/perr"
	"github.com/samber/lo"
)

const DefaultVersion = "unversioned"

var (
	commit  string
	version = DefaultVersion
	date    string
)

func main() {
	// A re-exec'd container init never reaches flaggy: it is not a user
	// invocation and has its own argv convention (see engine.RunChild).
	if len(os.Args) > 1 && os.Args[1] == engine.ReexecSubcommand {
		os.Exit(engine.RunChild(os.Args[2:]))
	}

	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s",
		version, date, commit, runtime.GOOS, runtime.GOARCH,
	)

	flaggy.SetName("picotin")
	flaggy.SetDescription("A minimal Linux container engine")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/kazurin775/picotin"
	flaggy.SetVersion(info)

	var debuggingFlag bool
	flaggy.Bool(&debuggingFlag, "d", "debug", "enable verbose logging")

	var rootPath string
	// -1 is the "flag not given" sentinel for both: flaggy has no API to ask
	// whether a flag was actually passed versus left at its Go zero value,
	// and zero is itself a real, spec-valid request (a CPU quota of 0, or a
	// 0 MiB memory limit). Neither a negative CPU multiplier nor a negative
	// memory size is ever a legitimate request, so -1 never collides with
	// one a caller could actually mean.
	cpuMultiplier := -1.0
	memoryMiB := -1
	var noUnshareNet bool

	newCmd := flaggy.NewSubcommand("new")
	newCmd.Description = "create and run a new container"
	newCmd.String(&rootPath, "", "root", "directory to chroot the container into")
	newCmd.Float64(&cpuMultiplier, "", "cpu-mul", "CPU limit as a multiplier of one core (e.g. 0.5)")
	newCmd.Int(&memoryMiB, "", "mem-mib", "memory hard limit in mebibytes")
	newCmd.Bool(&noUnshareNet, "", "no-unshare-net", "do not give the container its own network namespace")

	var linkLHS, linkRHS string
	linkCmd := flaggy.NewSubcommand("link")
	linkCmd.Description = "connect two running containers with a veth pair"
	linkCmd.AddPositionalValue(&linkLHS, "LHS", 1, true, "first container name")
	linkCmd.AddPositionalValue(&linkRHS, "RHS", 2, true, "second container name")

	flaggy.AttachSubcommand(newCmd, 1)
	flaggy.AttachSubcommand(linkCmd, 1)

	flaggy.Parse()

	hasCPUMultiplier := newCmd.Used && cpuMultiplier >= 0
	hasMemoryMiB := newCmd.Used && memoryMiB >= 0

	appConfig, err := config.NewAppConfig("picotin", version, commit, date, debuggingFlag)
	if err != nil {
		log.Fatal(err.Error())
	}

	a, err := app.NewApp(appConfig)
	if err != nil {
		log.Fatal(err.Error())
	}

	var exitCode int
	switch {
	case newCmd.Used:
		exitCode, err = runNew(a, rootPath, cpuMultiplier, hasCPUMultiplier, memoryMiB, hasMemoryMiB, noUnshareNet, flaggy.TrailingArguments)
	case linkCmd.Used:
		err = a.Link(linkLHS, linkRHS)
	default:
		flaggy.ShowHelpAndExit("expected a command: new or link")
		return
	}

	if err != nil {
		if errMessage, known := a.KnownError(err); known {
			a.Log.Error(errMessage)
			os.Exit(1)
		}

		if a.Config.Debug {
			newErr := errors.Wrap(err, 0)
			a.Log.Error(newErr.ErrorStack())
		} else {
			a.Log.Error(perr.Chain(err))
		}
		os.Exit(1)
	}

	os.Exit(exitCode)
}

func runNew(a *app.App, root string, cpuMultiplier float64, hasCPUMultiplier bool, memoryMiB int, hasMemoryMiB bool, noUnshareNet bool, command []string) (int, error) {
	var memoryMiBValue uint64
	if hasMemoryMiB {
		memoryMiBValue = uint64(memoryMiB)
	}

	ccfg := config.ContainerConfig{
		Root:             root,
		HasRoot:          root != "",
		Command:          command,
		CPUMultiplier:    cpuMultiplier,
		HasCPUMultiplier: hasCPUMultiplier,
		MemoryMiB:        memoryMiBValue,
		HasMemoryMiB:     hasMemoryMiB,
		UnshareNet:       !noUnshareNet,
	}

	c, err := a.NewContainer(ccfg)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	return c.Run()
}

func updateBuildInfo() {
	if version != DefaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	revision, found := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
		return setting.Key == "vcs.revision"
	})
	if found {
		commit = revision.Value
		// if picotin was built from source we show the version as the
		// abbreviated commit hash
		if len(commit) > 7 {
			version = commit[:7]
		} else {
			version = commit
		}
	}

	buildTime, found := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
		return setting.Key == "vcs.time"
	})
	if found {
		date = buildTime.Value
	}
}
