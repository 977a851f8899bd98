// dualpane - dual-pane file browser for a local machine and a remote store.
package main

import (
	"os"

	"github.com/rescale/dualpane/internal/cli"
	"github.com/rescale/dualpane/internal/version"
)

// Version information, overridden with -ldflags at release time.
var (
	Version   = "v0.3.0"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
