// ftjobs - friend-tree job manager for HTCondor
package main

import (
	"os"

	"github.com/higgsanalysis/ftjobs/internal/cli"
	"github.com/higgsanalysis/ftjobs/internal/version"
)

// Version information, injected via LDFLAGS for releases
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
