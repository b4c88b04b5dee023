package main

import (
	"fmt"
	"os"

	"github.com/tphakala/framebridge/cmd"
	"github.com/tphakala/framebridge/internal/buildinfo"
	"github.com/tphakala/framebridge/internal/conf"
)

// set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	settings := &conf.Settings{}
	info := buildinfo.NewContext(version, buildDate)
	if err := cmd.RootCommand(settings, info).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
