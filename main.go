package main

import "github.com/mrlokans/gatekeeper/internal/cli"

// Version information - set at build time via ldflags
var Version = "dev"

func main() {
	cli.Execute(Version)
}
