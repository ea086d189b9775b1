package main

import "github.com/flab-reels/authcdk/pkg/cli"

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "0.0.0-local"

func main() {
	cli.AuthCdkMain{Version: Version}.Main()
}
