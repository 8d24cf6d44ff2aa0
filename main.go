package main

import (
	"context"
	"os"

	"github.com/bnema/imagehub/internal/adapters/in/cli"
)

var (
	version string
	commit  string
	date    string
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	os.Exit(cli.Execute(context.Background()))
}
