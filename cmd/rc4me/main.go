package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/afero"

	"github.com/OpenGG/rc4me/internal/cli"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	exitFunc = os.Exit
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		exitFunc(1)
	}
}

// run executes the CLI with args. fang prints errors to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := cli.NewRootCommand(afero.NewOsFs(), cli.NewPromptUI(), stdout, stderr)
	root.SetArgs(args)
	return fang.Execute(
		ctx,
		root,
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
