// Package commands implements the pyoci CLI's subcommands: publish, list,
// pull, and serve.
package commands

import (
	"context"

	"github.com/abcxyz/pkg/cli"
)

var rootCmd = func() cli.Command {
	return &cli.RootCommand{
		Name:    "pyoci",
		Version: "dev",
		Commands: map[string]cli.CommandFactory{
			"publish": func() cli.Command { return &PublishCommand{} },
			"list":    func() cli.Command { return &ListCommand{} },
			"pull":    func() cli.Command { return &PullCommand{} },
			"serve":   func() cli.Command { return &ServeCommand{} },
		},
	}
}

// Run executes the CLI.
func Run(ctx context.Context, args []string) error {
	return rootCmd().Run(ctx, args) //nolint:wrapcheck // Want passthrough
}
