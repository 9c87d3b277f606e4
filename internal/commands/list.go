package commands

import (
	"context"
	"fmt"

	"github.com/abcxyz/pkg/cli"

	"github.com/AllexVeldman/pyoci/internal/pyoci"
)

type listFlags struct {
	registryFlags
	distribution string
}

func (f *listFlags) Validate() error {
	if f.distribution == "" {
		return fmt.Errorf("a distribution name is required")
	}
	return f.registryFlags.Validate()
}

// ListCommand prints every published version and file of a package.
type ListCommand struct {
	cli.BaseCommand

	flags *listFlags
}

func (c *ListCommand) Desc() string {
	return "List published versions of a package."
}

func (c *ListCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options] <distribution>
`
}

func (c *ListCommand) Flags() *cli.FlagSet {
	c.flags = &listFlags{}
	set := c.NewFlagSet()
	c.flags.register(set)
	return set
}

func (c *ListCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	rest := f.Args()
	if len(rest) != 1 {
		return fmt.Errorf("expected exactly one positional argument, got %d", len(rest))
	}
	c.flags.distribution = rest[0]

	if err := c.flags.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	client, err := pyoci.Open(c.flags.registryURL, c.flags.username, c.flags.password)
	if err != nil {
		return fmt.Errorf("failed to open registry client: %w", err)
	}
	defer client.Close()

	versions, err := pyoci.List(ctx, client, c.flags.distribution, c.flags.namespace)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", c.flags.distribution, err)
	}

	for _, v := range versions {
		for _, file := range v.Files {
			fmt.Fprintln(c.Stdout(), file)
		}
	}
	return nil
}
