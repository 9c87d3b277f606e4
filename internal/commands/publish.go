package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abcxyz/pkg/cli"

	"github.com/AllexVeldman/pyoci/internal/pyoci"
)

type publishFlags struct {
	registryFlags
	path string
}

func (f *publishFlags) Validate() error {
	if f.path == "" {
		return fmt.Errorf("path to a distribution file is required")
	}
	return f.registryFlags.Validate()
}

// PublishCommand uploads a single sdist or wheel to the configured registry.
type PublishCommand struct {
	cli.BaseCommand

	flags *publishFlags
}

func (c *PublishCommand) Desc() string {
	return "Publish a Python distribution file to an OCI registry."
}

func (c *PublishCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options] <path>

  Publish a single sdist or wheel to the configured registry.
`
}

func (c *PublishCommand) Flags() *cli.FlagSet {
	c.flags = &publishFlags{}
	set := c.NewFlagSet()
	c.flags.register(set)
	return set
}

func (c *PublishCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	rest := f.Args()
	if len(rest) != 1 {
		return fmt.Errorf("expected exactly one positional argument, got %d", len(rest))
	}
	c.flags.path = rest[0]

	if err := c.flags.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	content, err := os.ReadFile(c.flags.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.flags.path, err)
	}

	client, err := pyoci.Open(c.flags.registryURL, c.flags.username, c.flags.password)
	if err != nil {
		return fmt.Errorf("failed to open registry client: %w", err)
	}
	defer client.Close()

	id, err := pyoci.Publish(ctx, client, filepath.Base(c.flags.path), content, c.flags.namespace)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", c.flags.path, err)
	}

	fmt.Fprintf(c.Stdout(), "published %s %s\n", id.OCIName(), id.OCIReference())
	return nil
}
