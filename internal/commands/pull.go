package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/abcxyz/pkg/cli"

	"github.com/AllexVeldman/pyoci/internal/pkgname"
	"github.com/AllexVeldman/pyoci/internal/pyoci"
)

type pullFlags struct {
	registryFlags
	filename string
	output   string
}

func (f *pullFlags) Validate() error {
	if f.filename == "" {
		return fmt.Errorf("a distribution filename is required")
	}
	return f.registryFlags.Validate()
}

// PullCommand downloads a single sdist or wheel, identified by its original
// filename, from the configured registry.
type PullCommand struct {
	cli.BaseCommand

	flags *pullFlags
}

func (c *PullCommand) Desc() string {
	return "Pull a Python distribution file from an OCI registry."
}

func (c *PullCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options] <filename>

  filename is the distribution file's original name, e.g.
  "pyoci-0.1.0.tar.gz" or "pyoci-0.1.0-cp311-cp311-manylinux_2_17_x86_64.whl".
`
}

func (c *PullCommand) Flags() *cli.FlagSet {
	c.flags = &pullFlags{}
	set := c.NewFlagSet()
	c.flags.register(set)

	sec := set.NewSection("OUTPUT OPTIONS")
	sec.StringVar(&cli.StringVar{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Where to write the downloaded file. Defaults to the filename in the current directory.",
		Target:  &c.flags.output,
	})
	return set
}

func (c *PullCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	rest := f.Args()
	if len(rest) != 1 {
		return fmt.Errorf("expected exactly one positional argument, got %d", len(rest))
	}
	c.flags.filename = rest[0]

	if err := c.flags.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	id, err := pkgname.Parse(c.flags.filename, c.flags.namespace)
	if err != nil {
		return fmt.Errorf("invalid filename %q: %w", c.flags.filename, err)
	}

	client, err := pyoci.Open(c.flags.registryURL, c.flags.username, c.flags.password)
	if err != nil {
		return fmt.Errorf("failed to open registry client: %w", err)
	}
	defer client.Close()

	content, err := pyoci.Pull(ctx, client, id)
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", c.flags.filename, err)
	}

	output := c.flags.output
	if output == "" {
		output = c.flags.filename
	}
	if err := os.WriteFile(output, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	fmt.Fprintf(c.Stdout(), "wrote %s\n", output)
	return nil
}
