package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/abcxyz/pkg/cli"

	"github.com/AllexVeldman/pyoci/internal/server"
)

type serveFlags struct {
	port        string
	registryURL string
}

func (f *serveFlags) Validate() error {
	var merr error
	if f.port == "" {
		merr = errors.Join(merr, fmt.Errorf("port is required"))
	}
	if f.registryURL == "" {
		merr = errors.Join(merr, fmt.Errorf("backend-registry is required"))
	}
	return merr
}

// ServeCommand runs the simple-repository HTTP façade in front of a backend
// OCI registry.
type ServeCommand struct {
	cli.BaseCommand

	flags *serveFlags
}

func (c *ServeCommand) Desc() string {
	return "Run the simple-repository HTTP server backed by an OCI registry."
}

func (c *ServeCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]
`
}

func (c *ServeCommand) Flags() *cli.FlagSet {
	c.flags = &serveFlags{}
	set := c.NewFlagSet()
	sec := set.NewSection("OPTIONS")

	sec.StringVar(&cli.StringVar{
		Name:    "port",
		Target:  &c.flags.port,
		EnvVar:  "PYOCI_PORT",
		Default: "8080",
		Usage:   "The port the server listens on.",
	})
	sec.StringVar(&cli.StringVar{
		Name:   "backend-registry",
		Usage:  "The URL to the backend OCI registry.",
		EnvVar: "PYOCI_BACKEND_REGISTRY",
		Target: &c.flags.registryURL,
	})

	return set
}

func (c *ServeCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if err := c.flags.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	h, err := server.NewHandler(c.flags.registryURL)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	srv, err := server.NewServer(c.flags.port, server.PassThroughAuth, server.WithLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx, h.Mux())
}
