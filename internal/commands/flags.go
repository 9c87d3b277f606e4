package commands

import (
	"fmt"

	"github.com/abcxyz/pkg/cli"
)

// registryFlags are the connection options shared by publish, list, and
// pull: which registry to talk to and how to authenticate against it.
type registryFlags struct {
	registryURL string
	username    string
	password    string
	namespace   string
}

func (f *registryFlags) Validate() error {
	if f.registryURL == "" {
		return fmt.Errorf("registry is required")
	}
	return nil
}

func (f *registryFlags) register(set *cli.FlagSet) {
	sec := set.NewSection("REGISTRY OPTIONS")

	sec.StringVar(&cli.StringVar{
		Name:   "registry",
		Usage:  "The URL of the backend OCI registry.",
		EnvVar: "PYOCI_BACKEND_REGISTRY",
		Target: &f.registryURL,
	})
	sec.StringVar(&cli.StringVar{
		Name:   "username",
		Usage:  "Username for registry authentication.",
		EnvVar: "PYOCI_USERNAME",
		Target: &f.username,
	})
	sec.StringVar(&cli.StringVar{
		Name:   "password",
		Usage:  "Password or token for registry authentication.",
		EnvVar: "PYOCI_PASSWORD",
		Target: &f.password,
	})
	sec.StringVar(&cli.StringVar{
		Name:   "namespace",
		Usage:  "Opaque path prefix prepended to the package name in the registry.",
		EnvVar: "PYOCI_NAMESPACE",
		Target: &f.namespace,
	})
}
