package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/powermem-ai/powermem/internal/config"
)

// newConfigCmd builds `config {show,validate,test}`. Unlike every other
// command group, `show` and `validate` never go through the Factory — they
// only need the parsed configuration, so a misconfigured provider section
// doesn't prevent `config show` from working. `test` builds the providers
// through the Factory.
func newConfigCmd(factory Factory, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the service configuration",
	}
	cmd.AddCommand(newConfigShowCmd(opts), newConfigValidateCmd(opts), newConfigTestCmd(factory, opts))
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return opErr(err)
			}
			if opts.jsonOutput {
				return printResult(cmd.OutOrStdout(), true, cfg, func() {})
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return opErr(err)
			}
			cmd.OutOrStdout().Write(out)
			return nil
		},
	}
}

func newConfigValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without constructing providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(opts.configPath); err != nil {
				return opErr(err)
			}
			printf(cmd.OutOrStdout(), "config is valid\n")
			return nil
		},
	}
}

func newConfigTestCmd(factory Factory, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Validate the configuration and construct every configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}
			caps := deps.Store.Capabilities()
			printf(cmd.OutOrStdout(), "providers constructed successfully\n")
			printf(cmd.OutOrStdout(), "storage: collection=%s dense_dim=%d sparse=%v native_hybrid=%v\n",
				caps.Name, caps.DenseDimension, caps.SupportsSparse, caps.SupportsNativeHybrid)
			return nil
		},
	}
}
