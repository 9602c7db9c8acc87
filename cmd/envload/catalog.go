package main

import (
	"io"

	"github.com/spf13/cobra"

	"envload/internal/catalog"
)

func newCatalogCmd(stdout io.Writer) *cobra.Command {
	var configPath string
	var users int

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print user classes, their actions and selection shares",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return &exitError{code: ExitError, err: err}
			}
			if cmd.Flags().Changed("users") {
				cfg.Run.Users = users
			}
			if err := cfg.Validate(); err != nil {
				return &exitError{code: ExitError, err: err}
			}
			mix, err := catalog.Build(cfg)
			if err != nil {
				return &exitError{code: ExitError, err: err}
			}
			return catalog.Describe(stdout, mix)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (default: built-in scenario)")
	cmd.Flags().IntVarP(&users, "users", "u", 0, "total users to split across classes")
	return cmd
}
