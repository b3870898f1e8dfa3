package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/planlens/planlens/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file (or the layered configuration)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg, err := config.LoadFromFile(args[0])
				if err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				fmt.Printf("%s is valid\n", args[0])
				return nil
			}

			if _, err := config.NewLoader(slog.Default()).Load(); err != nil {
				return err
			}
			fmt.Println("layered configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults if it does not exist",
		RunE: func(_ *cobra.Command, _ []string) error {
			return config.NewLoader(slog.Default()).EnsureUserConfig()
		},
	})

	return cmd
}
