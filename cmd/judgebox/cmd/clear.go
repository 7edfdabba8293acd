package cmd

import (
	"os"

	"github.com/rsalesc/robox.io-sub000/internal/envcfg"
	"github.com/spf13/cobra"
)

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the sandbox box directory and every build artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := envcfg.LoadRuntimeConfig()
			if err != nil {
				return err
			}
			if err := os.RemoveAll(rc.BoxDir); err != nil {
				return err
			}
			return os.RemoveAll(rc.BuildDir)
		},
	}
}
