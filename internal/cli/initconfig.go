package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flashgate/flashgate/internal/config"
)

func newInitConfigCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write an example config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(out); err != nil {
				return err
			}
			fmt.Printf("wrote example config to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "flashgate.json", "output path")

	return cmd
}
