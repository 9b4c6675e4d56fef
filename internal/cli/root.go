package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root flashgate command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flashgate",
		Short: "Admission control for flash-sale traffic",
		Long: `Flashgate sits in front of a scarce resource and decides which purchase
attempts may proceed: it counts attempts per user, blocks abusers, and issues
short-lived verification tokens that downstream stock logic requires.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newInitConfigCmd(),
	)

	return root
}
