// Command assay is the external-collaborator CLI surface: evidence bundle
// verification and the serve command (tool-call interception server plus
// Pack controller). Pack resolve, policy eval and mandate verify have no
// subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "assay",
		Short:         "Assay evaluation and policy-enforcement harness",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEvidenceCmd())
	root.AddCommand(newServeCmd())
	return root
}
