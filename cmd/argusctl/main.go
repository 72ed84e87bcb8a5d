// Command argusctl issues requests through the dispatch coordinator from the
// command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	dispatch "github.com/duyl328/argus-dispatch"
)

type globalFlags struct {
	configPath  string
	metricsAddr string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "argusctl",
		Short:         "Send requests to an argus backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default $ARGUS_CONFIG or ./argus.yaml)")
	root.PersistentFlags().StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	for _, m := range []dispatch.Method{
		dispatch.MethodGet,
		dispatch.MethodPost,
		dispatch.MethodPut,
		dispatch.MethodDelete,
		dispatch.MethodPatch,
	} {
		root.AddCommand(newRequestCmd(g, m))
	}
	root.AddCommand(newConfigCmd(g), newTokenCmd(g), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), dispatch.GetVersion())
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "argusctl:", err)
		if dispatch.KindOf(err) != 0 {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
