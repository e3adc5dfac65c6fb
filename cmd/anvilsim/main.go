// Command anvilsim runs sandboxed anvil nodes for local development.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/inconshreveable/log15.v2"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var loglevel int
	root := &cobra.Command{
		Use:          "anvilsim",
		Short:        "Run and probe sandboxed anvil nodes",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log15.Root().SetHandler(log15.LvlFilterHandler(log15.Lvl(loglevel), log15.StreamHandler(os.Stderr, log15.TerminalFormat())))
		},
	}
	root.PersistentFlags().IntVar(&loglevel, "loglevel", 3, "Log level to use for displaying system events")
	root.AddCommand(newStartCommand(), newBlockNumberCommand())
	return root
}
