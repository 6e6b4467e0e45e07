package main

import (
	"github.com/spf13/cobra"

	"github.com/betafish-inc/dualthread/page"
	"github.com/betafish-inc/dualthread/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the page and the worker in one process",
	Long:  `Starts the page, which starts the worker. Press the button on the served page (or hit enter with --stdin) to update the worker text.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newHost(cmd)
		if err != nil {
			return err
		}
		ensureSession(cmd.Context(), h)

		w, err := worker.NewFromHost(cmd.Context(), h)
		if err != nil {
			return err
		}
		c, err := page.NewFromHost(cmd.Context(), h, page.WithWorker(w))
		if err != nil {
			return err
		}
		return startPage(cmd, h, c)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addTriggerFlags(runCmd)
}
