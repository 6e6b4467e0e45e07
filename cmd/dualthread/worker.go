package main

import (
	"github.com/spf13/cobra"

	"github.com/betafish-inc/dualthread/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the worker",
	Long:  `Runs the worker context. It sends its text once after one second and answers updateData commands from a page on the same transport and session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newHost(cmd)
		if err != nil {
			return err
		}
		w, err := worker.NewFromHost(cmd.Context(), h)
		if err != nil {
			return err
		}
		h.Register(w)
		h.Start()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
