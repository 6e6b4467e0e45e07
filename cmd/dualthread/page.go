package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/betafish-inc/dualthread"
	"github.com/betafish-inc/dualthread/page"
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Run only the page",
	Long:  `Runs the page and its HTTP button. A worker must be running in another process on the same transport and session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newHost(cmd)
		if err != nil {
			return err
		}
		c, err := page.NewFromHost(cmd.Context(), h)
		if err != nil {
			return err
		}
		return startPage(cmd, h, c)
	},
}

func init() {
	rootCmd.AddCommand(pageCmd)
	addTriggerFlags(pageCmd)
}

func addTriggerFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("listen", "l", ":8080", "Address the page button is served on")
	cmd.Flags().Bool("stdin", false, "Also press the button for every line read from stdin")
}

// startPage registers the controller with its triggers and runs the Host until it is told to stop.
func startPage(cmd *cobra.Command, h *dualthread.Host, c *page.Controller) error {
	listen, _ := cmd.Flags().GetString("listen")
	stdin, _ := cmd.Flags().GetBool("stdin")

	h.Register(c)
	h.Register(page.NewServer(listen, c, h.Metrics(), h.Logger().WithField("context", "http")))
	if stdin {
		h.Register(&page.LineTrigger{Reader: os.Stdin, Controller: c})
	}
	h.Start()
	return nil
}
