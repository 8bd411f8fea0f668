// Package cmd implements nsisd's command-line interface: wiring the
// dispatcher, NSLP state machines, collaborators and config together,
// in the shape of ptp/ptpcheck/cmd.RootCmd and cmd/ptp4u/cmd/sptp's
// flag-to-struct wiring.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is nsisd's entry point.
var RootCmd = &cobra.Command{
	Use:   "nsisd",
	Short: "Karlsruhe NSIS signaling daemon (NATFW-NSLP / QoS-NSLP)",
}

var rootVerboseFlag bool

func init() {
	RootCmd.PersistentFlags().BoolVarP(&rootVerboseFlag, "verbose", "v", false, "verbose output")
}

// configureVerbosity sets the log level from the persistent verbose
// flag. Every subcommand calls this before doing anything else.
func configureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if rootVerboseFlag {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute runs the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
