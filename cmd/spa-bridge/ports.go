package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeney/spa-bridge/internal/uart"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports a bus sniffer could be attached to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := uart.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
