package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/PanTrack/internal/transport"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports available for the actuator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := transport.ListPorts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				if p.IsUSB {
					fmt.Fprintf(out, "%-20s USB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
				} else {
					fmt.Fprintln(out, p.Name)
				}
			}
			return nil
		},
	}
}
