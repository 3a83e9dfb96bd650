package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List ports available for model endpoints",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.manager.Close()

	pool := a.manager.Pool()
	n := pool.Discover()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d free ports on %s in %d-%d\n", n, a.settings.Host, a.settings.Ports.Start, a.settings.Ports.End)
	for _, p := range pool.Free() {
		fmt.Fprintln(w, p)
	}
	return nil
}
