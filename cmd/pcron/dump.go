package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/pcron/internal/config"
)

func newDumpCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Ask a running pcron daemon to log its current queue and job state",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := config.ResolveLayout(dir)
			if err != nil {
				return err
			}
			pid, err := readPIDFile(layout.PIDFilePath)
			if err != nil {
				return fmt.Errorf("is pcron running in %q? %w", layout.Dir, err)
			}
			if err := sendDump(pid); err != nil {
				return err
			}
			fmt.Printf("dump signal sent to pid %d; see %s\n", pid, layout.LogFilePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "configuration directory")
	return cmd
}
