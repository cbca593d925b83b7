package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/pcron/internal/config"
)

func newReloadCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running pcron daemon to re-read its crontab.ini",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := config.ResolveLayout(dir)
			if err != nil {
				return err
			}
			pid, err := readPIDFile(layout.PIDFilePath)
			if err != nil {
				return fmt.Errorf("is pcron running in %q? %w", layout.Dir, err)
			}
			if err := sendReload(pid); err != nil {
				return err
			}
			fmt.Printf("reload signal sent to pid %d\n", pid)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "configuration directory")
	return cmd
}
