package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"opendeckmcp/pkg/bulk"
	"opendeckmcp/pkg/opendeck"
)

var (
	cmdBackup = &cobra.Command{
		Use:   "backup [file]",
		Short: "Save every board setting as SysEx lines",
		Long:  `Writes to stdout when no file is given.`,
		Args:  cobra.MaximumNArgs(1),
	}

	cmdRestore = &cobra.Command{
		Use:   "restore <file>",
		Short: "Send a backup file to the board",
		Long:  ``,
		Args:  cobra.ExactArgs(1),
	}

	cmdFirmware = &cobra.Command{
		Use:   "firmware <file>",
		Short: "Upload a SysEx firmware file to a board in bootloader mode",
		Long:  ``,
		Args:  cobra.ExactArgs(1),
	}
)

func init() {
	rootCmd.AddCommand(cmdBackup, cmdRestore, cmdFirmware)

	cmdBackup.RunE = func(cmd *cobra.Command, args []string) error {
		return withBoard(func(ctx context.Context, a *app) error {
			var w io.Writer = os.Stdout
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create backup file: %w", err)
				}
				defer f.Close()
				w = f
			}
			n, err := bulk.Backup(ctx, a.client, w)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Backup of %d frames written.\n", n)
			return nil
		})(cmd, args)
	}

	cmdRestore.RunE = func(cmd *cobra.Command, args []string) error {
		return uploadFile(cmd, args[0], opendeck.RestoreBackup)
	}

	cmdFirmware.RunE = func(cmd *cobra.Command, args []string) error {
		return uploadFile(cmd, args[0], opendeck.FirmwareUpdate)
	}
}

func uploadFile(cmd *cobra.Command, path string, command opendeck.Command) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	frames, err := bulk.ReadFrames(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if len(frames) == 0 {
		return fmt.Errorf("%s: no SysEx lines", path)
	}

	return withBoard(func(ctx context.Context, a *app) error {
		delay, err := a.config.LineDelay()
		if err != nil {
			return err
		}
		if err := bulk.Upload(ctx, a.client, command, frames, delay); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: %d lines sent.\n", command, len(frames))
		return nil
	})(cmd, nil)
}
