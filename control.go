package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cmdReboot = &cobra.Command{
		Use:   "reboot",
		Short: "Restart the board",
		Long:  ``,
		RunE:  withBoard(runReboot),
	}

	cmdFactoryReset = &cobra.Command{
		Use:   "factory-reset",
		Short: "Restore factory defaults on the board",
		Long:  ``,
		RunE:  withBoard(runFactoryReset),
	}

	cmdBootloader = &cobra.Command{
		Use:   "bootloader",
		Short: "Restart the board into its bootloader for a firmware update",
		Long:  ``,
		RunE:  withBoard(runBootloader),
	}
)

func init() {
	rootCmd.AddCommand(cmdReboot, cmdFactoryReset, cmdBootloader)
}

func runReboot(ctx context.Context, a *app) error {
	if err := a.client.Reboot(ctx); err != nil {
		return err
	}
	fmt.Println("Board rebooted.")
	return nil
}

func runFactoryReset(ctx context.Context, a *app) error {
	if err := a.client.FactoryReset(ctx); err != nil {
		return err
	}
	fmt.Println("Factory reset done. The board restarts with default settings.")
	return nil
}

func runBootloader(ctx context.Context, a *app) error {
	if err := a.client.StartBootloader(ctx); err != nil {
		return err
	}
	fmt.Println("Board restarted into the bootloader. Use the firmware command with the DFU port.")
	return nil
}
