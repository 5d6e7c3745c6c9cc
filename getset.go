package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"opendeckmcp/pkg/device"
	"opendeckmcp/pkg/opendeck"
)

var (
	cmdInfo = &cobra.Command{
		Use:   "info",
		Short: "Connect and print what the board reports",
		Long:  ``,
		RunE:  withBoard(runInfo),
	}

	cmdGet = &cobra.Command{
		Use:   "get <block> <section> <index>",
		Short: "Read one setting",
		Long:  `Block is a name (global, button, encoder, analog, led, display, touchscreen) or a number.`,
		Args:  cobra.ExactArgs(3),
	}

	cmdSet = &cobra.Command{
		Use:   "set <block> <section> <index> <value>",
		Short: "Write one setting",
		Long:  ``,
		Args:  cobra.ExactArgs(4),
	}

	cmdLoad = &cobra.Command{
		Use:   "load <block> <section> [count]",
		Short: "Read a section for every component",
		Long:  `Count defaults to the number of components of the block reported by the board.`,
		Args:  cobra.RangeArgs(2, 3),
	}
)

func init() {
	rootCmd.AddCommand(cmdInfo, cmdGet, cmdSet, cmdLoad)

	cmdGet.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := parseRequest(args, false)
		if err != nil {
			return err
		}
		return withBoard(func(ctx context.Context, a *app) error {
			v, err := a.client.GetValue(ctx, cfg)
			if err != nil {
				return err
			}
			cfg.Value = v
			return printJSON(cfg)
		})(cmd, args)
	}

	cmdSet.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := parseRequest(args, true)
		if err != nil {
			return err
		}
		return withBoard(func(ctx context.Context, a *app) error {
			return a.client.SetValue(ctx, cfg)
		})(cmd, args)
	}

	cmdLoad.RunE = func(cmd *cobra.Command, args []string) error {
		base, err := parseRequest(append(args[:2:2], "0"), false)
		if err != nil {
			return err
		}
		count := -1
		if len(args) == 3 {
			if count, err = strconv.Atoi(args[2]); err != nil || count < 0 {
				return fmt.Errorf("invalid count %q", args[2])
			}
		}
		return withBoard(func(ctx context.Context, a *app) error {
			n := count
			if n < 0 {
				n = componentCount(a.client.Session().Components, base.Block)
			}
			values, err := a.client.LoadValues(ctx, sectionRequests(base, n))
			if perr := printJSON(values); perr != nil {
				return perr
			}
			return err
		})(cmd, args)
	}
}

func runInfo(_ context.Context, a *app) error {
	return printJSON(a.client.Session())
}

// parseRequest reads "block section index [value]".
func parseRequest(args []string, withValue bool) (opendeck.RequestConfig, error) {
	want := 3
	if withValue {
		want = 4
	}
	if len(args) != want {
		return opendeck.RequestConfig{}, fmt.Errorf("want %d arguments, got %d", want, len(args))
	}

	block, err := opendeck.ParseBlock(args[0])
	if err != nil {
		return opendeck.RequestConfig{}, err
	}
	section, err := strconv.ParseUint(args[1], 0, 7)
	if err != nil {
		return opendeck.RequestConfig{}, fmt.Errorf("invalid section %q: %w", args[1], err)
	}
	index, err := strconv.ParseUint(args[2], 0, 14)
	if err != nil {
		return opendeck.RequestConfig{}, fmt.Errorf("invalid index %q: %w", args[2], err)
	}

	cfg := opendeck.RequestConfig{Block: block, Section: uint8(section), Index: uint16(index)}
	if withValue {
		value, err := strconv.ParseUint(args[3], 0, 14)
		if err != nil {
			return opendeck.RequestConfig{}, fmt.Errorf("invalid value %q: %w", args[3], err)
		}
		cfg.Value = uint16(value)
	}
	return cfg, nil
}

// sectionRequests reads one section for components 0..n-1.
func sectionRequests(base opendeck.RequestConfig, n int) []opendeck.RequestConfig {
	reqs := make([]opendeck.RequestConfig, 0, n)
	for i := 0; i < n; i++ {
		cfg := base
		cfg.Index = uint16(i)
		cfg.Value = 0
		reqs = append(reqs, cfg)
	}
	return reqs
}

// componentCount is the number of components the board has for block. Blocks
// that are not per-component have a single entry.
func componentCount(c opendeck.ComponentCounts, block opendeck.Block) int {
	switch block {
	case opendeck.BlockButton:
		return c.Buttons
	case opendeck.BlockEncoder:
		return c.Encoders
	case opendeck.BlockAnalog:
		return c.Analog
	case opendeck.BlockLed:
		return c.LEDs
	case opendeck.BlockTouchscreen:
		return c.Touchscreen
	}
	return 1
}

func printJSON(v any) error {
	asJson, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	fmt.Println(string(asJson))
	return nil
}

// describeError adds the user facing hint for errors that have one.
func describeError(err error) string {
	if errors.Is(err, device.ErrBootloaderMode) {
		return err.Error() + ": only firmware uploads are possible, reboot the board first"
	}
	return err.Error()
}
