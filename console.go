package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/queue"
	"opendeckmcp/pkg/sysex"
)

var (
	cmdConsole = &cobra.Command{
		Use:   "console",
		Short: "Interactive shell on a connected board",
		Long:  ``,
		RunE:  withBoard(runConsole),
	}
)

func init() {
	rootCmd.AddCommand(cmdConsole)
}

// console is a line based shell over one board session.
type console struct {
	a   *app
	rl  *readline.Instance
	out io.Writer
}

func runConsole(ctx context.Context, a *app) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "opendeck> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c := &console{a: a, rl: rl, out: rl.Stdout()}
	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return nil
		}
		if !c.exec(ctx, line) {
			return nil
		}
	}
}

// exec runs one input line. It returns false when the shell should exit.
func (c *console) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "info", "i":
		err = c.info()
	case "get", "g":
		err = c.get(ctx, args)
	case "set", "s":
		err = c.set(ctx, args)
	case "cmd":
		err = c.command(ctx, args)
	case "log", "l":
		c.recentLog(args)
	case "reset":
		c.a.client.ResetQueue()
		fmt.Fprintln(c.out, "Request queue cleared.")
	case "reconnect":
		err = c.a.connect(ctx)
		if err == nil {
			fmt.Fprintln(c.out, "Connected.")
		}
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %s\n", describeError(err))
	}
	return true
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `
OpenDeck Commands:
  info                         - Show the connected board
  get <block> <section> <idx>  - Read a setting
  set <block> <section> <idx> <value>
                               - Write a setting
  cmd <name>                   - Send a special request (e.g. GetFirmwareVersion)
  log [n]                      - Show the last n SysEx events (default 20)
  reset                        - Drop queued requests
  reconnect                    - Connect again
  quit                         - Leave the shell`)
}

func (c *console) info() error {
	s := c.a.client.Session()
	fmt.Fprintf(c.out, "state:       %s\n", s.Status)
	if s.ID == "" {
		return nil
	}
	fmt.Fprintf(c.out, "board:       %s\n", s.BoardName)
	fmt.Fprintf(c.out, "output:      %s\n", s.OutputName)
	fmt.Fprintf(c.out, "input:       %s\n", s.InputName)
	fmt.Fprintf(c.out, "firmware:    %s\n", s.FirmwareVersion)
	fmt.Fprintf(c.out, "value size:  %d\n", s.ValueSize)
	fmt.Fprintf(c.out, "components:  %d buttons, %d encoders, %d analog, %d leds, %d touchscreen\n",
		s.Components.Buttons, s.Components.Encoders, s.Components.Analog, s.Components.LEDs, s.Components.Touchscreen)
	fmt.Fprintf(c.out, "presets:     %d\n", s.SupportedPresets)
	return nil
}

func (c *console) get(ctx context.Context, args []string) error {
	cfg, err := parseRequest(args, false)
	if err != nil {
		return err
	}
	v, err := c.a.client.GetValue(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s/%d/%d = %d\n", cfg.Block, cfg.Section, cfg.Index, v)
	return nil
}

func (c *console) set(ctx context.Context, args []string) error {
	cfg, err := parseRequest(args, true)
	if err != nil {
		return err
	}
	if err := c.a.client.SetValue(ctx, cfg); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "OK")
	return nil
}

func (c *console) recentLog(args []string) {
	n := 20
	if len(args) == 1 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	if c.a.recent == nil {
		return
	}
	events := c.a.recent.Events()
	if len(events) > n {
		events = events[len(events)-n:]
	}
	for _, ev := range events {
		fmt.Fprintln(c.out, ev.String())
	}
}

func (c *console) command(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cmd <name>")
	}
	command, err := opendeck.ParseCommand(args[0])
	if err != nil {
		return err
	}
	if command.Kind() != opendeck.KindSpecial {
		return fmt.Errorf("%s is not a special request", command)
	}
	resp, err := c.a.client.Send(ctx, queue.Request{Command: command})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %s\n", resp.Status, sysex.FormatHex(resp.Data))
	return nil
}
