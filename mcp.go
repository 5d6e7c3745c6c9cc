package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"opendeckmcp/pkg/bulk"
	"opendeckmcp/pkg/midiport"
	"opendeckmcp/pkg/opendeck"
)

var (
	cmdMCP = &cobra.Command{
		Use:   "mcp",
		Short: "Serve board operations as MCP tools over stdio",
		Long:  ``,
		RunE:  runMCP,
	}
)

func init() {
	rootCmd.AddCommand(cmdMCP)
}

func runMCP(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.config.Output != "" {
		if err := a.connect(context.Background()); err != nil {
			a.log.Info().Err(err).Msg("initial connect failed, use opendeck_connect")
		}
	}

	s := newMCPServer(a)

	a.log.Info().Msg("starting OpenDeck MCP server")
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newMCPServer(a *app) *server.MCPServer {
	s := server.NewMCPServer(
		"OpenDeck MCP",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	docTool := mcp.NewTool("opendeck_describe-sysex",
		mcp.WithDescription("Returns a description of the OpenDeck SysEx configuration protocol."),
	)
	s.AddTool(docTool, docToolHandler)

	portsTool := mcp.NewTool("opendeck_list-ports",
		mcp.WithDescription("Lists MIDI inputs and outputs. Boards in bootloader mode contain DFU in their name."),
	)
	s.AddTool(portsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ins, outs, err := midiport.List(a.driver)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result := map[string]any{"inputs": ins, "outputs": outs}
		if midiport.OnlyThrough(append(ins, outs...)) {
			result["hint"] = throughOnlyHint
		}
		return jsonResult(result)
	})

	connectTool := mcp.NewTool("opendeck_connect",
		mcp.WithDescription("Connects to an OpenDeck board and returns the session."),
		mcp.WithString("output", mcp.Required(), mcp.Description("MIDI output id or a fragment of its name.")),
	)
	s.AddTool(connectTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		hint, err := request.RequireString("output")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		a.log.Debug().Str("output", hint).Msg("mcp connect")

		out, err := midiport.ResolveOutput(a.driver, hint)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := a.client.Connect(ctx, out.Info().ID); err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}
		return jsonResult(a.client.Session())
	})

	sessionTool := mcp.NewTool("opendeck_session",
		mcp.WithDescription("Returns the connected board: firmware, components, value size and state."),
	)
	s.AddTool(sessionTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(a.client.Session())
	})

	getTool := mcp.NewTool("opendeck_get-value",
		append([]mcp.ToolOption{mcp.WithDescription("Reads one setting from the board.")}, addressParams()...)...,
	)
	s.AddTool(getTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cfg, err := requestFromArgs(request, false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, err := a.client.GetValue(ctx, cfg)
		if err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}
		cfg.Value = v
		return jsonResult(cfg)
	})

	setTool := mcp.NewTool("opendeck_set-value",
		append([]mcp.ToolOption{
			mcp.WithDescription("Writes one setting to the board."),
			mcp.WithNumber("value", mcp.Required(), mcp.Description("The new value.")),
		}, addressParams()...)...,
	)
	s.AddTool(setTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cfg, err := requestFromArgs(request, true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := a.client.SetValue(ctx, cfg); err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}
		return mcp.NewToolResultText("Value written successfully."), nil
	})

	loadTool := mcp.NewTool("opendeck_load-section",
		mcp.WithDescription("Reads one section for every component of a block."),
		mcp.WithString("block", mcp.Required(), mcp.Description("Block name (global, button, encoder, analog, led, display, touchscreen) or number.")),
		mcp.WithNumber("section", mcp.Required(), mcp.Description("Section within the block.")),
		mcp.WithNumber("count", mcp.Description("Number of components. Defaults to what the board reports.")),
	)
	s.AddTool(loadTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		block, err := request.RequireString("block")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		section, err := request.RequireInt("section")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		base, err := parseRequest([]string{block, fmt.Sprint(section), "0"}, false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		count := request.GetInt("count", -1)
		if count < 0 {
			count = componentCount(a.client.Session().Components, base.Block)
		}

		values, err := a.client.LoadValues(ctx, sectionRequests(base, count))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s (loaded %d values)", describeError(err), len(values))), nil
		}
		return jsonResult(values)
	})

	backupTool := mcp.NewTool("opendeck_backup",
		mcp.WithDescription("Returns a backup of every setting as SysEx hex lines, suitable for opendeck_restore."),
	)
	s.AddTool(backupTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var buf bytes.Buffer
		if _, err := bulk.Backup(ctx, a.client, &buf); err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}
		return mcp.NewToolResultText(buf.String()), nil
	})

	restoreTool := mcp.NewTool("opendeck_restore",
		mcp.WithDescription("Sends a backup made by opendeck_backup to the board."),
		mcp.WithString("backup", mcp.Required(), mcp.Description("SysEx hex lines, one frame per line.")),
	)
	s.AddTool(restoreTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("backup")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		frames, err := bulk.ReadFrames(strings.NewReader(text))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		delay, err := a.config.LineDelay()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := bulk.Upload(ctx, a.client, opendeck.RestoreBackup, frames, delay); err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Restored %d lines.", len(frames))), nil
	})

	logTool := mcp.NewTool("opendeck_request-log",
		mcp.WithDescription("Returns the most recent SysEx traffic, one event per line."),
		mcp.WithNumber("count", mcp.Description("Number of events (default 50).")),
	)
	s.AddTool(logTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n := request.GetInt("count", 50)
		events := a.recent.Events()
		if n > 0 && len(events) > n {
			events = events[len(events)-n:]
		}
		lines := make([]string, 0, len(events))
		for _, ev := range events {
			lines = append(lines, ev.String())
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	})

	rebootTool := mcp.NewTool("opendeck_reboot",
		mcp.WithDescription("Restarts the board. The session is closed afterwards."),
	)
	s.AddTool(rebootTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := a.client.Reboot(ctx); err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}
		return mcp.NewToolResultText("Board rebooted."), nil
	})

	factoryTool := mcp.NewTool("opendeck_factory-reset",
		mcp.WithDescription("Restores factory defaults. Every setting on the board is lost."),
	)
	s.AddTool(factoryTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := a.client.FactoryReset(ctx); err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}
		return mcp.NewToolResultText("Factory reset done."), nil
	})

	return s
}

func addressParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("block", mcp.Required(), mcp.Description("Block name (global, button, encoder, analog, led, display, touchscreen) or number.")),
		mcp.WithNumber("section", mcp.Required(), mcp.Description("Section within the block.")),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Component index.")),
	}
}

func requestFromArgs(request mcp.CallToolRequest, withValue bool) (opendeck.RequestConfig, error) {
	block, err := request.RequireString("block")
	if err != nil {
		return opendeck.RequestConfig{}, err
	}
	args := []string{block}
	names := []string{"section", "index"}
	if withValue {
		names = append(names, "value")
	}
	for _, name := range names {
		v, err := request.RequireInt(name)
		if err != nil {
			return opendeck.RequestConfig{}, err
		}
		args = append(args, fmt.Sprint(v))
	}
	return parseRequest(args, withValue)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	asJson, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return mcp.NewToolResultText(string(asJson)), nil
}

//go:embed opendeck_sysex.txt
var sysexDoc string

func docToolHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(sysexDoc), nil
}
