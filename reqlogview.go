package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"opendeckmcp/pkg/reqlog"
)

var (
	cmdReqlog = &cobra.Command{
		Use:   "reqlog",
		Short: "Inspect recorded SysEx traffic",
		Long:  ``,
	}

	cmdReqlogView = &cobra.Command{
		Use:   "view <file>",
		Short: "Print a request log",
		Long:  ``,
		Args:  cobra.ExactArgs(1),
		RunE:  runReqlogView,
	}
)

var (
	viewSession string
	viewCommand string
	viewSince   time.Duration
	viewErrors  bool
)

func init() {
	rootCmd.AddCommand(cmdReqlog)
	cmdReqlog.AddCommand(cmdReqlogView)
	cmdReqlogView.Flags().StringVar(&viewSession, "session", "", "Only events of this session id")
	cmdReqlogView.Flags().StringVar(&viewCommand, "command", "", "Only events of this command")
	cmdReqlogView.Flags().DurationVar(&viewSince, "since", 0, "Only events newer than this")
	cmdReqlogView.Flags().BoolVar(&viewErrors, "errors", false, "Only errors")
}

func runReqlogView(_ *cobra.Command, args []string) error {
	filter := reqlog.Filter{
		SessionID: viewSession,
		Command:   viewCommand,
	}
	if viewSince > 0 {
		start := time.Now().Add(-viewSince)
		filter.TimeStart = &start
	}
	if viewErrors {
		kind := reqlog.KindError
		filter.Kind = &kind
	}

	r, err := reqlog.NewFilteredReader(args[0], filter)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(ev.String())
	}
}
