package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"opendeckmcp/pkg/config"
	"opendeckmcp/pkg/device"
	odprom "opendeckmcp/pkg/metrics/prometheus"
	"opendeckmcp/pkg/midiport"
	"opendeckmcp/pkg/reqlog"
)

var (
	rootCmd = &cobra.Command{
		Use:           "opendeck",
		Short:         "Configure OpenDeck MIDI boards over SysEx.",
		Long:          ``,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

var (
	flagConfig     string
	flagOutput     string
	flagDebug      bool
	flagMetrics    string
	flagRequestLog string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Configuration file (.yaml or .hcl)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "MIDI output id or name fragment of the board")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Debug logging (trace)")
	rootCmd.PersistentFlags().StringVarP(&flagMetrics, "metrics", "m", "", "Prom metrics address")
	rootCmd.PersistentFlags().StringVar(&flagRequestLog, "request-log", "", "Record SysEx traffic to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", describeError(err))
		os.Exit(1)
	}
}

// recentEvents is how much SysEx traffic the console and MCP server can show.
const recentEvents = 200

// app holds everything a subcommand needs to talk to a board.
type app struct {
	log     types.RootLogger
	config  *config.Config
	driver  midiport.Driver
	reqlog  *reqlog.FileLogger
	recent  *reqlog.Memory
	metrics *odprom.Metrics
	client  *device.Client
}

// newApp loads the configuration and opens the MIDI driver. It does not
// connect to a board.
func newApp() (*app, error) {
	a := &app{}

	a.log = logging.New(logging.Zerolog, "opendeck", os.Stderr)
	if flagDebug {
		a.log.SetLevel(types.TraceLevel)
	}

	conf, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagOutput != "" {
		conf.Output = flagOutput
	}
	if flagMetrics != "" {
		conf.MetricsAddress = flagMetrics
	}
	if flagRequestLog != "" {
		conf.RequestLog = flagRequestLog
	}
	a.config = conf

	devConf, err := conf.Device()
	if err != nil {
		return nil, err
	}

	a.recent = reqlog.NewMemory(recentEvents)
	requestLog := reqlog.Multi{a.recent}
	if conf.RequestLog != "" {
		a.reqlog, err = reqlog.NewFileLogger(conf.RequestLog)
		if err != nil {
			return nil, err
		}
		requestLog = append(requestLog, a.reqlog)
	}

	opts := []device.Option{
		device.WithConfig(devConf),
		device.WithLogger(a.log),
		device.WithRequestLog(requestLog),
		device.WithOnDisconnect(func(s device.Session, err error) {
			a.log.Info().Str("output", s.OutputName).Err(err).Msg("board disconnected")
		}),
	}

	a.driver = midiport.NewGomidi(midiport.WithLogger(a.log))
	a.client = device.New(a.driver, opts...)

	if conf.MetricsAddress != "" {
		a.serveMetrics(conf.MetricsAddress)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	reg := prometheus.NewRegistry()
	a.metrics = odprom.New(reg, odprom.DefaultConfig())
	a.metrics.AddClient("opendeck", a.client)

	// Add the default go metrics
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		reg,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          reg,
		},
	))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.log.Error().Str("addr", addr).Err(err).Msg("metrics server stopped")
		}
	}()
}

// connect resolves the configured output and opens a session on it.
func (a *app) connect(ctx context.Context) error {
	if a.config.Output == "" {
		return fmt.Errorf("no board selected: use --output or set output in the config file")
	}
	out, err := midiport.ResolveOutput(a.driver, a.config.Output)
	if err != nil {
		return err
	}
	return a.client.Connect(ctx, out.Info().ID)
}

func (a *app) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.metrics != nil {
		a.metrics.Shutdown()
	}
	if a.reqlog != nil {
		_ = a.reqlog.Close()
	}
	if a.driver != nil {
		_ = a.driver.Close()
	}
}

// withBoard runs fn with a connected board and closes everything after.
func withBoard(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.connect(ctx); err != nil {
			return err
		}
		return fn(ctx, a)
	}
}
