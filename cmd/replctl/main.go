package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"replbox/model"
	"replbox/natshandler"
	"replbox/notify"

	"github.com/fatih/color"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

type options struct {
	natsURL string
	prefix  string
	timeout time.Duration
}

func (o *options) subjects() natshandler.Subjects {
	return natshandler.NewSubjects(o.prefix)
}

func (o *options) connect() (*nats.Conn, error) {
	nc, err := nats.Connect(o.natsURL, nats.Name("replctl"))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", o.natsURL, err)
	}
	return nc, nil
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:           "replctl",
		Short:         "Run JavaScript in the replbox sandbox and watch its output",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.natsURL, "nats", envOr("NATSURL", nats.DefaultURL), "NATS server URL")
	root.PersistentFlags().StringVar(&opts.prefix, "prefix", envOr("SUBJECT_PREFIX", "replbox"), "subject prefix")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "how long to wait for the daemon to accept a request")

	root.AddCommand(execCmd(opts), importsCmd(opts), startCmd(opts), watchCmd(opts))

	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func execCmd(opts *options) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "exec <file|->",
		Short: "Run a JavaScript file in the sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return submitAndFollow(cmd, opts, opts.subjects().Exec, model.ExecRequest{Code: code}, follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", true, "print events until the run finishes")
	return cmd
}

func importsCmd(opts *options) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "imports <package.json|->",
		Short: "Install the dependencies of a package manifest in the sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return submitAndFollow(cmd, opts, opts.subjects().Imports, model.ImportRequest{Manifest: manifest}, follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", true, "print events until the install finishes")
	return cmd
}

func startCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Provision the sandbox container again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := opts.connect()
			if err != nil {
				return err
			}
			defer nc.Close()

			if _, err := request(nc, opts.subjects().Start, nil, opts.timeout); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "start requested")
			return nil
		},
	}
}

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print sandbox events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := opts.connect()
			if err != nil {
				return err
			}
			defer nc.Close()

			stream, err := subscribeEvents(nc, opts.subjects().Events)
			if err != nil {
				return err
			}
			defer stream.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := newPrinter(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-stream.sink.Events():
					p.print(ev)
				}
			}
		},
	}
}

// submitAndFollow sends payload and, when follow is set, prints events until
// the worker reports the end of an execution.
func submitAndFollow(cmd *cobra.Command, opts *options, subject string, payload any, follow bool) error {
	nc, err := opts.connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	var stream *eventStream
	if follow {
		// subscribe first so no event of this run is missed
		stream, err = subscribeEvents(nc, opts.subjects().Events)
		if err != nil {
			return err
		}
		defer stream.Close()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	requestID, err := request(nc, subject, data, opts.timeout)
	if err != nil {
		return err
	}
	if !follow {
		fmt.Fprintf(cmd.OutOrStdout(), "queued as %s\n", requestID)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return followRun(ctx, stream.sink.Events(), newPrinter(cmd.OutOrStdout()), requestID)
}

// followRun prints the events of requestID, plus untagged sandbox status,
// until that request's execution has ended. Events of other clients' runs
// are skipped.
func followRun(ctx context.Context, events <-chan notify.Event, p *printer, requestID string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.RequestID != "" && ev.RequestID != requestID {
				continue
			}
			p.print(ev)
			if ev.Kind == notify.KindExecutionEnded && ev.RequestID == requestID {
				return nil
			}
		}
	}
}

// request sends data and returns the ID the daemon assigned to the request.
func request(nc *nats.Conn, subject string, data []byte, timeout time.Duration) (string, error) {
	msg, err := nc.Request(subject, data, timeout)
	if errors.Is(err, nats.ErrNoResponders) {
		return "", fmt.Errorf("no replbox daemon is listening on %s", subject)
	}
	if err != nil {
		return "", fmt.Errorf("request %s: %w", subject, err)
	}

	var res model.SubmitResponse
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if !res.Accepted {
		return "", fmt.Errorf("request rejected: %s", res.Error)
	}
	return res.RequestID, nil
}

type eventStream struct {
	sub  *nats.Subscription
	sink *notify.ChanSink
}

func subscribeEvents(nc *nats.Conn, subject string) (*eventStream, error) {
	sink := notify.NewChanSink(256)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		ev, _, err := natshandler.DecodeEvent(msg.Data)
		if err != nil {
			return
		}
		_ = sink.Notify(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	return &eventStream{sub: sub, sink: sink}, nil
}

func (s *eventStream) Close() {
	_ = s.sub.Unsubscribe()
	s.sink.Close()
}

func readInput(arg string, stdin io.Reader) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
