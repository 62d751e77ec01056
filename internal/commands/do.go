// Package commands implements the retrier CLI subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-retrier/config"
	"github.com/gaborage/go-retrier/retry"
)

// DoOptions holds options for the do command
type DoOptions struct {
	Method      string
	URL         string
	Data        string
	Headers     []string
	MaxAttempts int
	ConfigPath  string
	Verbose     bool
	Metrics     bool
}

// NewDoCommand creates the do command
func NewDoCommand() *cobra.Command {
	opts := &DoOptions{}

	cmd := &cobra.Command{
		Use:   "do",
		Short: "Execute one request with retries",
		Long: `Sends the request, classifies every reply and retries transient failures
until it succeeds or the attempt budget is spent.

The response body is written to stdout. On failure the typed error is
reported on stderr and the exit code is 1.`,
		Example: `  # Simple GET with the configured retry policy
  retrier do --url https://api.example.com/v1/items

  # POST a payload from a file, allowing five attempts
  retrier do -X POST --url https://api.example.com/v1/items -d @item.json --max-attempts 5

  # Load settings from a file and show every attempt
  retrier do -c retrier.yaml --url https://api.example.com/v1/items -v`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDo(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.Method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&opts.URL, "url", "u", "", "Request URL")
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "Request body, or @file to read it from a file")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "Request header as 'Key: Value' (repeatable)")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "Override retry.max_attempts for this call")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Print the attempt history to stderr")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "Print Prometheus metrics to stderr when done")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func runDo(ctx context.Context, opts *DoOptions, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	rt, err := newSession(cfg, stderr)
	if err != nil {
		return err
	}
	defer rt.close()

	var callOpts []retry.CallOption
	if opts.MaxAttempts > 0 {
		callOpts = append(callOpts, retry.MaxAttempts(opts.MaxAttempts))
	}

	ctx, span := rt.tracer.Start(ctx, "retrier.do")
	res, execErr := rt.executor.Execute(ctx, req, callOpts...)
	span.End()

	if opts.Verbose {
		history := historyOf(res, execErr)
		printHistory(stderr, history)
	}
	if opts.Metrics {
		if err := rt.writeMetrics(stderr); err != nil {
			fmt.Fprintf(stderr, "metrics: %v\n", err)
		}
	}

	if execErr != nil {
		return describe(execErr)
	}
	_, err = stdout.Write(res.Body)
	return err
}

func buildRequest(opts *DoOptions) (*retry.Request, error) {
	reqOpts := make([]retry.RequestOption, 0, len(opts.Headers)+1)

	for _, raw := range opts.Headers {
		key, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid header %q (want 'Key: Value')", raw)
		}
		reqOpts = append(reqOpts, retry.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}

	body, err := readData(opts.Data)
	if err != nil {
		return nil, err
	}
	if body != nil {
		reqOpts = append(reqOpts, retry.WithBody(body))
	}

	return retry.NewRequest(opts.Method, opts.URL, reqOpts...)
}

func readData(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(data, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		return b, nil
	}
	return []byte(data), nil
}

func historyOf(res *retry.Result, err error) retry.History {
	if res != nil {
		return res.Attempts
	}
	h, _ := retry.HistoryOf(err)
	return h
}

func printHistory(w io.Writer, h retry.History) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ATTEMPT\tOUTCOME\tREASON\tSTATUS\tDURATION\tBACKOFF\tREFRESHED")
	for _, a := range h {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%t\n",
			a.Ordinal, a.Outcome.Kind, a.Outcome.Reason, a.Outcome.StatusCode, a.Duration, a.Backoff, a.Refreshed)
	}
	_ = tw.Flush()
}

// describe prefixes the executor error with the kind of failure.
func describe(err error) error {
	var (
		exhausted *retry.ExhaustedRetriesError
		fatal     *retry.FatalRequestError
		refresh   *retry.AuthRefreshError
		cancelled *retry.CancelledError
	)
	switch {
	case errors.As(err, &exhausted):
		return fmt.Errorf("gave up: %w", err)
	case errors.As(err, &fatal):
		return fmt.Errorf("request rejected (%s): %w", fatal.Reason, err)
	case errors.As(err, &refresh):
		return fmt.Errorf("credential refresh failed: %w", err)
	case errors.As(err, &cancelled):
		return fmt.Errorf("interrupted: %w", err)
	default:
		return err
	}
}
