package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ariffazil/openclaw-arifos-bridge/judge"
	"github.com/ariffazil/openclaw-arifos-bridge/shim"
)

func runServe(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	listen := fs.String("listen", "", "Listen address, overrides the config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.Server.Listen
	if *listen != "" {
		addr = *listen
	}

	handler := shim.NewServer(a.judge,
		shim.WithUpstream(a.client.Endpoint()),
		shim.WithLogger(a.logger),
		shim.WithMetrics(a.metrics, a.registry),
		shim.WithRateLimit(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst),
	).Handler()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		a.logger.Info("bridge listening", slog.String("addr", addr), slog.String("upstream", a.client.Endpoint()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}
	return nil
}

func runJudge(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("judge", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	sessionID := fs.String("session", "", "Session id passed to apex_judge")
	actorID := fs.String("actor", "", "Actor id, defaults to the configured actor")
	lane := fs.String("lane", "", "Evaluation lane, e.g. CRISIS")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")
	if query == "" {
		return errors.New("usage: arifos-bridge judge [flags] <query>")
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	res := a.judge.Evaluate(context.Background(), judge.Query{
		Text:      query,
		SessionID: *sessionID,
		ActorID:   *actorID,
		Lane:      *lane,
	})
	return writeJSON(stdout, res)
}

func runTools(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tools", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	tools, err := a.judge.ListTools(context.Background())
	if err != nil {
		return err
	}
	for _, name := range tools {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

func runRoute(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("route", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	sessionID := fs.String("session", "", "Session id")
	userID := fs.String("user", "openclaw", "User id used as actor when anchoring")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	return writeJSON(stdout, a.judge.Handle(context.Background(), text, *sessionID, *userID))
}

// batchQuery is one non-blank input line.
type batchQuery struct {
	Line int
	Text string
}

// batchLine is one line of batch output. Line is the source line number of the query.
type batchLine struct {
	Line   int          `json:"line"`
	Query  string       `json:"query"`
	Result judge.Result `json:"result"`
}

func runBatch(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	concurrency := fs.Int("concurrency", 4, "Evaluations in flight at once")
	sessionID := fs.String("session", "", "Session id passed to every evaluation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: arifos-bridge batch [flags] <file|->")
	}
	if *concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}

	queries, err := readQueries(fs.Arg(0))
	if err != nil {
		return err
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := evaluateAll(ctx, a.judge, queries, *sessionID, *concurrency)

	enc := json.NewEncoder(stdout)
	for _, line := range results {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}

// evaluator is the part of *judge.Judge batch needs.
type evaluator interface {
	Evaluate(ctx context.Context, q judge.Query) judge.Result
}

// evaluateAll runs every query with at most limit evaluations in flight and returns the results
// in input order.
func evaluateAll(ctx context.Context, j evaluator, queries []batchQuery, sessionID string, limit int) []batchLine {
	results := make([]batchLine, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, q := range queries {
		g.Go(func() error {
			results[i] = batchLine{
				Line:   q.Line,
				Query:  q.Text,
				Result: j.Evaluate(ctx, judge.Query{Text: q.Text, SessionID: sessionID}),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func readQueries(path string) ([]batchQuery, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var (
		queries []batchQuery
		n       int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		n++
		if text := strings.TrimSpace(scanner.Text()); text != "" {
			queries = append(queries, batchQuery{Line: n, Text: text})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	return queries, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
