package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/iris/internal/engine"
	"github.com/ent0n29/iris/internal/observability"
)

var (
	perfURL   string
	perfWatch time.Duration
	perfReset bool
)

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Print the latency stages of a running IRIS server",
	Long: `perf reads /v1/perf/latency from a running server. With --watch it first
follows the session events for the given duration so turns can be measured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPerf(cmd.Context(), cmd.OutOrStdout(), perfURL, perfWatch, perfReset)
	},
}

func init() {
	perfCmd.Flags().StringVar(&perfURL, "url", "http://127.0.0.1:8080", "server base URL")
	perfCmd.Flags().DurationVar(&perfWatch, "watch", 0, "follow session events before reading the snapshot")
	perfCmd.Flags().BoolVar(&perfReset, "reset", false, "clear the latency window before watching")
}

func runPerf(ctx context.Context, out io.Writer, baseURL string, watch time.Duration, reset bool) error {
	client := &http.Client{Timeout: 10 * time.Second}
	baseURL = strings.TrimRight(baseURL, "/")

	if reset {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/v1/perf/latency", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("reset latency window: %w", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("reset latency window: status %d", resp.StatusCode)
		}
	}

	if watch > 0 {
		turns, err := watchEvents(ctx, out, baseURL, watch)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "observed %d completed turns\n\n", turns)
	}

	snap, err := fetchLatency(ctx, client, baseURL)
	if err != nil {
		return err
	}
	printStages(out, snap)
	return nil
}

func fetchLatency(ctx context.Context, client *http.Client, baseURL string) (observability.StageSnapshot, error) {
	var snap observability.StageSnapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return snap, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return snap, fmt.Errorf("fetch latency: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return snap, fmt.Errorf("fetch latency: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode latency: %w", err)
	}
	return snap, nil
}

// watchEvents follows the events socket for d and counts completed turns.
func watchEvents(ctx context.Context, out io.Writer, baseURL string, d time.Duration) (int, error) {
	wsURL, err := eventsURL(baseURL)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return 0, fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	turns := 0
	for {
		var evt engine.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return turns, nil
			}
			return turns, fmt.Errorf("read events: %w", err)
		}
		switch evt.Type {
		case engine.EventTurnComplete:
			turns++
		case engine.EventTranscript:
			fmt.Fprintf(out, "  %s: %s\n", evt.Source, evt.Text)
		case engine.EventState, engine.EventError:
			fmt.Fprintf(out, "  [%s] %s%s\n", evt.Type, evt.State, evt.Text)
		}
	}
}

func eventsURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/session/events"
	return u.String(), nil
}

func printStages(out io.Writer, snap observability.StageSnapshot) {
	if len(snap.Stages) == 0 {
		fmt.Fprintln(out, "no latency samples yet")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tN\tLAST\tP50\tP95\tP99\tTARGET P95")
	for _, s := range snap.Stages {
		target := "-"
		if s.TargetP95MS > 0 {
			target = fmt.Sprintf("%.0fms", s.TargetP95MS)
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1fms\t%.1fms\t%.1fms\t%.1fms\t%s\n",
			s.Stage, s.Samples, s.LastMS, s.P50MS, s.P95MS, s.P99MS, target)
	}
	_ = tw.Flush()
	for _, ind := range snap.Indicators {
		fmt.Fprintf(out, "%s: %d\n", ind.Name, ind.Count)
	}
}
