package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ent0n29/iris/internal/app"
	"github.com/ent0n29/iris/internal/engine"
	"github.com/ent0n29/iris/internal/logging"
	"github.com/ent0n29/iris/internal/reliability"
	"github.com/ent0n29/iris/internal/session"
)

var (
	talkReconnect   bool
	talkMaxAttempts int
	talkMuted       bool
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Hold a live voice session in the terminal until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTalk(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	talkCmd.Flags().BoolVar(&talkReconnect, "reconnect", false, "reconnect with backoff when the session drops")
	talkCmd.Flags().IntVar(&talkMaxAttempts, "max-attempts", 5, "consecutive reconnect attempts before giving up (0 = unlimited)")
	talkCmd.Flags().BoolVar(&talkMuted, "muted", false, "start with the microphone muted")
}

func runTalk(parent context.Context, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = built.Cleanup() }()
	built.Engine.SetMute(talkMuted)

	t := &talker{
		eng:         built.Engine,
		reconnect:   talkReconnect,
		maxAttempts: talkMaxAttempts,
		base:        500 * time.Millisecond,
		cap:         15 * time.Second,
		out:         out,
		log:         logging.L("talk"),
	}
	return t.run(ctx)
}

var errSessionEnded = errors.New("session ended")

type liveEngine interface {
	Connect(ctx context.Context) error
	Disconnect()
	Session() (session.Session, error)
	Subscribe() (<-chan engine.Event, func())
}

// talker keeps one session open and prints its transcript. With reconnect
// set, dropped sessions are reopened with capped exponential backoff.
type talker struct {
	eng         liveEngine
	reconnect   bool
	maxAttempts int
	base, cap   time.Duration
	out         io.Writer
	log         zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func (t *talker) run(ctx context.Context) error {
	events, unsubscribe := t.eng.Subscribe()
	defer unsubscribe()

	attempt := 0
	for {
		err := t.eng.Connect(ctx)
		if err == nil {
			attempt = 0
			fmt.Fprintln(t.out, "connected; speak now (Ctrl+C to stop)")
			err = t.follow(ctx, events)
			if ctx.Err() != nil {
				t.eng.Disconnect()
				return nil
			}
			if !t.reconnect {
				return err
			}
		} else {
			if ctx.Err() != nil {
				return nil
			}
			if !t.reconnect || !retryableConnect(err) {
				return err
			}
		}

		attempt++
		if t.maxAttempts > 0 && attempt > t.maxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", t.maxAttempts, err)
		}
		delay := reliability.ExponentialBackoff(attempt-1, t.base, t.cap)
		t.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("reconnecting")
		if err := t.wait(ctx, delay); err != nil {
			return nil
		}
	}
}

// follow prints the current session's events until it closes.
func (t *talker) follow(ctx context.Context, events <-chan engine.Event) error {
	sess, err := t.eng.Session()
	if err != nil {
		return errSessionEnded
	}
	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return errSessionEnded
			}
			if evt.SessionID != "" && evt.SessionID != sess.ID {
				continue
			}
			switch evt.Type {
			case engine.EventTranscript:
				speaker := "you"
				if evt.Source == "output" {
					speaker = "iris"
				}
				fmt.Fprintf(t.out, "%s: %s\n", speaker, evt.Text)
			case engine.EventToolCalls:
				fmt.Fprintf(t.out, "[tools] %v\n", evt.Tools)
			case engine.EventInterrupted:
				fmt.Fprintln(t.out, "[interrupted]")
			case engine.EventError:
				lastErr = evt.Text
			case engine.EventState:
				if evt.State == session.StateClosed.String() {
					if lastErr != "" {
						return fmt.Errorf("%w: %s", errSessionEnded, lastErr)
					}
					return errSessionEnded
				}
			}
		}
	}
}

// retryableConnect rejects configuration and device failures outright.
// Transport failures retry only when the cause is transient.
func retryableConnect(err error) bool {
	if errors.Is(err, engine.ErrConfig) || errors.Is(err, engine.ErrDevice) {
		return false
	}
	return reliability.IsRetryable(err)
}

func (t *talker) wait(ctx context.Context, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
