package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"stepcap/internal/emitter"
	"stepcap/internal/health"
	"stepcap/internal/ipc"
	"stepcap/internal/tracking"
)

// session wraps a connected client.
type session struct {
	client *ipc.IPCClient
}

func connect(ctx context.Context) (*session, error) {
	path := resolveSocket()
	cfg := ipc.DefaultClientConfig(path)
	cfg.ClientName = "stepcapctl"
	cfg.ClientVersion = Version

	client := ipc.NewClient(cfg)
	if err := client.Connect(ctx); err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			return nil, fmt.Errorf("stepcapd is not running on %s (start it with: stepcapctl launch)", path)
		}
		return nil, fmt.Errorf("cannot connect to daemon: %w", err)
	}
	return &session{client: client}, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

// withSession runs fn against a fresh connection.
func withSession(fn func(*session) error) error {
	s, err := connect(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func cmdStart() error {
	return withSession(func(s *session) error {
		resp, err := s.client.Start()
		if err != nil {
			return describe(err, "start recording")
		}
		fmt.Printf("%sRecording%s  session %s%s%s\n", c.Green, c.Reset, c.Cyan, resp.SessionID, c.Reset)
		return nil
	})
}

func cmdStop() error {
	return withSession(func(s *session) error {
		resp, err := s.client.Stop()
		if err != nil {
			return describe(err, "stop recording")
		}
		fmt.Printf("Stopped after %s, %d records\n", resp.Status.Duration.Round(time.Second), resp.Status.Records)
		return nil
	})
}

func cmdPause() error {
	return withSession(func(s *session) error {
		resp, err := s.client.TogglePause()
		if err != nil {
			return describe(err, "toggle pause")
		}
		switch resp.State {
		case tracking.Paused:
			fmt.Printf("%sPaused%s\n", c.Yellow, c.Reset)
		case tracking.Running:
			fmt.Printf("%sResumed%s\n", c.Green, c.Reset)
		default:
			printWarning("No recording session to pause")
		}
		return nil
	})
}

func cmdPing() error {
	return withSession(func(s *session) error {
		start := time.Now()
		if err := s.client.Ping(); err != nil {
			return err
		}
		fmt.Printf("pong from stepcapd %s in %s\n", s.client.ServerVersion(), time.Since(start).Round(time.Microsecond))
		return nil
	})
}

func cmdStatus() error {
	return withSession(func(s *session) error {
		status, err := s.client.Status()
		if err != nil {
			return describe(err, "get status")
		}

		printSection("DAEMON")
		printField("Version", status.Version)
		printField("Started", status.StartedAt.Format(time.RFC3339))
		printField("Uptime", status.Uptime.Round(time.Second).String())
		printField("Clients", fmt.Sprint(status.Clients))

		printSection("RECORDING")
		printField("State", stateLabel(status.Tracking.State))
		if status.Tracking.SessionID != "" {
			printField("Session", status.Tracking.SessionID)
			printField("Duration", status.Tracking.Duration.Round(time.Second).String())
			printField("Paused for", status.Tracking.Paused.Round(time.Second).String())
			printField("Records", fmt.Sprint(status.Tracking.Records))
		}

		if len(status.Counters) > 0 {
			printSection("COUNTERS")
			names := make([]string, 0, len(status.Counters))
			for name := range status.Counters {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				printField(name, formatCounter(status.Counters[name]))
			}
		}
		fmt.Println()
		return nil
	})
}

func cmdHealth() error {
	return withSession(func(s *session) error {
		report, err := s.client.Health()
		if err != nil {
			return describe(err, "get health")
		}
		printSection("HEALTH")
		printField("Overall", healthLabel(report.Status))
		printField("Ready", fmt.Sprint(report.Ready))
		for _, name := range report.Names() {
			r := report.Components[name]
			line := healthLabel(r.Status)
			if r.Message != "" {
				line += "  " + r.Message
			}
			if r.Error != "" {
				line += "  (" + r.Error + ")"
			}
			printField(name, line)
		}
		fmt.Println()
		if report.Status == health.StatusUnhealthy {
			return errors.New("daemon is unhealthy")
		}
		return nil
	})
}

func healthLabel(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return c.Green + string(s) + c.Reset
	case health.StatusDegraded:
		return c.Yellow + string(s) + c.Reset
	case health.StatusUnhealthy:
		return c.Red + string(s) + c.Reset
	}
	return string(s)
}

func cmdMetrics() error {
	return withSession(func(s *session) error {
		text, err := s.client.Metrics()
		if err != nil {
			return describe(err, "get metrics")
		}
		fmt.Print(text)
		return nil
	})
}

func cmdWatch(args []string) error {
	asJSON := false
	var names []string
	for _, a := range args {
		switch a {
		case "--json", "-json":
			asJSON = true
		default:
			names = append(names, a)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	sub, err := s.client.Subscribe(names...)
	if err != nil {
		return describe(err, "subscribe")
	}
	if !asJSON {
		fmt.Fprintf(os.Stderr, "%sWatching %s (Ctrl+C to stop)%s\n", c.Dim, strings.Join(sub.Events, ", "), c.Reset)
	}

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			if n := s.client.Dropped(); n > 0 {
				printWarning(fmt.Sprintf("%d events dropped by this client", n))
			}
			return nil
		case ev, ok := <-s.client.Events():
			if !ok {
				return errors.New("connection to daemon lost")
			}
			if asJSON {
				if err := enc.Encode(ev); err != nil {
					return err
				}
				continue
			}
			fmt.Println(formatEvent(ev))
		}
	}
}

// describe turns daemon error replies into operator-facing messages.
func describe(err error, op string) error {
	var resp *ipc.ErrorResponse
	if errors.As(err, &resp) {
		return fmt.Errorf("cannot %s: %s", op, resp.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func stateLabel(s tracking.State) string {
	switch s {
	case tracking.Running:
		return c.Bold + c.Green + "RECORDING" + c.Reset
	case tracking.Paused:
		return c.Bold + c.Yellow + "PAUSED" + c.Reset
	}
	return "STOPPED"
}

func formatCounter(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprint(int64(v))
	}
	return fmt.Sprintf("%.3f", v)
}

// formatEvent renders one event as a single line. Screenshot data is
// reduced to its size.
func formatEvent(ev emitter.Event) string {
	ts := ev.Time.Local().Format("15:04:05.000")
	if ev.Name != emitter.EventInteraction || ev.Record == nil {
		return fmt.Sprintf("%s #%d %s %v", ts, ev.Seq, ev.Name, ev.Value)
	}
	r := ev.Record
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d %s", ts, ev.Seq, r.ActionType)
	if p, ok := r.Position(); ok {
		fmt.Fprintf(&b, " at (%d,%d)", p.X, p.Y)
	}
	if r.Name != "" || r.ControlType != "" {
		fmt.Fprintf(&b, " %q [%s]", r.Name, r.ControlType)
	}
	if r.WindowTitle != "" {
		fmt.Fprintf(&b, " in %q", r.WindowTitle)
	}
	if r.HasScreenshot() {
		fmt.Fprintf(&b, " screenshot=%dB", len(*r.Screenshot))
	}
	return b.String()
}
