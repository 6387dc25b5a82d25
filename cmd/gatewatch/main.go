package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/gatewatch/internal/buildinfo"
	"github.com/modoterra/gatewatch/pkg/activity"
	"github.com/modoterra/gatewatch/pkg/config"
	"github.com/modoterra/gatewatch/pkg/core"
	"github.com/modoterra/gatewatch/pkg/daemon"
	"github.com/modoterra/gatewatch/pkg/daemon/service"
	"github.com/modoterra/gatewatch/pkg/transport/uds"
	tuimodel "github.com/modoterra/gatewatch/pkg/tui/model"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gatewatch",
		Short:        "Watch OpenClaw gateway telemetry",
		Long:         "gatewatch is a TUI and CLI for gatewatchd: a live, classified feed of the OpenClaw gateway log plus merged agent activity.",
		SilenceUsage: true,
		RunE:         runTUI,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newPingCmd(),
		newStatusCmd(),
		newFeedCmd(),
		newPollCmd(),
		newClearCmd(),
		newPauseCmd(),
		newActivityCmd(),
		newLogCmd(),
		newVersionCmd(),
		newDaemonCmd(),
		newServiceCmd(),
	)
	return root
}

// socketPath resolves the daemon socket from --socket, GATEWATCH_SOCKET or
// the config file.
func socketPath(cmd *cobra.Command) (string, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return "", err
	}
	cfg, err := config.Resolve(v)
	if err != nil {
		return "", err
	}
	return cfg.Socket, nil
}

func dialDaemon(cmd *cobra.Command) (*uds.Client, error) {
	sock, err := socketPath(cmd)
	if err != nil {
		return nil, err
	}
	client, err := uds.Dial(sock)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", sock, err)
	}
	return client, nil
}

// call dials the daemon, performs one request and closes the connection.
func call(cmd *cobra.Command, method string, data, out any) error {
	client, err := dialDaemon(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return client.Call(ctx, method, data, out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Root: TUI ---

func runTUI(cmd *cobra.Command, _ []string) error {
	sock, err := socketPath(cmd)
	if err != nil {
		return err
	}
	ensureDaemon(cmd, sock)
	p := tea.NewProgram(tuimodel.New(sock), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func ensureDaemon(cmd *cobra.Command, sock string) {
	if _, err := os.Stat(sock); err == nil {
		return
	}
	args := []string{"--socket", sock}
	if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
		args = append(args, "--config", cfg)
	}
	d := exec.Command("gatewatchd", args...)
	if err := d.Start(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: could not start gatewatchd:", err)
		return
	}
	for i := 0; i < 30; i++ {
		if _, err := os.Stat(sock); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "warning: daemon socket did not appear, continuing anyway")
}

// --- Ping ---

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if the daemon is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pong uds.PingResponse
			if err := call(cmd, uds.MethodPing, nil, &pong); err != nil {
				return err
			}
			if !pong.Pong {
				return errors.New("daemon did not answer ping")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ (%s, instance %s)\n", pong.Version, pong.Instance)
			return nil
		},
	}
}

// --- Status ---

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, buffer and last poll state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st daemon.Status
			if err := call(cmd, uds.MethodStatus, nil, &st); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				return printJSON(w, st)
			}
			fmt.Fprintf(w, "instance:  %s (%s)\n", st.Instance, st.Version)
			fmt.Fprintf(w, "uptime:    %s\n", time.Since(st.Started).Round(time.Second))
			fmt.Fprintf(w, "log:       %s\n", st.LogPath)
			fmt.Fprintf(w, "buffered:  %d (last id %d)\n", st.Buffered, st.LastID)
			fmt.Fprintf(w, "paused:    %v\n", st.Paused)
			fmt.Fprintf(w, "clients:   %d\n", st.Clients)
			if !st.LastPoll.At.IsZero() {
				lp := st.LastPoll
				fmt.Fprintf(w, "last poll: %s %s, %d lines, %d accepted, %d new\n",
					lp.At.Format(time.TimeOnly), lp.Status, lp.Lines, lp.Accepted, lp.Inserted)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

// --- Network feed ---

func newFeedCmd() *cobra.Command {
	var (
		sinceID  int64
		limit    int
		follow   bool
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print retained network entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if category != "" && !core.Category(category).Valid() {
				return fmt.Errorf("unknown category %q", category)
			}
			client, err := dialDaemon(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			w := cmd.OutOrStdout()
			emit := func(entries []core.RetainedEntry) {
				for _, e := range entries {
					if category != "" && string(e.Category) != category {
						continue
					}
					if asJSON {
						line, _ := json.Marshal(e)
						fmt.Fprintln(w, string(line))
						continue
					}
					fmt.Fprintln(w, formatEntry(e))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			live := make(chan []core.RetainedEntry, 64)
			if follow {
				client.OnEvent(func(m uds.Message) {
					var entries []core.RetainedEntry
					if m.Method != uds.EventNetworkEntries || m.UnmarshalData(&entries) != nil {
						return
					}
					select {
					case live <- entries:
					case <-ctx.Done():
					}
				})
			}

			var resp uds.FeedResponse
			if err := client.Call(ctx, uds.MethodNetworkFeed, uds.FeedRequest{SinceID: sinceID, Limit: limit}, &resp); err != nil {
				return err
			}
			emit(resp.Entries)
			if !follow {
				return nil
			}

			lastID := sinceID
			if n := len(resp.Entries); n > 0 {
				lastID = resp.Entries[n-1].ID
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-client.Done():
					return errors.New("daemon connection closed")
				case entries := <-live:
					var fresh []core.RetainedEntry
					for _, e := range entries {
						if e.ID > lastID {
							fresh = append(fresh, e)
							lastID = e.ID
						}
					}
					emit(fresh)
				}
			}
		},
	}
	cmd.Flags().Int64Var(&sinceID, "since", 0, "only entries with an id above this")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to print (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing entries as they arrive")
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per line")
	return cmd
}

func formatEntry(e core.RetainedEntry) string {
	ts := e.Timestamp
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		ts = t.Local().Format(time.TimeOnly)
	}
	sub := ""
	if e.Subsystem != "" {
		sub = e.Subsystem + ": "
	}
	return fmt.Sprintf("%6d %s %s %s%s", e.ID, ts, tuimodel.CategoryLabel(e.Category), sub, e.Message)
}

// --- Poll / clear / pause ---

func newPollCmd() *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Read the log tail now and report new entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res struct {
				NewCount int `json:"newCount"`
				Total    int `json:"total"`
			}
			if err := call(cmd, uds.MethodNetworkPoll, uds.PollRequest{Window: window}, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d new, %d buffered\n", res.NewCount, res.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&window, "window", 0, "lines to read (default: daemon setting)")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the retained feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res uds.ClearResponse
			if err := call(cmd, uds.MethodNetworkClear, nil, &res); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "feed cleared")
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	var on, off bool
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Toggle, or with --on/--off set, feed ingestion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req uds.PauseRequest
			switch {
			case on && off:
				return errors.New("--on and --off are mutually exclusive")
			case on || off:
				req.Pause = &on
			}
			var res uds.PauseResponse
			if err := call(cmd, uds.MethodNetworkPause, req, &res); err != nil {
				return err
			}
			if res.Paused {
				fmt.Fprintln(cmd.OutOrStdout(), "feed paused")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "feed resumed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&on, "on", false, "pause ingestion")
	cmd.Flags().BoolVar(&off, "off", false, "resume ingestion")
	return cmd
}

// --- Activity ---

func newActivityCmd() *cobra.Command {
	var (
		q      activity.Query
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "List merged agent activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var page activity.Page
			if err := call(cmd, uds.MethodActivity, q, &page); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				return printJSON(w, page)
			}
			for _, e := range page.Entries {
				fmt.Fprintln(w, formatActivity(e))
			}
			fmt.Fprintf(w, "%d of %d entries", len(page.Entries), page.Total)
			for _, name := range core.Sources {
				src, ok := page.Sources[name]
				if !ok {
					continue
				}
				fmt.Fprintf(w, "  %s:%s", name, src.Status)
			}
			fmt.Fprintln(w)
			return nil
		},
	}
	cmd.Flags().IntVar(&q.Limit, "limit", activity.DefaultLimit, "page size")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "entries to skip")
	cmd.Flags().StringVar(&q.Agent, "agent", "", "only this agent")
	cmd.Flags().StringVar(&q.Action, "action", "", "only this action")
	cmd.Flags().StringVar(&q.Source, "source", "", "dashboard, gateway or session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func formatActivity(e core.ActivityEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-9s %-14s %-10s %-6s %s", e.Timestamp, e.Source, e.Action, e.Agent, e.Status, e.Target)
	if e.DurationMs > 0 {
		fmt.Fprintf(&b, " (%dms)", e.DurationMs)
	}
	return b.String()
}

// --- Log ---

func newLogCmd() *cobra.Command {
	var (
		entry    core.ActivityEntry
		details  string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "log <action>",
		Short: "Append an entry to the activity journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry.Action = args[0]
			entry.DurationMs = duration.Milliseconds()
			if details != "" {
				var v any
				if json.Unmarshal([]byte(details), &v) == nil {
					entry.Details = v
				} else {
					entry.Details = details
				}
			}
			var stored core.ActivityEntry
			if err := call(cmd, uds.MethodLogActivity, entry, &stored); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatActivity(stored))
			return nil
		},
	}
	cmd.Flags().StringVar(&entry.Target, "target", "", "what the action applied to")
	cmd.Flags().StringVar(&entry.Agent, "agent", "", "agent id")
	cmd.Flags().StringVar(&entry.Status, "status", "", "outcome, e.g. ok or error")
	cmd.Flags().StringVar(&details, "details", "", "free text or a JSON value")
	cmd.Flags().DurationVar(&duration, "duration", 0, "how long the action took")
	return cmd
}

// --- Version ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String("gatewatch"))
		},
	}
}

// --- Daemon ---

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Start gatewatchd in the foreground (for debugging)",
		Long:  "Normally the TUI auto-spawns the daemon. Use this to run it manually.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var args []string
			for _, name := range []string{"config", "socket", "log-level"} {
				if v, _ := cmd.Flags().GetString(name); v != "" {
					args = append(args, "--"+name, v)
				}
			}
			d := exec.Command("gatewatchd", args...)
			d.Stdout = os.Stdout
			d.Stderr = os.Stderr
			return d.Run()
		},
	}
}

// --- Service ---

func newServiceCmd() *cobra.Command {
	svc := &cobra.Command{
		Use:   "service",
		Short: "Manage the gatewatchd systemd user service",
	}

	install := &cobra.Command{
		Use:   "install",
		Short: "Install and start the user service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _ := cmd.Flags().GetString("config")
			if cfg != "" {
				cfg = config.ExpandHome(cfg)
			}
			if err := service.Install(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "gatewatchd.service installed")
			return nil
		},
	}

	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop and remove the user service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := service.Uninstall(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "gatewatchd.service removed")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show socket and service state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sock, err := socketPath(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), service.Status(sock))
			return nil
		},
	}

	svc.AddCommand(install, uninstall, status)
	return svc
}
