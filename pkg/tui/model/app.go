package model

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/gatewatch/pkg/activity"
	"github.com/modoterra/gatewatch/pkg/core"
	"github.com/modoterra/gatewatch/pkg/transport/uds"
)

// maxEntries bounds the entries kept on screen, matching the daemon buffer.
const maxEntries = 500

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneFeed Pane = iota
	PaneDetail
	PaneActivity
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
)

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	socketPath string
	connected  bool
	events     chan []core.RetainedEntry

	// State
	entries     []core.RetainedEntry
	lastID      int64
	paused      bool
	selectedIdx int
	follow      bool
	category    core.Category
	activity    []core.ActivityEntry
	actTotal    int

	// UI
	activePane Pane
	mode       Mode
	search     textinput.Model
	width      int
	height     int

	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	si := textinput.New()
	si.Placeholder = "search..."
	si.CharLimit = 64

	return App{
		socketPath: socketPath,
		events:     make(chan []core.RetainedEntry, 64),
		search:     si,
		follow:     true,
		activePane: PaneFeed,
		mode:       ModeNormal,
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tea.SetWindowTitle("gatewatch"),
	)
}

// tickMsg triggers periodic refresh.
type tickMsg time.Time

// connectedMsg indicates successful daemon connection.
type connectedMsg struct{ client *uds.Client }

// feedMsg carries entries fetched with NetworkFeed.
type feedMsg uds.FeedResponse

// entriesMsg carries entries pushed by the daemon.
type entriesMsg []core.RetainedEntry

// activityMsg carries an activity page.
type activityMsg activity.Page

// pausedMsg carries the daemon's pause flag after a toggle.
type pausedMsg bool

// clearedMsg confirms a clear.
type clearedMsg struct{}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		return connectedMsg{client}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEntries blocks until the daemon pushes entries.
func waitForEntries(ch <-chan []core.RetainedEntry) tea.Cmd {
	return func() tea.Msg {
		return entriesMsg(<-ch)
	}
}

func call(client *uds.Client, method string, data any, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Call(ctx, method, data, out)
}

func fetchFeedCmd(client *uds.Client, sinceID int64) tea.Cmd {
	return func() tea.Msg {
		var resp uds.FeedResponse
		if err := call(client, uds.MethodNetworkFeed, uds.FeedRequest{SinceID: sinceID}, &resp, 2*time.Second); err != nil {
			return errorMsg{err}
		}
		return feedMsg(resp)
	}
}

func fetchActivityCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		var page activity.Page
		if err := call(client, uds.MethodActivity, activity.Query{Limit: 200}, &page, 5*time.Second); err != nil {
			return errorMsg{err}
		}
		return activityMsg(page)
	}
}

func pauseCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		var resp uds.PauseResponse
		if err := call(client, uds.MethodNetworkPause, uds.PauseRequest{}, &resp, 2*time.Second); err != nil {
			return errorMsg{err}
		}
		return pausedMsg(resp.Paused)
	}
}

func clearCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		if err := call(client, uds.MethodNetworkClear, nil, nil, 2*time.Second); err != nil {
			return errorMsg{err}
		}
		return clearedMsg{}
	}
}

func pollCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		if err := call(client, uds.MethodNetworkPoll, uds.PollRequest{}, nil, 5*time.Second); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.connected = true
		a.statusMsg = "connected"

		events := a.events
		a.client.OnEvent(func(m uds.Message) {
			if m.Method != uds.EventNetworkEntries {
				return
			}
			var entries []core.RetainedEntry
			if m.UnmarshalData(&entries) == nil {
				select {
				case events <- entries:
				default:
					// The next tick catches up through NetworkFeed.
				}
			}
		})

		return a, tea.Batch(
			tickCmd(),
			fetchFeedCmd(a.client, 0),
			fetchActivityCmd(a.client),
			waitForEntries(a.events),
		)

	case tickMsg:
		if a.client != nil {
			cmds := []tea.Cmd{tickCmd(), fetchFeedCmd(a.client, a.lastID)}
			if a.activePane == PaneActivity {
				cmds = append(cmds, fetchActivityCmd(a.client))
			}
			return a, tea.Batch(cmds...)
		}
		return a, tickCmd()

	case feedMsg:
		a.paused = msg.Paused
		a.addEntries(msg.Entries)
		return a, nil

	case entriesMsg:
		a.addEntries(msg)
		return a, waitForEntries(a.events)

	case activityMsg:
		a.activity = msg.Entries
		a.actTotal = msg.Total
		for name, src := range msg.Sources {
			if src.Status == activity.StatusReadError {
				a.statusMsg = name + ": " + src.Error
			}
		}
		return a, nil

	case pausedMsg:
		a.paused = bool(msg)
		if a.paused {
			a.statusMsg = "feed paused"
		} else {
			a.statusMsg = "feed resumed"
		}
		return a, nil

	case clearedMsg:
		a.entries = nil
		a.selectedIdx = 0
		a.statusMsg = "feed cleared"
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

// addEntries appends entries newer than lastID, keeping at most maxEntries.
func (a *App) addEntries(entries []core.RetainedEntry) {
	for _, e := range entries {
		if e.ID <= a.lastID {
			continue
		}
		a.entries = append(a.entries, e)
		a.lastID = e.ID
	}
	if over := len(a.entries) - maxEntries; over > 0 {
		a.entries = a.entries[over:]
		a.selectedIdx = max(0, a.selectedIdx-over)
	}
	if a.follow {
		a.selectedIdx = max(0, len(a.filteredEntries())-1)
	}
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Search mode
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			a.selectedIdx = max(0, len(a.filteredEntries())-1)
			return a, nil
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			return a, cmd
		}
	}

	// Normal mode
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if n := len(a.filteredEntries()); a.activePane != PaneActivity && n > 0 {
			a.selectedIdx = min(a.selectedIdx+1, n-1)
			a.follow = a.selectedIdx == n-1
		}
	case "k", "up":
		if a.activePane != PaneActivity && a.selectedIdx > 0 {
			a.selectedIdx--
			a.follow = false
		}
	case "G", "end":
		a.selectedIdx = max(0, len(a.filteredEntries())-1)
		a.follow = true
	case "g", "home":
		a.selectedIdx = 0
		a.follow = false

	case "tab":
		a.activePane = (a.activePane + 1) % 3
		if a.activePane == PaneActivity && a.client != nil {
			return a, fetchActivityCmd(a.client)
		}

	case "/":
		a.mode = ModeSearch
		a.search.Focus()
		return a, textinput.Blink

	case "f":
		a.category = nextCategory(a.category)
		a.selectedIdx = max(0, len(a.filteredEntries())-1)
		a.follow = true

	case " ":
		if a.client != nil {
			return a, pauseCmd(a.client)
		}
	case "c":
		if a.client != nil {
			return a, clearCmd(a.client)
		}
	case "p":
		if a.client != nil {
			return a, pollCmd(a.client)
		}
	}

	return a, nil
}

// nextCategory cycles through all categories, then back to no filter.
func nextCategory(c core.Category) core.Category {
	if c == "" {
		return core.Categories[0]
	}
	for i, cat := range core.Categories {
		if cat == c && i+1 < len(core.Categories) {
			return core.Categories[i+1]
		}
	}
	return ""
}

func (a App) filteredEntries() []core.RetainedEntry {
	q := strings.ToLower(a.search.Value())
	if q == "" && a.category == "" {
		return a.entries
	}
	var filtered []core.RetainedEntry
	for _, e := range a.entries {
		if a.category != "" && e.Category != a.category {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Message), q) &&
			!strings.Contains(strings.ToLower(e.Subsystem), q) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func (a App) selectedEntry() *core.RetainedEntry {
	entries := a.filteredEntries()
	if a.selectedIdx < len(entries) {
		return &entries[a.selectedIdx]
	}
	return nil
}
