package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/debate"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Controller is the debate surface the UI drives.
type Controller interface {
	Start(ctx context.Context, topic string) error
	Stop()
	State() debate.State
	Watch(fn func(debate.State)) (cancel func())
}

// TopicSource generates debate topics.
type TopicSource interface {
	Generate(ctx context.Context) (string, error)
}

// UI represents the terminal UI
type UI struct {
	app        *tview.Application
	header     *tview.TextView
	leftView   *tview.TextView
	rightView  *tview.TextView
	inputField *tview.InputField

	ctrl         Controller
	topics       TopicSource
	logger       *slog.Logger
	commandsChan chan string
	notify       chan struct{}
	epoch        time.Time
	drawInterval time.Duration

	mu     sync.Mutex
	state  debate.State
	status string
}

// NewUI creates a new terminal UI. topics may be nil, which disables the
// random command.
func NewUI(ctrl Controller, topics TopicSource, logger *slog.Logger) *UI {
	if logger == nil {
		logger = slog.Default()
	}
	ui := &UI{
		app:          tview.NewApplication(),
		ctrl:         ctrl,
		topics:       topics,
		logger:       logger.With("component", "ui"),
		commandsChan: make(chan string, 10),
		notify:       make(chan struct{}, 1),
		epoch:        time.Now(),
		drawInterval: time.Second / 15, // face animation rate
		status:       helpText,
	}

	ui.setupUI()
	return ui
}

// setupUI sets up the terminal UI
func (ui *UI) setupUI() {
	ui.header = tview.NewTextView().SetDynamicColors(true)
	ui.header.SetBorder(true).SetTitle(" Live Debate Arena ")

	ui.leftView = newSideView()
	ui.rightView = newSideView()

	// Create the input field
	ui.inputField = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0).
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEnter {
				command := ui.inputField.GetText()
				if command != "" {
					select {
					case ui.commandsChan <- command:
					default:
					}
					ui.inputField.SetText("")
				}
			}
		})
	ui.inputField.SetBorder(true).SetTitle(" Command (start <topic>, random, stop, help, quit) ")

	arena := tview.NewFlex().
		AddItem(ui.leftView, 0, 1, false).
		AddItem(ui.rightView, 0, 1, false)

	mainFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.header, 5, 0, false).
		AddItem(arena, 0, 1, false).
		AddItem(ui.inputField, 3, 0, true)

	// Set the root and focus
	ui.app.SetRoot(mainFlex, true)
	ui.app.SetFocus(ui.inputField)

	// Add key handlers for better navigation
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyPgUp:
			ui.scroll(-5)
			return nil
		case tcell.KeyPgDn:
			ui.scroll(5)
			return nil
		case tcell.KeyCtrlS:
			// Stop without typing
			ui.Submit("stop")
			return nil
		}
		return event
	})
}

func newSideView() *tview.TextView {
	v := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true)
	v.SetBorder(true)
	return v
}

func (ui *UI) scroll(delta int) {
	for _, v := range []*tview.TextView{ui.leftView, ui.rightView} {
		row, _ := v.GetScrollOffset()
		v.ScrollTo(max(row+delta, 0), 0)
	}
}

// Submit queues a command line as if it had been typed.
func (ui *UI) Submit(line string) {
	select {
	case ui.commandsChan <- line:
	default:
	}
}

// Start runs the UI until ctx is done or the user quits.
func (ui *UI) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unwatch := ui.ctrl.Watch(ui.offer)
	defer unwatch()

	go ui.processCommands(ctx, cancel)
	go ui.drawLoop(ctx)

	// Handle application exit
	go func() {
		<-ctx.Done()
		ui.app.Stop()
	}()

	// Run the application
	if err := ui.app.Run(); err != nil {
		ui.logger.Error("UI error", "error", err)
		return err
	}
	return nil
}

// Stop stops the UI
func (ui *UI) Stop() {
	ui.app.Stop()
}

// offer records a new debate state. It runs on the debate loop and must not
// block.
func (ui *UI) offer(st debate.State) {
	ui.mu.Lock()
	ui.state = st
	ui.mu.Unlock()
	ui.poke()
}

func (ui *UI) poke() {
	select {
	case ui.notify <- struct{}{}:
	default:
	}
}

func (ui *UI) setStatus(format string, args ...any) {
	ui.mu.Lock()
	ui.status = fmt.Sprintf(format, args...)
	ui.mu.Unlock()
	ui.poke()
}

// drawLoop redraws on every state change, and on a ticker while a debate
// runs so faces keep blinking.
func (ui *UI) drawLoop(ctx context.Context) {
	ticker := time.NewTicker(ui.drawInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ui.notify:
		case <-ticker.C:
			if !ui.snapshot().Running() {
				continue
			}
		}
		ui.draw()
	}
}

func (ui *UI) snapshot() debate.State {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.state
}

func (ui *UI) draw() {
	ui.mu.Lock()
	st, status := ui.state, ui.status
	ui.mu.Unlock()
	frame := int(time.Since(ui.epoch) * 60 / time.Second)

	ui.app.QueueUpdateDraw(func() {
		ui.header.SetText(RenderHeader(st, status))
		for _, side := range []debate.Side{debate.Left, debate.Right} {
			view := ui.leftView
			if side == debate.Right {
				view = ui.rightView
			}
			ss := st.Side(side)
			view.SetTitle(fmt.Sprintf(" %s ", ss.Profile.DisplayName))
			view.SetText(RenderSide(ss, st.Running() && st.Speaker == side, frame))
			view.ScrollToEnd()
		}
	})
}

// processCommands processes user commands
func (ui *UI) processCommands(ctx context.Context, quit context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-ui.commandsChan:
			cmd, err := ParseCommand(line)
			if err != nil {
				ui.setStatus("[red]%s", tview.Escape(err.Error()))
				continue
			}
			ui.run(ctx, cmd, quit)
		}
	}
}

func (ui *UI) run(ctx context.Context, cmd Command, quit context.CancelFunc) {
	switch cmd.Name {
	case CmdHelp:
		ui.setStatus("%s", helpText)
	case CmdQuit:
		ui.ctrl.Stop()
		quit()
	case CmdStop:
		ui.ctrl.Stop()
		ui.setStatus("Debate stopped.")
	case CmdStart:
		go ui.start(ctx, cmd.Arg)
	case CmdRandom:
		if ui.topics == nil {
			ui.setStatus("[red]Topic generation needs OPENAI_API_KEY.")
			return
		}
		go func() {
			ui.setStatus("Generating a topic...")
			topic, err := ui.topics.Generate(ctx)
			if err != nil {
				ui.logger.Error("generate topic", "error", err)
				ui.setStatus("[red]Could not generate a topic.")
				return
			}
			ui.start(ctx, topic)
		}()
	}
}

func (ui *UI) start(ctx context.Context, topic string) {
	ui.setStatus("Connecting debaters...")
	err := ui.ctrl.Start(ctx, topic)
	switch {
	case err == nil:
		ui.setStatus("Debating. Type stop to end.")
	case errors.Is(err, debate.ErrDebateEnded):
		// stopped while starting; the stop command already reported it
	case errors.Is(err, debate.ErrDebateRunning):
		ui.setStatus("[yellow]A debate is already running. Type stop first.")
	default:
		ui.setStatus("[red]%s", tview.Escape(err.Error()))
	}
}
