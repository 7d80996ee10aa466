package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/agent"
	"github.com/chandler767/live-debate-arena/pkg/audio"
	"github.com/chandler767/live-debate-arena/pkg/config"
	"github.com/chandler767/live-debate-arena/pkg/debate"
	"github.com/chandler767/live-debate-arena/pkg/gemini"
	"github.com/chandler767/live-debate-arena/pkg/kafka"
	"github.com/chandler767/live-debate-arena/pkg/logging"
	"github.com/chandler767/live-debate-arena/pkg/server"
	"github.com/chandler767/live-debate-arena/pkg/session"
	"github.com/chandler767/live-debate-arena/pkg/session/fake"
	"github.com/chandler767/live-debate-arena/pkg/store"
	"github.com/chandler767/live-debate-arena/pkg/types"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// app holds the wiring shared by every command.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	topics  *agent.TopicGenerator
	history *store.Store
	closers []func(ctx context.Context) error
}

// loadApp reads configuration, applies the persistent flags and sets up
// logging and Sentry. defaultLogDir is used when neither the flag nor
// LOG_DIR names one.
func loadApp(cmd *cobra.Command, defaultLogDir string) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
		cfg, err = config.Load(envFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if dir, _ := cmd.Flags().GetString("log-dir"); dir != "" {
		cfg.Log.Dir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = defaultLogDir
	}

	logger, err := logging.New(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	// Initialize Sentry for error monitoring
	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		})
		if err != nil {
			logger.Warn("sentry init failed", "error", err)
		} else {
			logger.Info("sentry initialized")
			a.closers = append(a.closers, func(context.Context) error {
				sentry.Flush(2 * time.Second)
				return nil
			})
		}
	}

	if cfg.OpenAI.APIKey != "" {
		a.topics = agent.NewTopicGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}
	return a, nil
}

// topicSource returns the topic generator, or nil when none is configured.
// The nil check keeps a nil *TopicGenerator out of the interface.
func (a *app) topicSource() server.TopicSource {
	if a.topics == nil {
		return nil
	}
	return a.topics
}

// controllerOptions are the per-command debate overrides.
type controllerOptions struct {
	fake       bool
	maxTurns   int
	left       string
	right      string
	leftStyle  string
	rightStyle string
}

func addControllerFlags(cmd *cobra.Command, o *controllerOptions) {
	cmd.Flags().BoolVar(&o.fake, "fake", false, "use scripted offline agents instead of Gemini Live")
	cmd.Flags().IntVar(&o.maxTurns, "max-turns", 0, "end the debate after this many turns (overrides MAX_TURNS)")
	cmd.Flags().StringVar(&o.left, "left", "", "preset arguing for the topic (overrides LEFT_AGENT)")
	cmd.Flags().StringVar(&o.right, "right", "", "preset arguing against the topic (overrides RIGHT_AGENT)")
	cmd.Flags().StringVar(&o.leftStyle, "left-style", "", "debate style for the left agent, or \"random\"")
	cmd.Flags().StringVar(&o.rightStyle, "right-style", "", "debate style for the right agent, or \"random\"")
}

// controller builds the debate controller and its recorders.
func (a *app) controller(ctx context.Context, o controllerOptions) (*debate.Controller, error) {
	dc := a.cfg.Debate
	if o.maxTurns > 0 {
		dc.MaxTurns = o.maxTurns
	}
	if o.left != "" {
		dc.LeftAgent = o.left
	}
	if o.right != "" {
		dc.RightAgent = o.right
	}

	var err error
	left, ok := agent.Lookup(dc.LeftAgent)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", dc.LeftAgent)
	}
	right, ok := agent.Lookup(dc.RightAgent)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", dc.RightAgent)
	}
	if left.Style, err = pickStyle(left.Style, o.leftStyle); err != nil {
		return nil, err
	}
	if right.Style, err = pickStyle(right.Style, o.rightStyle); err != nil {
		return nil, err
	}
	if left.ID == right.ID {
		return nil, fmt.Errorf("an agent cannot debate itself: %s", left.DisplayName)
	}

	var transport session.Transport
	if o.fake {
		transport = fakeTransport()
	} else {
		t, err := gemini.New(ctx, a.cfg.Gemini.APIKey, a.cfg.Gemini.Model, a.logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("%w (set GEMINI_API_KEY or use --fake)", err)
		}
		transport = t
	}

	recorders, err := a.recorders(ctx)
	if err != nil {
		return nil, err
	}

	cfg := debate.Config{
		Transport:      transport,
		Model:          a.cfg.Gemini.Model,
		Left:           left,
		Right:          right,
		ConnectTimeout: dc.ConnectTimeout,
		OpeningDelay:   dc.OpeningDelay,
		MaxTurns:       dc.MaxTurns,
		Recorder:       recorders,
		Logger:         a.logger.Logger,
	}
	if dc.RecordDir != "" {
		cfg.AudioSinks = wavSinks(dc.RecordDir)
	}

	ctrl, err := debate.NewController(cfg)
	if err != nil {
		return nil, err
	}
	// Closers run in reverse, so the controller stops before the recorders
	// it feeds are drained.
	a.closers = append(a.closers, func(context.Context) error {
		ctrl.Close()
		return nil
	})
	return ctrl, nil
}

// pickStyle applies a --*-style flag to a preset's style.
func pickStyle(preset types.DebateStyle, flag string) (types.DebateStyle, error) {
	switch flag {
	case "":
		return preset, nil
	case "random":
		return agent.RandomDebateStyle(), nil
	}
	style, ok := types.ParseDebateStyle(flag)
	if !ok {
		return "", fmt.Errorf("unknown debate style %q", flag)
	}
	return style, nil
}

// recorders wires the optional Kafka, Postgres and Sentry sinks.
func (a *app) recorders(ctx context.Context) (debate.Recorders, error) {
	var rs debate.Recorders

	if a.cfg.Kafka.Enabled() {
		client, err := kafka.NewClient(&a.cfg.Kafka, false, a.logger.Logger)
		if err != nil {
			return nil, err
		}
		pub := kafka.NewPublisher(client, a.cfg.Kafka.Topic(), a.logger.Logger)
		a.closers = append(a.closers, func(ctx context.Context) error {
			defer client.Close()
			return pub.Close(ctx)
		})
		rs = append(rs, pub)
	}

	if a.cfg.Database.URL != "" {
		db, err := store.Connect(ctx, a.cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		s := store.New(db)
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		archive := store.NewArchive(s, a.logger.Logger)
		a.closers = append(a.closers, func(ctx context.Context) error {
			defer db.Close()
			return archive.Close(ctx)
		})
		a.history = s
		rs = append(rs, archive)
	}

	if a.cfg.Sentry.DSN != "" {
		rs = append(rs, sentryRecorder{})
	}
	return rs, nil
}

// Close releases everything the app opened, newest first.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}
	_ = a.logger.Close()
}

// sentryRecorder reports failed debates to Sentry.
type sentryRecorder struct{}

func (sentryRecorder) DebateStarted(types.DebateMessage) {}
func (sentryRecorder) TurnCommitted(types.DebateMessage) {}

func (sentryRecorder) DebateEnded(s types.DebateSummary) {
	if s.Outcome != debate.EndFailed.String() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("debate_id", s.DebateID)
		scope.SetTag("left", s.Left)
		scope.SetTag("right", s.Right)
		scope.SetExtra("topic", s.Topic)
		scope.SetExtra("turns", s.Turns)
		sentry.CaptureException(errors.New(s.Error))
	})
}

// wavSinks records each side of every debate to
// {dir}/{debate id}-{side}-{agent}.wav.
func wavSinks(dir string) debate.AudioSinkFactory {
	return func(id string, side debate.Side, p types.AgentProfile) (debate.AudioSink, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create recording directory: %w", err)
		}
		name := filepath.Join(dir, fmt.Sprintf("%s-%s-%s.wav", id, side, p.ID))
		w, err := audio.NewWAVWriter(name, audio.DefaultSampleRate)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

var fakeLines = []string{
	"That is the most delightfully wrong thing I have heard all week.",
	"With respect, history, taste and common sense are all on my side.",
	"You call that an argument? I have seen sturdier souffles.",
	"Bold claim. Shame it collapses the moment anyone thinks about it.",
	"I admire your confidence, if not your conclusions.",
}

// fakeTransport scripts short witty replies so the whole arena can run
// offline.
func fakeTransport() *fake.Transport {
	t := fake.New()
	t.WordDelay = 120 * time.Millisecond
	t.Responder = func(cfg session.Config, prompt string) string {
		return fakeReply(cfg.Voice, prompt)
	}
	return t
}

func fakeReply(voice, prompt string) string {
	n := len(prompt) + len(voice)
	line := fakeLines[n%len(fakeLines)]
	if strings.HasPrefix(prompt, "Start a heated debate") {
		return "Ladies and gentlemen, this is obviously right. " + line
	}
	return line
}
