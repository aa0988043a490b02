// ABOUTME: Session owning the per-login state containers: channel connections,
// ABOUTME: event router, progress logs, chat machine, run identifiers, and reconciliation.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/2389-research/pulse/api"
	"github.com/2389-research/pulse/chat"
	"github.com/2389-research/pulse/conn"
	"github.com/2389-research/pulse/history"
	"github.com/2389-research/pulse/progress"
	"github.com/2389-research/pulse/route"
	"github.com/2389-research/pulse/stage"
	"github.com/2389-research/pulse/wire"
)

// TokenProvider supplies the current bearer token. A token change is picked
// up on the next (re)connect.
type TokenProvider interface {
	Token() string
}

// StaticToken is a TokenProvider for a fixed credential.
type StaticToken string

// Token returns the fixed credential.
func (t StaticToken) Token() string { return string(t) }

// Identifiers is the minimal state the stage gate needs. Each identifier is
// assigned when the asynchronous "started" response returns and cleared on
// reset.
type Identifiers struct {
	ConnectionStatus string
	ExtractionID     string
	AnalysisID       string
}

// ErrStageLocked is returned when a pipeline phase is started out of order.
var ErrStageLocked = errors.New("session: prerequisite stage not completed")

// Config configures a Session.
type Config struct {
	// BaseURL is the HTTP API base, e.g. "http://localhost:2389".
	BaseURL string

	// ChatEndpoint and PipelineEndpoint are the websocket URLs for the two
	// channels, without the token parameter.
	ChatEndpoint     string
	PipelineEndpoint string

	Turn chat.TurnConfig

	// Dialer defaults to the production websocket dialer.
	Dialer conn.Dialer

	// NewTimer overrides reconnect/cancellation scheduling in tests.
	NewTimer conn.TimerFactory

	// Store, when set, persists finalized messages and run outcomes.
	Store *history.Store
}

// chatSender binds the chat machine's outbound path to the chat channel.
type chatSender struct {
	mgr *conn.Manager
}

func (s chatSender) Send(frame any) error {
	return s.mgr.Send(wire.ChannelChat, frame)
}

// Session is the explicitly-owned container for one login's real-time state.
// Initialized once per session and torn down on logout.
type Session struct {
	cfg     Config
	tokens  TokenProvider
	mgr     *conn.Manager
	machine *chat.Machine
	router  *route.Router
	logs    map[string]*progress.Log
	client  *api.Client

	mu     sync.Mutex
	ids    Identifiers
	runIDs map[string]string

	done     chan struct{}
	stopOnce sync.Once
}

// New builds a Session from config. Call Start to open the channels.
func New(cfg Config, tokens TokenProvider) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = conn.DialWebsocket
	}

	s := &Session{
		cfg:    cfg,
		tokens: tokens,
		logs: map[string]*progress.Log{
			wire.PipelineExtraction:    progress.NewLog(),
			wire.PipelineAnalysis:      progress.NewLog(),
			wire.PipelineGeneration:    progress.NewLog(),
			wire.PipelineContextEngine: progress.NewLog(),
		},
		client: api.NewClient(cfg.BaseURL, tokens.Token),
		runIDs: make(map[string]string),
		done:   make(chan struct{}),
	}

	s.mgr = conn.NewManager(conn.Config{
		Endpoints: map[wire.Channel]string{
			wire.ChannelChat:     cfg.ChatEndpoint,
			wire.ChannelPipeline: cfg.PipelineEndpoint,
		},
		Dialer:   cfg.Dialer,
		Token:    tokens.Token,
		OnFrame:  func(ch wire.Channel, raw []byte) { s.router.Route(ch, raw) },
		NewTimer: cfg.NewTimer,
	})

	var machineOpts []chat.Option
	if cfg.NewTimer != nil {
		machineOpts = append(machineOpts, chat.WithTimerFactory(chat.TimerFactory(func(d time.Duration, fn func()) chat.Timer {
			return cfg.NewTimer(d, fn)
		})))
	}
	if cfg.Store != nil {
		store := cfg.Store
		machineOpts = append(machineOpts, chat.WithOnMessage(func(msg chat.Message) {
			if err := store.SaveMessage(msg); err != nil {
				log.Printf("session: persist message: %v", err)
			}
		}))
	}
	s.machine = chat.NewMachine(chatSender{mgr: s.mgr}, cfg.Turn, machineOpts...)

	s.router = route.New(s.machine, s.logs)
	s.router.SetTerminalHook(s.recordTerminal)

	return s
}

// Start opens both channels and begins watching for reconnects that require
// reconciliation against polled HTTP state.
func (s *Session) Start(ctx context.Context) {
	events := s.mgr.Events().Subscribe()
	go s.watchLifecycle(ctx, events)

	s.mgr.Connect(ctx, wire.ChannelChat)
	s.mgr.Connect(ctx, wire.ChannelPipeline)
}

// Stop tears the session down: both channels are closed manually so no
// reconnect is scheduled.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mgr.CloseAll()
	})
}

// watchLifecycle reconciles missed events whenever the pipeline channel
// recovers from a drop. Delivery is not guaranteed while disconnected; the
// HTTP API is the source of truth for repairs.
func (s *Session) watchLifecycle(ctx context.Context, events <-chan conn.LifecycleEvent) {
	dropped := make(map[wire.Channel]bool)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Status {
			case conn.StatusConnecting:
				if ev.Attempt > 0 {
					dropped[ev.Channel] = true
				}
			case conn.StatusOpen:
				if dropped[ev.Channel] {
					dropped[ev.Channel] = false
					if ev.Channel == wire.ChannelPipeline {
						s.Reconcile(ctx)
					}
				}
			}
		}
	}
}

// SetVerbose enables router drop logging for diagnostics.
func (s *Session) SetVerbose(v bool) {
	s.router.SetVerbose(v)
}

// Machine returns the chat state machine.
func (s *Session) Machine() *chat.Machine { return s.machine }

// Manager returns the connection manager, e.g. for UI status indicators.
func (s *Session) Manager() *conn.Manager { return s.mgr }

// ProgressLog returns the progress log for a pipeline kind.
func (s *Session) ProgressLog(kind string) *progress.Log { return s.logs[kind] }

// SendChat sends a user chat message through the state machine.
func (s *Session) SendChat(content string) error {
	return s.machine.SendMessage(content)
}

// CancelChat requests cancellation of the in-flight assistant turn.
func (s *Session) CancelChat() {
	s.machine.Cancel()
}

// StageInputs snapshots the state the stage gate consumes.
func (s *Session) StageInputs() stage.Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stage.Inputs{
		ConnectionStatus: s.ids.ConnectionStatus,
		ExtractionID:     s.ids.ExtractionID,
		AnalysisID:       s.ids.AnalysisID,
	}
}

// ConnectUpstream connects the backend to the system under test, unlocking
// the extract stage.
func (s *Session) ConnectUpstream(ctx context.Context, req api.ConnectRequest) error {
	resp, err := s.client.ConnectUpstream(ctx, req)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ids.ConnectionStatus = resp.Status
	s.mu.Unlock()
	return nil
}

// StartExtraction starts a data extraction run. Rejected locally when the
// upstream connection is missing, before any request is sent.
func (s *Session) StartExtraction(ctx context.Context) error {
	if !stage.Enterable(s.StageInputs(), stage.Extract) {
		return ErrStageLocked
	}

	run, err := s.client.StartExtraction(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ids.ExtractionID = run.ID
	s.runIDs[wire.PipelineExtraction] = run.ID
	s.mu.Unlock()

	s.logs[wire.PipelineExtraction].Clear()
	s.recordStart(run.ID, wire.PipelineExtraction)
	return nil
}

// StartAnalysis starts an analysis run over the current extraction.
func (s *Session) StartAnalysis(ctx context.Context) error {
	in := s.StageInputs()
	if !stage.Enterable(in, stage.Analyze) {
		return ErrStageLocked
	}

	run, err := s.client.StartAnalysis(ctx, in.ExtractionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ids.AnalysisID = run.ID
	s.runIDs[wire.PipelineAnalysis] = run.ID
	s.mu.Unlock()

	s.logs[wire.PipelineAnalysis].Clear()
	s.recordStart(run.ID, wire.PipelineAnalysis)
	return nil
}

// StartGeneration starts document generation from the current analysis.
func (s *Session) StartGeneration(ctx context.Context) error {
	in := s.StageInputs()
	if !stage.Enterable(in, stage.Generate) {
		return ErrStageLocked
	}

	run, err := s.client.StartGeneration(ctx, in.AnalysisID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runIDs[wire.PipelineGeneration] = run.ID
	s.mu.Unlock()

	s.logs[wire.PipelineGeneration].Clear()
	s.recordStart(run.ID, wire.PipelineGeneration)
	return nil
}

// CancelPipeline requests cancellation of a pipeline kind's current run.
// Fire-and-forget: the terminal progress event updates state; a failed
// cancel request is swallowed because the server may terminate the run via
// its own timeout anyway.
func (s *Session) CancelPipeline(ctx context.Context, kind string) {
	s.mu.Lock()
	runID := s.runIDs[kind]
	s.mu.Unlock()
	if runID == "" {
		return
	}
	if err := s.client.CancelRun(ctx, runID); err != nil {
		log.Printf("session: cancel %s run %s: %v", kind, runID, err)
	}
}

// Reset clears run identifiers and progress logs for a fresh run. The
// upstream connection status is preserved.
func (s *Session) Reset() {
	s.mu.Lock()
	s.ids.ExtractionID = ""
	s.ids.AnalysisID = ""
	s.runIDs = make(map[string]string)
	s.mu.Unlock()

	for _, l := range s.logs {
		l.Clear()
	}
}

// Reconcile repairs progress state against the HTTP API after events may
// have been missed. For each tracked run whose log lacks a terminal entry,
// the polled status is translated into the same synthetic entry the router
// would have produced.
func (s *Session) Reconcile(ctx context.Context) {
	s.mu.Lock()
	tracked := make(map[string]string, len(s.runIDs))
	for kind, id := range s.runIDs {
		tracked[kind] = id
	}
	s.mu.Unlock()

	for kind, runID := range tracked {
		l := s.logs[kind]
		if l == nil || hasTerminalMeta(l) {
			continue
		}

		status, err := s.client.GetRunStatus(ctx, runID)
		if err != nil {
			log.Printf("session: reconcile %s run %s: %v", kind, runID, err)
			continue
		}

		var entry progress.Entry
		switch status.Status {
		case "done":
			entry = progress.Entry{Phase: progress.PhaseComplete, Status: progress.StatusDone, Detail: status.Detail}
		case "failed":
			entry = progress.Entry{Phase: progress.PhaseError, Status: progress.StatusFailed, Detail: status.Detail, Error: status.Error}
		case "cancelled":
			entry = progress.Entry{Phase: progress.PhaseCancelled, Status: progress.StatusCancelled, Detail: status.Detail}
		default:
			// Still running: the live stream will carry it forward.
			continue
		}
		entry.At = time.Now()
		l.Append(entry)
		s.recordTerminal(kind, entry)
	}
}

// hasTerminalMeta reports whether the log already reached a synthetic
// terminal phase.
func hasTerminalMeta(l *progress.Log) bool {
	for _, e := range l.Entries() {
		switch e.Phase {
		case progress.PhaseComplete, progress.PhaseError, progress.PhaseCancelled:
			return true
		}
	}
	return false
}

// recordStart persists a run start when a store is configured.
func (s *Session) recordStart(runID, kind string) {
	if s.cfg.Store == nil {
		return
	}
	if err := s.cfg.Store.RecordRunStart(runID, kind, time.Now()); err != nil {
		log.Printf("session: persist run start: %v", err)
	}
}

// recordTerminal persists a run's terminal state when a store is configured.
func (s *Session) recordTerminal(kind string, entry progress.Entry) {
	if s.cfg.Store == nil {
		return
	}
	s.mu.Lock()
	runID := s.runIDs[kind]
	s.mu.Unlock()
	if runID == "" {
		return
	}
	if err := s.cfg.Store.FinishRun(runID, string(entry.Status), entry.Error, time.Now()); err != nil {
		log.Printf("session: persist run finish: %v", err)
	}
}
