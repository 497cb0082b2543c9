package visit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/signscribe/internal/audio"
	"github.com/foxseedlab/signscribe/internal/config"
	"github.com/foxseedlab/signscribe/internal/detector"
	"github.com/foxseedlab/signscribe/internal/discord"
	"github.com/foxseedlab/signscribe/internal/followup"
	"github.com/foxseedlab/signscribe/internal/recognizer"
	"github.com/foxseedlab/signscribe/internal/repository"
	"github.com/foxseedlab/signscribe/internal/store"
	"github.com/foxseedlab/signscribe/internal/transcriber"
	"github.com/foxseedlab/signscribe/internal/transcript"
	"github.com/foxseedlab/signscribe/internal/webhook"
	"github.com/google/uuid"
)

const (
	inboxSize  = 512
	outboxSize = 128
)

type Dependencies struct {
	Store       *store.Store
	Repository  repository.Repository
	Discord     discord.Client
	Transcriber transcriber.Transcriber
	Webhook     webhook.Sender
	Followup    followup.Client
	History     followup.HistoryLoader
	Frames      recognizer.FrameSource
	NewMixer    audio.MixerFactory
}

// Manager runs one visit at a time. Every recognizer callback and command becomes a message
// handled on the Run goroutine, which alone touches the detectors and the transcript assembler.
type Manager struct {
	cfg         *config.Config
	store       *store.Store
	repo        repository.Repository
	discord     discord.Client
	transcriber transcriber.Transcriber
	webhook     webhook.Sender
	followup    followup.Client
	history     followup.HistoryLoader
	frames      recognizer.FrameSource
	newMixer    audio.MixerFactory
	now         func() time.Time
	newID       func() string

	cooldown  *detector.Cooldown
	gestures  *detector.GestureDetector
	spatial   *detector.SpatialDetector
	assembler *transcript.Assembler

	inbox         chan any
	outbox        chan outgoing
	done          chan struct{}
	background    sync.WaitGroup
	droppedFrames atomic.Int64

	current        *visitRef
	capture        *capture
	followupCtx    context.Context
	cancelFollowup context.CancelFunc
}

// visitRef identifies the visit held by the store, from start until reset. Captions and
// exports go to the text chat of the voice channel the visit is recorded in.
type visitRef struct {
	id          string
	guildID     string
	channelID   string
	clinicianID string
}

// capture holds the resources acquired for recording. It only exists while recording.
type capture struct {
	voice  discord.VoiceConnection
	mixer  audio.Mixer
	writer transcriber.StreamWriter
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
}

func NewManager(cfg *config.Config, deps Dependencies) *Manager {
	st := deps.Store
	if st == nil {
		st = store.New()
	}
	cooldown := detector.NewCooldown(cfg.EmitCooldown)
	m := &Manager{
		cfg:         cfg,
		store:       st,
		repo:        deps.Repository,
		discord:     deps.Discord,
		transcriber: deps.Transcriber,
		webhook:     deps.Webhook,
		followup:    deps.Followup,
		history:     deps.History,
		frames:      deps.Frames,
		newMixer:    deps.NewMixer,
		now:         time.Now,
		newID:       uuid.NewString,
		cooldown:    cooldown,
		inbox:       make(chan any, inboxSize),
		outbox:      make(chan outgoing, outboxSize),
		done:        make(chan struct{}),
	}
	m.gestures = detector.NewGestureDetector(gestureConfig(cfg), cooldown, m.nextID)
	m.spatial = detector.NewSpatialDetector(spatialConfig(cfg), cooldown, m.nextID)
	m.assembler = transcript.NewAssembler(cfg.TranscriptFallbackConfidence, m.nextID)
	m.followupCtx, m.cancelFollowup = context.WithCancel(context.Background())
	return m
}

func (m *Manager) nextID() string {
	return m.newID()
}

func gestureConfig(cfg *config.Config) detector.GestureConfig {
	c := detector.DefaultGestureConfig()
	c.ScoreMin = cfg.GestureScoreMin
	c.RequiredStreak = cfg.GestureRequiredStreak
	c.StableFor = cfg.GestureStableFor
	return c
}

func spatialConfig(cfg *config.Config) detector.SpatialConfig {
	c := detector.DefaultSpatialConfig()
	c.MaxProximity = cfg.SpatialMaxProximity
	c.MinAlignment = cfg.SpatialMinAlignment
	c.HoldFor = cfg.SpatialHoldFor
	c.RequireIndexFingertip = cfg.SpatialRequireIndexFingertip
	c.Confidence = cfg.UnscoredConfidence
	return c
}

type commandMessage struct {
	event          discord.SlashCommandEvent
	voiceChannelID string
	reply          chan string
}

type gestureMessage struct {
	frame recognizer.GestureFrame
	at    time.Time
}

type poseMessage struct {
	frame recognizer.PoseFrame
	at    time.Time
}

type transcriptResultMessage struct {
	visitID string
	result  transcriber.Result
}

type utteranceEndMessage struct {
	visitID string
	at      time.Time
}

type streamErrorMessage struct {
	visitID string
	err     error
}

type maxDurationMessage struct {
	visitID string
}

// Run subscribes to the recognizer frames and handles messages until ctx is done. A visit that
// is still recording when ctx ends is stopped and exported before Run returns.
func (m *Manager) Run(ctx context.Context) error {
	outboxDone := make(chan struct{})
	go func() {
		defer close(outboxDone)
		m.deliverOutbox()
	}()

	frameCtx, cancelFrames := context.WithCancel(ctx)
	frameErr := make(chan error, 1)
	go func() {
		frameErr <- m.frames.Subscribe(frameCtx, m)
	}()

	err := m.loop(ctx, frameErr)
	close(m.done)
	cancelFrames()
	m.shutdown()
	close(m.outbox)
	<-outboxDone
	return err
}

func (m *Manager) loop(ctx context.Context, frameErr <-chan error) error {
	slog.Info("visit loop started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("visit loop stopping", "reason", ctx.Err())
			return nil
		case err := <-frameErr:
			if err != nil {
				slog.Error("recognizer frame source stopped", "error", err)
				return err
			}
			frameErr = nil
		case msg := <-m.inbox:
			m.handle(msg)
		}
	}
}

func (m *Manager) shutdown() {
	if m.store.Status() == store.StatusRecording {
		m.stopVisit(stopReasonServerClosed)
	}
	m.cancelFollowup()
	m.background.Wait()
	if dropped := m.droppedFrames.Load(); dropped > 0 {
		slog.Info("recognizer frames dropped while the loop was busy", "dropped_frames", dropped)
	}
}

func (m *Manager) handle(msg any) {
	switch msg := msg.(type) {
	case commandMessage:
		msg.reply <- m.handleCommand(msg)
	case gestureMessage:
		if em, ok := m.gestures.Observe(msg.frame, msg.at); ok {
			m.acceptEmission(em)
		}
	case poseMessage:
		if em, ok := m.spatial.Observe(msg.frame, msg.at); ok {
			m.acceptEmission(em)
		}
	case transcriptResultMessage:
		if m.recording(msg.visitID) {
			m.assembler.Add(msg.result)
		}
	case utteranceEndMessage:
		if m.recording(msg.visitID) {
			m.completeUtterance(msg.at)
		}
	case streamErrorMessage:
		m.handleStreamError(msg)
	case maxDurationMessage:
		if m.recording(msg.visitID) {
			slog.Info("visit reached max duration", "visit_id", msg.visitID, "max_duration_min", m.cfg.MaxVisitDurationMin)
			m.stopVisit(stopReasonMaxDuration)
		}
	default:
		slog.Warn("ignoring unknown visit message", "type", fmt.Sprintf("%T", msg))
	}
}

// recording reports whether visitID is the visit currently being recorded.
func (m *Manager) recording(visitID string) bool {
	return m.current != nil && m.current.id == visitID && m.store.Status() == store.StatusRecording
}

// send blocks until the loop accepts msg, ctx ends or the loop has exited.
func (m *Manager) send(ctx context.Context, msg any) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	case <-m.done:
		return false
	}
}

func (m *Manager) trySend(msg any) {
	select {
	case m.inbox <- msg:
	default:
		if n := m.droppedFrames.Add(1); n == 1 || n%500 == 0 {
			slog.Warn("visit inbox full; dropping recognizer frame", "dropped_frames", n)
		}
	}
}

func (m *Manager) OnGestureFrame(frame recognizer.GestureFrame) {
	m.trySend(gestureMessage{frame: frame, at: m.now()})
}

func (m *Manager) OnPoseFrame(frame recognizer.PoseFrame) {
	m.trySend(poseMessage{frame: frame, at: m.now()})
}

// HandleSlashCommand resolves what needs Discord state, then hands the command to the loop and
// answers the interaction with its reply.
func (m *Manager) HandleSlashCommand(event discord.SlashCommandEvent) {
	slog.Info("slash command received", "guild_id", event.GuildID, "channel_id", event.ChannelID, "command", event.CommandName, "user_id", event.UserID)
	respond := func(content string) {
		if event.RespondEphemeral == nil {
			return
		}
		if err := event.RespondEphemeral(content); err != nil {
			slog.Error("failed to respond to slash command", "error", err, "command", event.CommandName)
		}
	}
	if event.GuildID != m.cfg.DiscordGuildID {
		respond(messageEphemeralWrongGuild)
		return
	}

	cmd := commandMessage{event: event, reply: make(chan string, 1)}
	if event.CommandName == CommandStart {
		channelID, err := m.discord.GetUserVoiceChannelID(event.GuildID, event.UserID)
		if err != nil {
			slog.Error("failed to resolve user voice channel", "error", err, "user_id", event.UserID)
			respond(messageEphemeralVoiceLookupFailed)
			return
		}
		if channelID == "" {
			respond(messageEphemeralJoinVCFirst)
			return
		}
		cmd.voiceChannelID = channelID
	}

	if !m.send(context.Background(), cmd) {
		respond(messageEphemeralShuttingDown)
		return
	}
	select {
	case reply := <-cmd.reply:
		respond(reply)
	case <-m.done:
		respond(messageEphemeralShuttingDown)
	}
}

type resultReceiver struct {
	manager *Manager
	visitID string
	ctx     context.Context
}

func (r *resultReceiver) OnResult(result transcriber.Result) {
	r.manager.send(r.ctx, transcriptResultMessage{visitID: r.visitID, result: result})
}

func (r *resultReceiver) OnUtteranceEnd() {
	r.manager.send(r.ctx, utteranceEndMessage{visitID: r.visitID, at: r.manager.now()})
}

func (r *resultReceiver) OnError(err error) {
	r.manager.send(r.ctx, streamErrorMessage{visitID: r.visitID, err: err})
}

func (m *Manager) handleStreamError(msg streamErrorMessage) {
	if errors.Is(msg.err, context.Canceled) || !m.recording(msg.visitID) {
		slog.Info("transcriber stream closed", "error", msg.err, "visit_id", msg.visitID)
		return
	}
	slog.Error("transcriber stream error", "error", msg.err, "visit_id", msg.visitID)
	m.post(m.current.channelID, messageTranscriberLost)
}
