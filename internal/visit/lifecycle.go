package visit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/signscribe/internal/audio"
	"github.com/foxseedlab/signscribe/internal/note"
	"github.com/foxseedlab/signscribe/internal/repository"
	"github.com/foxseedlab/signscribe/internal/store"
	"github.com/foxseedlab/signscribe/internal/transcriber"
)

const (
	audioMixInterval  = 20 * time.Millisecond
	audioFrameBytes   = 960 * 2 * 2
	repositoryTimeout = 10 * time.Second
	exportTimeout     = time.Minute
)

func (m *Manager) handleCommand(cmd commandMessage) string {
	switch cmd.event.CommandName {
	case CommandStart:
		return m.startVisit(cmd)
	case CommandStop:
		if m.store.Status() != store.StatusRecording {
			return messageEphemeralNotRecording
		}
		channelID := m.current.channelID
		m.stopVisit(stopReasonManualSlash)
		return stopEphemeral(channelID)
	case CommandReset:
		return m.resetVisit()
	case CommandRecord:
		return m.recordFacts(cmd.event.Options[optionRecordText])
	case CommandNote:
		return m.presentIllness()
	case CommandExport:
		return m.requestExport()
	default:
		return messageEphemeralUnknownCommand
	}
}

func (m *Manager) startVisit(cmd commandMessage) string {
	if status := m.store.Status(); status != store.StatusIdle {
		slog.Info("visit start rejected", "status", status, "user_id", cmd.event.UserID)
		return messageEphemeralNotIdle
	}
	ref := &visitRef{
		id:          m.newID(),
		guildID:     cmd.event.GuildID,
		channelID:   cmd.voiceChannelID,
		clinicianID: cmd.event.UserID,
	}
	startedAt := m.now()
	slog.Info("start visit requested", "visit_id", ref.id, "guild_id", ref.guildID, "channel_id", ref.channelID, "user_id", ref.clinicianID)

	c, err := m.acquireCapture(ref, startedAt)
	if err != nil {
		slog.Error("failed to start visit", "error", err, "visit_id", ref.id)
		return messageEphemeralStartFailed
	}
	if err := m.store.StartVisit(startedAt); err != nil {
		slog.Error("store refused to start visit", "error", err, "visit_id", ref.id)
		m.capture = c
		m.releaseCapture()
		m.discardInRepository(ref.id)
		return messageEphemeralStartFailed
	}
	m.current = ref
	m.capture = c

	m.cooldown.Clear()
	m.gestures.Resume(startedAt)
	m.spatial.Resume(startedAt)
	m.assembler.Begin(startedAt)

	visitID := ref.id
	c.timer = time.AfterFunc(time.Duration(m.cfg.MaxVisitDurationMin)*time.Minute, func() {
		m.send(context.Background(), maxDurationMessage{visitID: visitID})
	})
	m.startAudioPipeline(visitID, c)

	m.post(ref.channelID, messageStartChannelTitle+"\n"+messageStartChannelHint)
	slog.Info("visit started", "visit_id", ref.id, "started_at", startedAt)
	return startEphemeral(ref.channelID)
}

// acquireCapture joins the voice channel, creates the visit row and opens the transcriber stream.
// Anything acquired is released again when a later step fails.
func (m *Manager) acquireCapture(ref *visitRef, startedAt time.Time) (*capture, error) {
	ctx, cancel := context.WithTimeout(context.Background(), repositoryTimeout)
	defer cancel()

	orphan, err := m.repo.GetRecordingVisitByChannel(ctx, ref.guildID, ref.channelID)
	if err != nil {
		return nil, fmt.Errorf("query recording visit: %w", err)
	}
	if orphan != nil {
		slog.Warn("found orphan recording visit in repository; completing it", "visit_id", orphan.ID, "channel_id", ref.channelID)
		if err := m.repo.CompleteVisit(ctx, repository.CompleteVisitInput{VisitID: orphan.ID, EndedAt: startedAt}); err != nil {
			return nil, fmt.Errorf("complete orphan visit %s: %w", orphan.ID, err)
		}
	}

	voice, err := m.discord.JoinVoiceChannel(ref.guildID, ref.channelID)
	if err != nil {
		return nil, fmt.Errorf("join voice channel: %w", err)
	}
	if _, err := m.repo.CreateVisit(ctx, repository.CreateVisitInput{
		VisitID:   ref.id,
		GuildID:   ref.guildID,
		ChannelID: ref.channelID,
		StartedAt: startedAt,
	}); err != nil {
		_ = voice.Disconnect()
		return nil, fmt.Errorf("create visit: %w", err)
	}

	mixer := m.newMixer(ref.clinicianID)
	streamCtx, cancelStream := context.WithCancel(context.Background())
	receiver := &resultReceiver{manager: m, visitID: ref.id, ctx: streamCtx}
	writer, err := m.transcriber.StartStreaming(streamCtx, ref.id, m.cfg.DefaultTranscribeLanguage, receiver)
	if err != nil {
		cancelStream()
		mixer.Close()
		_ = voice.Disconnect()
		m.discardInRepository(ref.id)
		return nil, fmt.Errorf("start transcriber stream: %w", err)
	}
	slog.Info("visit capture acquired", "visit_id", ref.id, "channel_id", ref.channelID)
	return &capture{voice: voice, mixer: mixer, writer: writer, ctx: streamCtx, cancel: cancelStream}, nil
}

func (m *Manager) startAudioPipeline(visitID string, c *capture) {
	var receivedOpusPackets atomic.Int64
	go c.voice.ReceiveAudio(func(userID string, opusPacket []byte) {
		n := receivedOpusPackets.Add(1)
		if n == 1 || n%500 == 0 {
			slog.Debug("received opus packet", "visit_id", visitID, "user_id", userID, "packet_bytes", len(opusPacket), "total_packets", n)
		}
		c.mixer.WriteOpusPacket(userID, opusPacket)
	})
	m.background.Go(func() {
		streamMixedAudio(c.ctx, visitID, c.mixer, c.writer, &receivedOpusPackets)
	})
}

func streamMixedAudio(ctx context.Context, visitID string, mixer audio.Mixer, writer transcriber.StreamWriter, receivedOpusPackets *atomic.Int64) {
	ticker := time.NewTicker(audioMixInterval)
	statsTicker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer statsTicker.Stop()
	buf := make([]byte, audioFrameBytes)
	var (
		mixedFrames int64
		zeroFrames  int64
		writeFrames int64
	)
	logStats := func(msg string) {
		slog.Info(msg,
			"visit_id", visitID,
			"received_opus_packets", receivedOpusPackets.Load(),
			"mixed_frames", mixedFrames,
			"zero_frames", zeroFrames,
			"written_frames", writeFrames)
	}
	for {
		select {
		case <-ctx.Done():
			logStats("audio mixer loop stopped")
			return
		case <-statsTicker.C:
			logStats("audio pipeline stats")
		case <-ticker.C:
			n, err := mixer.ReadMixedPCM(buf)
			if err != nil {
				slog.Warn("failed to read mixed pcm", "error", err, "visit_id", visitID)
				continue
			}
			mixedFrames++
			if n == 0 {
				zeroFrames++
				continue
			}
			if err := writer.Write(buf[:n]); err != nil {
				if ctx.Err() == nil {
					slog.Error("failed to write pcm to transcriber stream", "error", err, "visit_id", visitID, "pcm_bytes", n)
				}
				return
			}
			writeFrames++
		}
	}
}

// stopVisit flushes the open transcript chunk, moves the store to review, releases the capture
// and exports the visit in the background.
func (m *Manager) stopVisit(reason string) {
	ref := *m.current
	now := m.now()
	startedAt := m.store.Visit().StartedAt
	if seg, ok := m.assembler.Complete(now, startedAt); ok {
		m.acceptSegment(seg)
	}
	m.assembler.Discard()
	m.gestures.Suspend()
	m.spatial.Suspend()
	if err := m.store.StopVisit(); err != nil {
		slog.Error("failed to move visit to review", "error", err, "visit_id", ref.id)
	}
	m.releaseCapture()
	m.post(ref.channelID, stopChannelMessage(reason))

	snap := m.store.Snapshot()
	slog.Info("visit stopped", "visit_id", ref.id, "reason", reason, "segments", len(snap.Segments), "entities", len(snap.Entities))
	m.background.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		m.exportVisit(ctx, ref, snap, now)
		if err := m.repo.CompleteVisit(ctx, repository.CompleteVisitInput{VisitID: ref.id, EndedAt: now}); err != nil {
			slog.Error("failed to complete visit", "error", err, "visit_id", ref.id)
		}
	})
}

func (m *Manager) releaseCapture() {
	c := m.capture
	if c == nil {
		return
	}
	m.capture = nil
	if c.timer != nil {
		c.timer.Stop()
	}
	c.cancel()
	if err := c.writer.Close(); err != nil {
		slog.Warn("failed to close transcriber stream", "error", err)
	}
	c.mixer.Close()
	if err := c.voice.Disconnect(); err != nil {
		slog.Warn("failed to disconnect voice", "error", err)
	}
}

func (m *Manager) resetVisit() string {
	status := m.store.Status()
	ref := m.current

	m.releaseCapture()
	m.cancelFollowup()
	m.followupCtx, m.cancelFollowup = context.WithCancel(context.Background())
	m.assembler.Discard()
	m.gestures.Suspend()
	m.spatial.Suspend()
	m.cooldown.Clear()
	m.store.Reset()
	m.current = nil

	if ref != nil && status == store.StatusRecording {
		m.discardInRepository(ref.id)
	}
	slog.Info("visit reset", "previous_status", status)
	return messageEphemeralResetDone
}

func (m *Manager) discardInRepository(visitID string) {
	m.background.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), repositoryTimeout)
		defer cancel()
		if err := m.repo.DiscardVisit(ctx, visitID); err != nil {
			slog.Error("failed to discard visit", "error", err, "visit_id", visitID)
		}
	})
}

// recordFacts appends text to the health record, or the captured facts when text is empty.
// Fact lines already in the record are not added twice.
func (m *Manager) recordFacts(text string) string {
	if m.current == nil {
		return messageEphemeralNoVisit
	}
	if text = strings.TrimSpace(text); text != "" {
		m.store.AppendHealthRecord(text)
		return recordEphemeral(len(strings.Split(text, "\n")))
	}

	snap := m.store.Snapshot()
	existing := make(map[string]struct{})
	for _, line := range strings.Split(snap.HealthRecord, "\n") {
		existing[strings.TrimSpace(line)] = struct{}{}
	}
	var fresh []string
	for _, line := range note.BuildRecordLines(snap.Entities, snap.Segments) {
		if _, ok := existing[line]; ok {
			continue
		}
		fresh = append(fresh, line)
	}
	if len(fresh) == 0 {
		return messageEphemeralNothingToRecord
	}
	m.store.AppendHealthRecord(strings.Join(fresh, "\n"))
	return recordEphemeral(len(fresh))
}

func (m *Manager) presentIllness() string {
	if m.current == nil {
		return messageEphemeralNoVisit
	}
	snap := m.store.Snapshot()
	lines := note.BuildHPILines(snap.Entities, snap.Segments)
	if len(lines) == 0 {
		return messageEphemeralNoHPI
	}
	return hpiEphemeral(lines)
}

func (m *Manager) requestExport() string {
	if m.current == nil {
		return messageEphemeralNoVisit
	}
	ref := *m.current
	snap := m.store.Snapshot()
	generatedAt := m.now()
	m.background.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		m.exportVisit(ctx, ref, snap, generatedAt)
	})
	return messageEphemeralExportQueued
}
