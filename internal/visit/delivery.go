package visit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/signscribe/internal/detector"
	"github.com/foxseedlab/signscribe/internal/discord"
	"github.com/foxseedlab/signscribe/internal/repository"
	"github.com/foxseedlab/signscribe/internal/segment"
	"github.com/foxseedlab/signscribe/internal/store"
)

var emptyHistory = json.RawMessage(`{}`)

func (m *Manager) acceptEmission(em detector.Emission) {
	if m.current == nil {
		return
	}
	stored, err := m.store.AddEmission(em.Segment, []segment.Entity{em.Entity})
	if err != nil {
		slog.Warn("rejected detector emission", "error", err, "segment_id", em.Segment.ID)
		return
	}
	if !stored {
		slog.Debug("duplicate detector emission ignored", "segment_id", em.Segment.ID)
		return
	}
	slog.Info("signed segment captured",
		"visit_id", m.current.id,
		"segment_id", em.Segment.ID,
		"entity_type", em.Entity.Type,
		"t_start_ms", em.Segment.TStart,
		"confidence", em.Segment.Confidence)
	m.postCaption(em.Segment)
	if em.Entity.Type == segment.EntityTypeSymptom {
		m.requestFollowup(m.current.channelID, em.Entity)
	}
}

func (m *Manager) completeUtterance(at time.Time) {
	startedAt := m.store.Visit().StartedAt
	seg, ok := m.assembler.Complete(at, startedAt)
	m.assembler.Begin(at)
	if ok {
		m.acceptSegment(seg)
	}
}

func (m *Manager) acceptSegment(seg segment.Segment) {
	stored, err := m.store.AddSegment(seg)
	if err != nil {
		slog.Warn("rejected transcript segment", "error", err, "segment_id", seg.ID)
		return
	}
	if !stored {
		return
	}
	slog.Info("spoken segment captured",
		"visit_id", m.current.id,
		"segment_id", seg.ID,
		"t_start_ms", seg.TStart,
		"t_end_ms", seg.TEnd,
		"confidence", seg.Confidence)
	m.postCaption(seg)
}

func (m *Manager) postCaption(seg segment.Segment) {
	run := captionRun(m.store.Segments(), seg, m.cfg.CoalesceWindow)
	m.post(m.current.channelID, formatCaption(run))
}

// requestFollowup asks the follow-up service about symptom in the background. A reset cancels
// requests still in flight; failures are reported once and never retried.
func (m *Manager) requestFollowup(channelID string, symptom segment.Entity) {
	if m.followup == nil || !m.cfg.FollowupEnabled() {
		return
	}
	parent := m.followupCtx
	m.background.Go(func() {
		ctx := parent
		if m.cfg.FollowupTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(parent, m.cfg.FollowupTimeout)
			defer cancel()
		}

		q, err := m.followup.RequestFollowup(ctx, symptom.Text, m.loadHistory(ctx))
		if parent.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("follow-up request failed", "error", err, "entity_id", symptom.ID)
			m.post(channelID, messageFollowupUnavailable)
			return
		}
		if q == nil {
			slog.Debug("follow-up service had no question", "entity_id", symptom.ID)
			return
		}
		m.post(channelID, followupMessage(symptom.Text, q))
	})
}

func (m *Manager) loadHistory(ctx context.Context) json.RawMessage {
	if m.history == nil {
		return emptyHistory
	}
	history, err := m.history.LoadHistory(ctx)
	if err != nil {
		slog.Warn("failed to load patient history; asking without it", "error", err)
		return emptyHistory
	}
	return history
}

// exportVisit archives the snapshot, posts it to the channel and hands it to the webhook.
// Each destination fails on its own.
func (m *Manager) exportVisit(ctx context.Context, ref visitRef, snap store.Snapshot, generatedAt time.Time) {
	payload := buildExportPayload(ref.id, snap, generatedAt, m.cfg.TurnGap)
	body, err := marshalExport(payload)
	if err != nil {
		slog.Error("failed to build export", "error", err, "visit_id", ref.id)
		return
	}

	if err := m.repo.ArchiveVisit(ctx, repository.ArchiveVisitInput{
		VisitID:      ref.id,
		HealthRecord: snap.HealthRecord,
		Segments:     payload.Segments,
		Entities:     payload.Entities,
		ExportJSON:   body,
	}); err != nil {
		slog.Error("failed to archive visit", "error", err, "visit_id", ref.id)
	}

	text := buildExportText(payload, snap.Visit.StartedAt, generatedAt, m.cfg.ExportTimezone, m.cfg.Location(), m.cfg.TurnGap)
	m.enqueue(outgoing{
		channelID: ref.channelID,
		content:   messageExportAttachmentTitle,
		files: []discord.File{
			{Name: fmt.Sprintf("visit-%s.json", ref.id), ContentType: "application/json", Body: body},
			{Name: fmt.Sprintf("visit-%s.txt", ref.id), ContentType: "text/plain; charset=utf-8", Body: text},
		},
	})

	if err := m.webhook.SendExport(ctx, payload); err != nil {
		slog.Error("failed to send export webhook", "error", err, "visit_id", ref.id)
		return
	}
	slog.Info("visit exported", "visit_id", ref.id, "segments", len(payload.Segments), "entities", len(payload.Entities))
}

type outgoing struct {
	channelID string
	content   string
	files     []discord.File
}

func (m *Manager) post(channelID, content string) {
	m.enqueue(outgoing{channelID: channelID, content: content})
}

// enqueue keeps channel posts in order. Plain posts are dropped when the outbox is full;
// attachments wait for room.
func (m *Manager) enqueue(o outgoing) {
	if o.channelID == "" {
		return
	}
	if len(o.files) > 0 {
		m.outbox <- o
		return
	}
	select {
	case m.outbox <- o:
	default:
		slog.Warn("outbox full; dropping channel message", "channel_id", o.channelID)
	}
}

func (m *Manager) deliverOutbox() {
	for o := range m.outbox {
		var err error
		if len(o.files) > 0 {
			err = m.discord.SendChannelMessageWithFile(discord.FileMessage{ChannelID: o.channelID, Content: o.content, Files: o.files})
		} else {
			err = m.discord.SendChannelMessage(o.channelID, o.content)
		}
		if err != nil {
			slog.Error("failed to post channel message", "error", err, "channel_id", o.channelID)
		}
	}
}
