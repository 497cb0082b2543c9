package repository

import "time"

type VisitStatus string

const (
	VisitStatusRecording VisitStatus = "recording"
	VisitStatusCompleted VisitStatus = "completed"
	VisitStatusDiscarded VisitStatus = "discarded"
)

type Visit struct {
	ID           string
	GuildID      string
	ChannelID    string
	StartedAt    time.Time
	EndedAt      *time.Time
	Status       VisitStatus
	HealthRecord string
	SegmentCount int
	EntityCount  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
