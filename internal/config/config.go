package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                        string
	DefaultTranscribeLanguage  string
	MaxVisitDurationMin        int
	DatabaseURL                string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	DiscordToken               string
	DiscordGuildID             string
	ExportTimezone             string
	ExportWebhookURL           string

	MQTTBrokerURL    string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTGestureTopic string
	MQTTPoseTopic    string

	FollowupBaseURL    string
	FollowupTimeout    time.Duration
	PatientHistoryPath string
	PatientHistoryTTL  time.Duration

	GestureScoreMin              float64
	GestureRequiredStreak        int
	GestureStableFor             time.Duration
	EmitCooldown                 time.Duration
	SpatialMaxProximity          float64
	SpatialMinAlignment          float64
	SpatialHoldFor               time.Duration
	SpatialRequireIndexFingertip bool
	CoalesceWindow               time.Duration
	TurnGap                      time.Duration
	TranscriptFallbackConfidence float64
	UnscoredConfidence           float64
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.MaxVisitDurationMin <= 0 {
		return fmt.Errorf("MAX_VISIT_DURATION_MIN must be positive, got %d", c.MaxVisitDurationMin)
	}
	if _, err := time.LoadLocation(c.ExportTimezone); err != nil {
		return fmt.Errorf("EXPORT_TIMEZONE is invalid: %w", err)
	}
	if c.GestureRequiredStreak < 1 {
		return fmt.Errorf("GESTURE_REQUIRED_STREAK must be at least 1, got %d", c.GestureRequiredStreak)
	}
	for _, r := range c.unitIntervalChecks() {
		if r.value < 0 || r.value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", r.name, r.value)
		}
	}
	for _, d := range c.durationChecks() {
		if d.value < 0 {
			return fmt.Errorf("%s must not be negative, got %s", d.name, d.value)
		}
	}
	if c.SpatialMaxProximity <= 0 {
		return fmt.Errorf("SPATIAL_MAX_PROXIMITY must be positive, got %v", c.SpatialMaxProximity)
	}
	if c.SpatialMinAlignment < -1 || c.SpatialMinAlignment > 1 {
		return fmt.Errorf("SPATIAL_MIN_ALIGNMENT must be within [-1,1], got %v", c.SpatialMinAlignment)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "EXPORT_TIMEZONE", value: c.ExportTimezone},
		{name: "MQTT_BROKER_URL", value: c.MQTTBrokerURL},
		{name: "MQTT_GESTURE_TOPIC", value: c.MQTTGestureTopic},
		{name: "MQTT_POSE_TOPIC", value: c.MQTTPoseTopic},
	}
}

type floatField struct {
	name  string
	value float64
}

func (c *Config) unitIntervalChecks() []floatField {
	return []floatField{
		{name: "GESTURE_SCORE_MIN", value: c.GestureScoreMin},
		{name: "TRANSCRIPT_FALLBACK_CONFIDENCE", value: c.TranscriptFallbackConfidence},
		{name: "UNSCORED_CONFIDENCE", value: c.UnscoredConfidence},
	}
}

type durationField struct {
	name  string
	value time.Duration
}

func (c *Config) durationChecks() []durationField {
	return []durationField{
		{name: "GESTURE_STABLE_FOR", value: c.GestureStableFor},
		{name: "EMIT_COOLDOWN", value: c.EmitCooldown},
		{name: "SPATIAL_HOLD_FOR", value: c.SpatialHoldFor},
		{name: "COALESCE_WINDOW", value: c.CoalesceWindow},
		{name: "TURN_GAP", value: c.TurnGap},
		{name: "FOLLOWUP_TIMEOUT", value: c.FollowupTimeout},
		{name: "PATIENT_HISTORY_TTL", value: c.PatientHistoryTTL},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) FollowupEnabled() bool {
	return c.FollowupBaseURL != ""
}

// Location returns the export timezone, falling back to UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ExportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
