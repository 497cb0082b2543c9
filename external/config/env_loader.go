package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/signscribe/internal/config"
)

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	MaxVisitDurationMin        int    `env:"MAX_VISIT_DURATION_MIN" envDefault:"90"`
	DatabaseURL                string `env:"DATABASE_URL,required"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"us"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	DiscordToken               string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID             string `env:"DISCORD_GUILD_ID,required"`
	ExportTimezone             string `env:"EXPORT_TIMEZONE" envDefault:"UTC"`
	ExportWebhookURL           string `env:"EXPORT_WEBHOOK_URL"`

	MQTTBrokerURL    string `env:"MQTT_BROKER_URL,required"`
	MQTTClientID     string `env:"MQTT_CLIENT_ID" envDefault:"signscribe"`
	MQTTUsername     string `env:"MQTT_USERNAME"`
	MQTTPassword     string `env:"MQTT_PASSWORD"`
	MQTTGestureTopic string `env:"MQTT_GESTURE_TOPIC" envDefault:"recognizer/gestures"`
	MQTTPoseTopic    string `env:"MQTT_POSE_TOPIC" envDefault:"recognizer/pose"`

	FollowupBaseURL    string        `env:"FOLLOWUP_BASE_URL"`
	FollowupTimeout    time.Duration `env:"FOLLOWUP_TIMEOUT" envDefault:"15s"`
	PatientHistoryPath string        `env:"PATIENT_HISTORY_PATH"`
	PatientHistoryTTL  time.Duration `env:"PATIENT_HISTORY_TTL" envDefault:"10m"`

	GestureScoreMin              float64       `env:"GESTURE_SCORE_MIN" envDefault:"0.80"`
	GestureRequiredStreak        int           `env:"GESTURE_REQUIRED_STREAK" envDefault:"6"`
	GestureStableFor             time.Duration `env:"GESTURE_STABLE_FOR" envDefault:"600ms"`
	EmitCooldown                 time.Duration `env:"EMIT_COOLDOWN" envDefault:"1500ms"`
	SpatialMaxProximity          float64       `env:"SPATIAL_MAX_PROXIMITY" envDefault:"0.12"`
	SpatialMinAlignment          float64       `env:"SPATIAL_MIN_ALIGNMENT" envDefault:"0.6"`
	SpatialHoldFor               time.Duration `env:"SPATIAL_HOLD_FOR" envDefault:"300ms"`
	SpatialRequireIndexFingertip bool          `env:"SPATIAL_REQUIRE_INDEX_FINGERTIP" envDefault:"true"`
	CoalesceWindow               time.Duration `env:"COALESCE_WINDOW" envDefault:"300ms"`
	TurnGap                      time.Duration `env:"TURN_GAP" envDefault:"1500ms"`
	TranscriptFallbackConfidence float64       `env:"TRANSCRIPT_FALLBACK_CONFIDENCE" envDefault:"0.85"`
	UnscoredConfidence           float64       `env:"UNSCORED_CONFIDENCE" envDefault:"0.99"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		MaxVisitDurationMin:        raw.MaxVisitDurationMin,
		DatabaseURL:                raw.DatabaseURL,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DiscordToken:               raw.DiscordToken,
		DiscordGuildID:             raw.DiscordGuildID,
		ExportTimezone:             raw.ExportTimezone,
		ExportWebhookURL:           raw.ExportWebhookURL,

		MQTTBrokerURL:    raw.MQTTBrokerURL,
		MQTTClientID:     raw.MQTTClientID,
		MQTTUsername:     raw.MQTTUsername,
		MQTTPassword:     raw.MQTTPassword,
		MQTTGestureTopic: raw.MQTTGestureTopic,
		MQTTPoseTopic:    raw.MQTTPoseTopic,

		FollowupBaseURL:    raw.FollowupBaseURL,
		FollowupTimeout:    raw.FollowupTimeout,
		PatientHistoryPath: raw.PatientHistoryPath,
		PatientHistoryTTL:  raw.PatientHistoryTTL,

		GestureScoreMin:              raw.GestureScoreMin,
		GestureRequiredStreak:        raw.GestureRequiredStreak,
		GestureStableFor:             raw.GestureStableFor,
		EmitCooldown:                 raw.EmitCooldown,
		SpatialMaxProximity:          raw.SpatialMaxProximity,
		SpatialMinAlignment:          raw.SpatialMinAlignment,
		SpatialHoldFor:               raw.SpatialHoldFor,
		SpatialRequireIndexFingertip: raw.SpatialRequireIndexFingertip,
		CoalesceWindow:               raw.CoalesceWindow,
		TurnGap:                      raw.TurnGap,
		TranscriptFallbackConfidence: raw.TranscriptFallbackConfidence,
		UnscoredConfidence:           raw.UnscoredConfidence,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
