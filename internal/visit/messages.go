package visit

import (
	"fmt"
	"strings"

	"github.com/foxseedlab/signscribe/internal/discord"
	"github.com/foxseedlab/signscribe/internal/followup"
)

const (
	CommandStart  = "visit-start"
	CommandStop   = "visit-stop"
	CommandReset  = "visit-reset"
	CommandRecord = "visit-record"
	CommandNote   = "visit-note"
	CommandExport = "visit-export"

	optionRecordText = "text"
)

const (
	stopReasonManualSlash  = "manual_slash"
	stopReasonMaxDuration  = "max_duration"
	stopReasonServerClosed = "server_closed"
)

const (
	messageEphemeralWrongGuild        = ":warning: **This command cannot be used in this server.**"
	messageEphemeralUnknownCommand    = ":warning: **Unknown command.**"
	messageEphemeralVoiceLookupFailed = ":warning: **Could not check your voice channel.**"
	messageEphemeralJoinVCFirst       = ":warning: **Join the exam room voice channel first.**"
	messageEphemeralNotIdle           = ":warning: **A visit is already open. Stop it and run /visit-reset before starting a new one.**"
	messageEphemeralStartFailed       = ":warning: **Could not start the visit.**"
	messageEphemeralNotRecording      = ":warning: **No visit is being recorded.**"
	messageEphemeralNoVisit           = ":warning: **There is no visit to work with. Start one with /visit-start.**"
	messageEphemeralShuttingDown      = ":warning: **The capture service is shutting down.**"
	messageEphemeralNothingToRecord   = "-# No new facts to add to the health record."
	messageEphemeralNoHPI             = "-# No history of present illness has been captured yet."
	messageEphemeralResetDone         = ":wastebasket: **The visit was cleared.**"
	messageEphemeralExportQueued      = ":outbox_tray: **Export is on its way to this channel.**"

	messageStartChannelTitle = ":red_circle: **Visit recording started.**"
	messageStartChannelHint  = "-# Captions for signed and spoken turns will appear here. /visit-stop ends the recording."
	messageStopChannelTitle  = ":stop_button: **Visit recording stopped.**"
	messageStopChannelHint   = "-# The record stays open for review. /visit-reset clears it."

	messageExportAttachmentTitle = ":page_facing_up: **Visit export**"
	messageFollowupUnavailable   = ":warning: Follow-up suggestions are unavailable right now. Capture continues."
	messageTranscriberLost       = ":warning: Speech captioning stopped unexpectedly. Signed capture continues."
)

func startEphemeral(voiceChannelID string) string {
	return fmt.Sprintf(":red_circle: **Recording the visit in** <#%s>.\n%s", voiceChannelID, messageStartChannelHint)
}

func stopEphemeral(voiceChannelID string) string {
	return fmt.Sprintf(":stop_button: **Stopped recording in** <#%s>.\n%s", voiceChannelID, messageStopChannelHint)
}

func stopChannelMessage(reason string) string {
	return strings.Join([]string{messageStopChannelTitle, "-# " + stopReasonDetail(reason), messageStopChannelHint}, "\n")
}

func stopReasonDetail(reason string) string {
	switch reason {
	case stopReasonManualSlash:
		return "Stopped with /visit-stop."
	case stopReasonMaxDuration:
		return "The maximum visit length was reached."
	case stopReasonServerClosed:
		return "The capture service was shut down."
	default:
		return "Stopped for an unknown reason."
	}
}

func recordEphemeral(lines int) string {
	if lines == 1 {
		return ":memo: **Added 1 line to the health record.**"
	}
	return fmt.Sprintf(":memo: **Added %d lines to the health record.**", lines)
}

func hpiEphemeral(lines []string) string {
	return "**History of present illness**\n" + strings.Join(lines, "\n")
}

func followupMessage(symptom string, q *followup.Question) string {
	msg := fmt.Sprintf(":speech_balloon: **Suggested follow-up for %s:** %s", symptom, q.Question)
	if q.Why != "" {
		msg += "\n-# " + q.Why
	}
	return msg
}

// SlashCommandDefinitions lists the commands the bot registers in the configured guild.
func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{Name: CommandStart, Description: "Start recording a visit in your voice channel."},
		{Name: CommandStop, Description: "Stop recording and keep the visit for review."},
		{Name: CommandReset, Description: "Discard the current visit."},
		{
			Name:        CommandRecord,
			Description: "Add text, or the captured facts, to the health record.",
			Options: []discord.SlashCommandOption{
				{Name: optionRecordText, Description: "Text to append. Leave empty to add the captured facts."},
			},
		},
		{Name: CommandNote, Description: "Show the history of present illness built so far."},
		{Name: CommandExport, Description: "Export the visit record to this channel and the archive webhook."},
	}
}
