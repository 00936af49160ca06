package usecase

import (
	"jobsync-client/internal/domain/model"
)

// UserTurnSuffix is appended to a placeholder id to derive the id of the
// synthesized user message that precedes it.
const UserTurnSuffix = ":user"

// Compose merges a pending job's placeholder into a message list. It has no
// side effects and never modifies messages; calling it again on its own output
// returns an equal list.
func Compose(messages []model.ChatMessage, job *model.PendingJobRecord, activeSessionID, placeholder string) []model.ChatMessage {
	if job == nil || job.SessionID != activeSessionID {
		return messages
	}
	for _, m := range messages {
		if m.ID == job.PlaceholderID {
			return messages
		}
	}

	out := make([]model.ChatMessage, len(messages), len(messages)+2)
	copy(out, messages)
	if !hasUserText(messages, job.UserText) {
		out = append(out, model.ChatMessage{
			ID:        job.PlaceholderID + UserTurnSuffix,
			SessionID: job.SessionID,
			Role:      model.RoleUser,
			Content:   job.UserText,
			Timestamp: job.CreatedAt,
		})
	}
	return append(out, model.ChatMessage{
		ID:        job.PlaceholderID,
		SessionID: job.SessionID,
		Role:      model.RoleAssistant,
		Content:   placeholder,
		Pending:   true,
		Timestamp: job.CreatedAt,
	})
}

func hasUserText(messages []model.ChatMessage, text string) bool {
	for _, m := range messages {
		if m.Role == model.RoleUser && m.Content == text {
			return true
		}
	}
	return false
}
