package middleware

import (
	"errors"

	"github.com/google/uuid"

	"github.com/capitalize-ai/sqlchat/internal/model"
)

// ValidateChatRequest validates a chat submission.
func ValidateChatRequest(req model.ChatRequest) error {
	return req.Validate()
}

// ValidateStreamID validates a stream id taken from the URL.
func ValidateStreamID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid stream ID format")
	}
	return nil
}
