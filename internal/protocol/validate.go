package protocol

import (
	"fmt"

	"github.com/agentsessiond/agentsession/internal/apperror"
)

// Validate applies spec.md §4.1's numeric-bounds and field rules to an
// already-decoded message, reporting the first invalid field with a message
// naming the message type and the field (e.g.
// "set_config config.maxSteps must be number 1-1000").
func Validate(msg Message) *apperror.Error {
	switch m := msg.(type) {
	case *SetConfig:
		if m.Config.MaxSteps != nil {
			if *m.Config.MaxSteps < 1 || *m.Config.MaxSteps > 1000 {
				return fieldError("set_config", "config.maxSteps must be number 1-1000")
			}
		}
	case *GetMessages:
		if m.Offset < 0 {
			return fieldError("get_messages", "offset must be >= 0")
		}
		if m.Limit != 0 && m.Limit < 1 {
			return fieldError("get_messages", "limit must be >= 1")
		}
	case *ProviderAuthSetAPIKey:
		if len(m.APIKey) > 100_000 {
			return fieldError("provider_auth_set_api_key", "apiKey must be <= 100000 bytes")
		}
		if m.Provider == "" || m.MethodID == "" {
			return fieldError("provider_auth_set_api_key", "provider and methodId are required")
		}
	case *AskResponse:
		if m.Answer == "" {
			return fieldError("ask_response", "answer must not be empty")
		}
	case *UserMessage:
		if m.Text == "" {
			return fieldError("user_message", "text must not be empty")
		}
	}
	return nil
}

func fieldError(msgType, detail string) *apperror.Error {
	return apperror.New(apperror.SourceProtocol, apperror.CodeValidationFailed, fmt.Sprintf("%s %s", msgType, detail))
}
