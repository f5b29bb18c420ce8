package client

import (
	"encoding/json"

	"google.golang.org/api/googleapi"
)

// DefaultErrorMessage understands the common error envelopes used by the
// Graph API, LinkedIn and TikTok.
func DefaultErrorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &flat) == nil {
		switch {
		case flat.Message != "":
			return flat.Message
		case flat.ErrorDescription != "":
			return flat.ErrorDescription
		case flat.Error != "":
			return flat.Error
		}
	}
	return ""
}

// GoogleErrorMessage decodes the {"error": {...}} envelope returned by
// Google APIs.
func GoogleErrorMessage(body []byte) string {
	var envelope struct {
		Error *googleapi.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return DefaultErrorMessage(body)
	}
	msg := envelope.Error.Message
	if msg == "" && len(envelope.Error.Errors) > 0 {
		msg = envelope.Error.Errors[0].Message
	}
	return msg
}
