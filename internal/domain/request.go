package domain

import (
	"bytes"
	"encoding/json"
)

// InvalidRequestMessage is returned to HTTP clients for any malformed conversion request.
const InvalidRequestMessage = "Invalid request. JSON data with 'html_content' is required."

// ConversionRequest is the JSON body of POST /generate-pdf.
type ConversionRequest struct {
	HTMLContent *string `json:"html_content"`
}

// ParseConversionRequest decodes body with decode (usually the app's JSON
// decoder) and checks that html_content is present and non-null. Any failure
// is a KindClient ConversionError.
func ParseConversionRequest(body []byte, decode func([]byte, interface{}) error) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", NewClientError(InvalidRequestMessage, ErrInvalidRequest)
	}
	if decode == nil {
		decode = json.Unmarshal
	}

	var req ConversionRequest
	if err := decode(trimmed, &req); err != nil {
		return "", NewClientError(InvalidRequestMessage, err)
	}
	if req.HTMLContent == nil {
		return "", NewClientError(InvalidRequestMessage, ErrInvalidRequest)
	}
	return *req.HTMLContent, nil
}
