package router

import (
	"encoding/json"
	"net/http"
)

// Result is a success payload with an explicit status or message.
type Result struct {
	Status  int
	Data    any
	Message string
}

func OK(data any) *Result { return &Result{Status: http.StatusOK, Data: data} }

func Created(data any, message string) *Result {
	return &Result{Status: http.StatusCreated, Data: data, Message: message}
}

func NoContent() *Result { return &Result{Status: http.StatusNoContent} }

func WithMessage(message string, data any) *Result {
	return &Result{Status: http.StatusOK, Data: data, Message: message}
}

// Raw bypasses the envelope and is written as-is.
type Raw struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
}

// RawJSON marshals v without the envelope.
func RawJSON(status int, v any) (*Raw, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Raw{Status: status, ContentType: "application/json", Body: b}, nil
}

// Envelope is the JSON body of every non-raw response. Data is omitted
// only when nil; empty lists and zero values are still written.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	type envelope struct {
		Success bool                `json:"success"`
		Message string              `json:"message,omitempty"`
		Data    *json.RawMessage    `json:"data,omitempty"`
		Errors  map[string][]string `json:"errors,omitempty"`
	}
	out := envelope{Success: e.Success, Message: e.Message, Errors: e.Errors}
	if e.Data != nil {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		raw := json.RawMessage(b)
		out.Data = &raw
	}
	return json.Marshal(out)
}

// Response is what the transport writes. A nil Body writes no body.
type Response struct {
	Status      int
	Header      http.Header
	ContentType string
	Body        []byte
}
