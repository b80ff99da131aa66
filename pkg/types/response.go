// Package types holds the JSON envelopes shared by every HTTP response.
package types

// SuccessEnvelope wraps a 2xx payload as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a pkg/errors code. Details are only set for
// codes that allow them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps a failure as {"error": {...}}. Batch collection reuses
// APIError per item.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
