package bootstrap

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// error codes shared by all error envelopes
const (
	ErrorCodeValidation              = "validation_error"
	ErrorCodeAuth                    = "auth_error"
	ErrorCodeDuplicateRequest        = "duplicate_request"
	ErrorCodeCollaboratorUnavailable = "collaborator_unavailable"
)

// ResponseEnvelope is the wire frame around every bootstrap response. A
// success envelope carries signature and data, an error envelope carries
// errorCode and optionally details and a retry hint. The two shapes are
// mutually exclusive, use NewSuccessEnvelope and NewErrorEnvelope.
type ResponseEnvelope struct {
	Code         int             `json:"code"`
	Message      string          `json:"message"`
	Timestamp    int64           `json:"timestamp"`
	Signature    string          `json:"signature,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorDetails string          `json:"errorDetails,omitempty"`
	RetryAfterMs int             `json:"retryAfterMs,omitempty"`
}

// Signer computes the integrity signature over the serialized data payload.
// This is integrity for the device, not secrecy, the device holds the same
// key from its factory provisioning.
type Signer struct {
	key []byte
}

// NewSigner returns a signer for the given key.
func NewSigner(key []byte) *Signer {
	if len(key) == 0 {
		panic("signing key is missing")
	}
	return &Signer{key: key}
}

// Sign returns the hex encoded HMAC-SHA256 of data.
func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches data. Devices run the equivalent
// check, this implementation exists for tests and tooling.
func (s *Signer) Verify(data []byte, signature string) bool {
	expected, err := hex.DecodeString(s.Sign(data))
	if err != nil {
		return false
	}
	actual, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, actual)
}

// NewSuccessEnvelope serializes data, signs it and wraps it.
func NewSuccessEnvelope(signer *Signer, data interface{}, now time.Time) (*ResponseEnvelope, error) {
	serialized, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &ResponseEnvelope{
		Code:      http.StatusOK,
		Message:   "ok",
		Timestamp: now.Unix(),
		Signature: signer.Sign(serialized),
		Data:      serialized,
	}, nil
}

// NewErrorEnvelope wraps a failure. Error envelopes never carry data.
func NewErrorEnvelope(code int, message, errorCode string, now time.Time) *ResponseEnvelope {
	return &ResponseEnvelope{
		Code:      code,
		Message:   message,
		Timestamp: now.Unix(),
		ErrorCode: errorCode,
	}
}

// WithDetails adds field detail to an error envelope.
func (e *ResponseEnvelope) WithDetails(details string) *ResponseEnvelope {
	e.ErrorDetails = details
	return e
}

// WithRetryAfter adds a retry hint to an error envelope.
func (e *ResponseEnvelope) WithRetryAfter(ms int) *ResponseEnvelope {
	e.RetryAfterMs = ms
	return e
}
