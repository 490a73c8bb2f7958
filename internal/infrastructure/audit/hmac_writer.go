package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// SignEvent returns the Base64 HMAC-SHA256 of the event's JSON form with
// the Signature field cleared.
func SignEvent(event Event, secretKey string) (string, error) {
	event.Signature = ""
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(eventBytes)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// VerifyEvent reports whether event carries a valid signature for secretKey.
func VerifyEvent(event Event, secretKey string) bool {
	expected, err := SignEvent(event, secretKey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(event.Signature))
}
