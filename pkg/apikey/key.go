package apikey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tspence/api-key-generator/pkg/base58"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// Separator divides the encoded key id from the client secret. It is not a
// Base58 symbol, so its first occurrence after the prefix is unambiguous.
const Separator = '_'

// ParseErrorKind classifies why a key string could not be parsed.
type ParseErrorKind int

const (
	EmptyKey ParseErrorKind = iota + 1
	PrefixMismatch
	Truncated
	MissingDelimiter
	MalformedKeyID
)

func (k ParseErrorKind) String() string {
	switch k {
	case EmptyKey:
		return "empty_key"
	case PrefixMismatch:
		return "prefix_mismatch"
	case Truncated:
		return "truncated"
	case MissingDelimiter:
		return "missing_delimiter"
	case MalformedKeyID:
		return "malformed_key_id"
	}
	return "unknown"
}

// Messages reported for parse and validation failures.
const (
	MsgEmptyKey         = "Key is null or empty."
	MsgTruncated        = "This key was truncated and is missing some data."
	MsgMissingDelimiter = "Key and client secret are not properly delimited."
	MsgMalformedKeyID   = "Key ID is not properly formatted."
	MsgNoPrefixMatch    = "Key prefix does not match any supported key algorithms."
	MsgKeyNotFound      = "Repository does not contain a key matching this ID."
	MsgInvalidHash      = "Invalid API key hash."
)

// ParseError describes a key string that could not be parsed.
type ParseError struct {
	Kind    ParseErrorKind
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

func newParseError(kind ParseErrorKind, message string) *ParseError {
	return &ParseError{Kind: kind, Message: message}
}

// ClientKey is the decoded form of a key string. It exists only in memory,
// between generation and delivery or between parsing and verification.
type ClientKey struct {
	ID           uuid.UUID
	ClientSecret string
}

// String renders the key in its wire format under alg.
func (k *ClientKey) String(alg *Algorithm) string {
	alg = orDefault(alg)
	var sb strings.Builder
	sb.WriteString(alg.Prefix)
	sb.WriteString(base58.Encode(guidBytes(k.ID)))
	sb.WriteRune(Separator)
	sb.WriteString(k.ClientSecret)
	sb.WriteString(alg.Suffix)
	return sb.String()
}

// TryParseKey parses raw under alg, or the default algorithm when alg is nil.
// Checks run in a fixed order and the first failure is returned.
func TryParseKey(raw string, alg *Algorithm) (*ClientKey, *ParseError) {
	alg = orDefault(alg)

	if strings.TrimSpace(raw) == "" {
		return nil, newParseError(EmptyKey, MsgEmptyKey)
	}
	if !strings.HasPrefix(raw, alg.Prefix) {
		return nil, newParseError(PrefixMismatch,
			fmt.Sprintf("This does not look like an API key (missing prefix %s).", alg.Prefix))
	}
	if len(raw) < len(alg.Prefix)+len(alg.Suffix) || !strings.HasSuffix(raw, alg.Suffix) {
		return nil, newParseError(Truncated, MsgTruncated)
	}

	body := raw[len(alg.Prefix) : len(raw)-len(alg.Suffix)]
	pos := strings.IndexRune(body, Separator)
	if pos < 0 {
		return nil, newParseError(MissingDelimiter, MsgMissingDelimiter)
	}

	idBytes, ok := base58.DecodeLength(body[:pos], 16)
	if !ok {
		return nil, newParseError(MalformedKeyID, MsgMalformedKeyID)
	}

	return &ClientKey{
		ID:           uuidFromGUIDBytes(idBytes),
		ClientSecret: body[pos+1:],
	}, nil
}

// ParseKey is the strict form of TryParseKey. Failures are returned as
// invalid_key errors carrying the same message.
func ParseKey(raw string, alg *Algorithm) (*ClientKey, error) {
	key, perr := TryParseKey(raw, alg)
	if perr != nil {
		return nil, errors.ErrInvalidKey(perr.Message).WithMetadata("reason", perr.Kind.String())
	}
	return key, nil
}

// guidBytes returns id in the mixed-endian layout used by previously issued
// keys: the first three groups are little-endian.
func guidBytes(id uuid.UUID) []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
	return b
}

func uuidFromGUIDBytes(b []byte) uuid.UUID {
	var id uuid.UUID
	copy(id[:], b)
	id[0], id[1], id[2], id[3] = id[3], id[2], id[1], id[0]
	id[4], id[5] = id[5], id[4]
	id[6], id[7] = id[7], id[6]
	return id
}
