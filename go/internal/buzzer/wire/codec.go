package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingType is returned when a frame has no "type" discriminant
	ErrMissingType = errors.New("wire: missing message type")
	// ErrUnknownType is returned when the discriminant names no known variant
	ErrUnknownType = errors.New("wire: unknown message type")
)

// envelope reads only the discriminant of a frame
type envelope struct {
	Type string `json:"type"`
}

// EncodeNotification serializes a notification as a flat JSON object with a
// "type" field next to the variant's own fields.
func EncodeNotification(n Notification) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("encode notification: %w", ErrMissingType)
	}
	return encodeTagged(string(n.NotificationType()), n)
}

// EncodeClientMessage serializes a client message the same way a browser
// client would send it.
func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode client message: %w", ErrMissingType)
	}
	return encodeTagged(string(m.MessageType()), m)
}

// DecodeClientMessage parses one inbound frame into a typed client message
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	tag, err := readType(data)
	if err != nil {
		return nil, err
	}

	switch MessageType(tag) {
	case MessageTypeBuzz:
		return Buzz{}, nil
	case MessageTypeChangeName:
		return decodeAs[ChangeName](data)
	case MessageTypeChangeSession:
		return decodeAs[ChangeSession](data)
	case MessageTypeCloseSession:
		return CloseSession{}, nil
	case MessageTypeResumeSession:
		return ResumeSession{}, nil
	case MessageTypePauseSession:
		return PauseSession{}, nil
	case MessageTypeResetSession:
		return ResetSession{}, nil
	case MessageTypeResetBlacklist:
		return ResetBlacklist{}, nil
	case MessageTypeDisconnect:
		return Disconnect{}, nil
	case MessageTypeConnect:
		return Connect{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
}

// DecodeNotification parses one outbound frame back into a notification
func DecodeNotification(data []byte) (Notification, error) {
	tag, err := readType(data)
	if err != nil {
		return nil, err
	}

	switch NotificationType(tag) {
	case NotificationTypeReset:
		return Reset{}, nil
	case NotificationTypeClosed:
		return Closed{}, nil
	case NotificationTypeResumed:
		return decodeAs[Resumed](data)
	case NotificationTypePaused:
		return Paused{}, nil
	case NotificationTypeBlacklistCleared:
		return BlacklistCleared{}, nil
	case NotificationTypeChanged:
		return decodeAs[Changed](data)
	case NotificationTypeConnected:
		return decodeAs[Connected](data)
	case NotificationTypeChangedName:
		return decodeAs[ChangedName](data)
	case NotificationTypeDisconnected:
		return decodeAs[Disconnected](data)
	case NotificationTypeConnectionSuccess:
		return decodeAs[ConnectionSuccess](data)
	case NotificationTypeBuzzed:
		return decodeAs[Buzzed](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
}

func readType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", ErrMissingType
	}
	return env.Type, nil
}

func decodeAs[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// encodeTagged splices {"type":tag} in front of the variant's own fields
func encodeTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}
	tagJSON, err := json.Marshal(tag)
	if err != nil {
		return nil, fmt.Errorf("encode %s tag: %w", tag, err)
	}

	out := make([]byte, 0, len(body)+len(tagJSON)+9)
	out = append(out, `{"type":`...)
	out = append(out, tagJSON...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
