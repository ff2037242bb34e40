package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrEmptyPayload = errors.New("empty payload")
)

func Encode(t string, data any, now time.Time) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("trying to encode frame without type")
	}
	return json.Marshal(Outbound{Type: t, Data: data, Timestamp: now.UnixMilli()})
}

func DecodeInbound(b []byte) (Inbound, error) {
	if len(b) == 0 {
		return Inbound{}, ErrEmptyFrame
	}
	var in Inbound
	if err := json.Unmarshal(b, &in); err != nil {
		return Inbound{}, err
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("frame has no type")
	}
	return in, nil
}

// DecodeData unmarshals the payload of in into a T.
func DecodeData[T any](in Inbound) (T, error) {
	var out T
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return out, fmt.Errorf("%w for type %q", ErrEmptyPayload, in.Type)
	}
	err := json.Unmarshal(in.Data, &out)
	return out, err
}
