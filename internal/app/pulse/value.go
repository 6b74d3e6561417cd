package pulse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	MinRating = 1
	MaxRating = 5
)

const (
	AnswerYes = "yes"
	AnswerNo  = "no"
)

// NormalizeValue validates a scheduled pulse answer and returns its canonical JSON.
func NormalizeValue(source SourceType, raw json.RawMessage) (json.RawMessage, error) {
	switch source {
	case SourceResourceRating:
		n, err := ParseRating(raw)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(strconv.Itoa(n)), nil
	case SourceConnectionFeedback:
		answer, err := ParseYesNo(raw)
		if err != nil {
			return nil, err
		}
		return QuoteString(answer), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a scheduled pulse type", ErrValidation, source)
	}
}

// ParseRating accepts a JSON integer in [MinRating, MaxRating].
func ParseRating(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: rating must be a number", ErrValidation)
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: rating must be a number", ErrValidation)
	}
	n, err := strconv.Atoi(num.String())
	if err != nil {
		return 0, fmt.Errorf("%w: rating must be a whole number", ErrValidation)
	}
	if n < MinRating || n > MaxRating {
		return 0, fmt.Errorf("%w: rating must be between %d and %d", ErrValidation, MinRating, MaxRating)
	}
	return n, nil
}

// ParseYesNo accepts the JSON strings "yes" or "no", case-insensitively.
func ParseYesNo(raw json.RawMessage) (string, error) {
	s, err := ParseString(raw)
	if err != nil {
		return "", err
	}
	switch s = strings.ToLower(s); s {
	case AnswerYes, AnswerNo:
		return s, nil
	default:
		return "", fmt.Errorf("%w: answer must be %q or %q", ErrValidation, AnswerYes, AnswerNo)
	}
}

// ParseString decodes a non-empty, trimmed JSON string.
func ParseString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: answer must be a string", ErrValidation)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: answer is required", ErrValidation)
	}
	return s, nil
}

func QuoteString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
