package curated

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pulsefeed/project/internal/app/pulse"
)

const MaxFreeTextRunes = 500

// NormalizeAnswer validates an answer to a curated item and returns its canonical JSON.
// Info cards take "yes"/"no"; questions take one of their options, or free text when
// none are authored.
func NormalizeAnswer(item Item, raw json.RawMessage) (json.RawMessage, error) {
	switch item.Type {
	case pulse.SourceDailyInfo:
		answer, err := pulse.ParseYesNo(raw)
		if err != nil {
			return nil, err
		}
		return pulse.QuoteString(answer), nil
	case pulse.SourceDailyQuestion:
		answer, err := pulse.ParseString(raw)
		if err != nil {
			return nil, err
		}
		q, err := item.Question()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", pulse.ErrUpstream, err)
		}
		if len(q.Options) == 0 {
			if utf8.RuneCountInString(answer) > MaxFreeTextRunes {
				return nil, fmt.Errorf("%w: answer exceeds %d characters", pulse.ErrValidation, MaxFreeTextRunes)
			}
			return pulse.QuoteString(answer), nil
		}
		for _, opt := range q.Options {
			if strings.EqualFold(strings.TrimSpace(opt), answer) {
				return pulse.QuoteString(opt), nil
			}
		}
		return nil, fmt.Errorf("%w: answer is not one of the question's options", pulse.ErrValidation)
	default:
		return nil, fmt.Errorf("%w: %s is not a curated pulse type", pulse.ErrValidation, item.Type)
	}
}
