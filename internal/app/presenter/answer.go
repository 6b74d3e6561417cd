package presenter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/pulse"
)

// ParseAnswer turns what a user typed for item into the JSON value the API expects.
// Question options may be picked by their 1-based number.
func ParseAnswer(item feed.Item, input string) (json.RawMessage, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty answer")
	}
	switch {
	case item.Rating != nil:
		n, err := strconv.Atoi(input)
		if err != nil {
			return nil, fmt.Errorf("rating must be a number between %d and %d", item.Rating.MinRating, item.Rating.MaxRating)
		}
		return json.RawMessage(strconv.Itoa(n)), nil
	case item.Question != nil && len(item.Question.Options) > 0:
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(item.Question.Options) {
			return pulse.QuoteString(item.Question.Options[n-1]), nil
		}
		return pulse.QuoteString(input), nil
	case item.Connection != nil, item.Info != nil:
		switch strings.ToLower(input) {
		case "y", pulse.AnswerYes:
			return pulse.QuoteString(pulse.AnswerYes), nil
		case "n", pulse.AnswerNo:
			return pulse.QuoteString(pulse.AnswerNo), nil
		}
		return nil, fmt.Errorf("answer yes or no")
	default:
		return pulse.QuoteString(input), nil
	}
}

// Prompt is a one-line description of item for terminal use.
func Prompt(item feed.Item) string {
	switch {
	case item.Rating != nil:
		return fmt.Sprintf("Rate resource %s (%d-%d)", item.Rating.ResourceID, item.Rating.MinRating, item.Rating.MaxRating)
	case item.Connection != nil:
		return fmt.Sprintf("Did you connect with %s? (y/n)", item.Connection.ConnectionUserID)
	case item.Info != nil:
		return fmt.Sprintf("%s: %s (useful? y/n)", item.Info.Title, item.Info.Body)
	case item.Question != nil:
		if len(item.Question.Options) == 0 {
			return item.Question.Prompt
		}
		opts := make([]string, len(item.Question.Options))
		for i, o := range item.Question.Options {
			opts[i] = fmt.Sprintf("%d) %s", i+1, o)
		}
		return item.Question.Prompt + " " + strings.Join(opts, " ")
	default:
		return string(item.Type)
	}
}

// AutoAnswer picks a valid answer without user input.
func AutoAnswer(item feed.Item) json.RawMessage {
	switch {
	case item.Rating != nil:
		return json.RawMessage(strconv.Itoa(item.Rating.MaxRating))
	case item.Question != nil && len(item.Question.Options) > 0:
		return pulse.QuoteString(item.Question.Options[0])
	case item.Question != nil:
		return pulse.QuoteString("ok")
	default:
		return pulse.QuoteString(pulse.AnswerYes)
	}
}
