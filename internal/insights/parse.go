package insights

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jengzang/shuttle-backend-go/internal/models"
)

// ErrUnparseable is returned when a model reply carries no usable structured result
var ErrUnparseable = errors.New("unparseable model response")

var (
	timeSlotPattern = regexp.MustCompile(`^\d{2}:\d{2}-\d{2}:\d{2}$`)
	isoDatePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ExtractJSONArray returns the first top-level JSON array in text.
// Brackets inside string literals and comments are ignored while matching.
func ExtractJSONArray(text string) (string, bool) {
	start := -1
	depth := 0
	sc := scanner{src: text}
	for tok, ok := sc.next(); ok; tok, ok = sc.next() {
		if tok.kind != tokenByte {
			continue
		}
		switch text[tok.start] {
		case '[':
			if depth == 0 {
				start = tok.start
			}
			depth++
		case ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start:tok.end], true
			}
		}
	}
	return "", false
}

// CleanJSON strips // and /* */ comments and trailing commas before ] or }.
// String literals are copied untouched.
func CleanJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	sc := scanner{src: s}
	for tok, ok := sc.next(); ok; tok, ok = sc.next() {
		switch tok.kind {
		case tokenComment:
			continue
		case tokenByte:
			if s[tok.start] == ',' && closesNext(s, tok.end) {
				continue
			}
		}
		b.WriteString(s[tok.start:tok.end])
	}
	return b.String()
}

// closesNext reports whether the next significant token at or after from is ] or }
func closesNext(s string, from int) bool {
	sc := scanner{src: s, pos: from}
	for tok, ok := sc.next(); ok; tok, ok = sc.next() {
		switch tok.kind {
		case tokenComment:
			continue
		case tokenString:
			return false
		}
		switch s[tok.start] {
		case ' ', '\t', '\r', '\n':
			continue
		case ']', '}':
			return true
		default:
			return false
		}
	}
	return false
}

// CleanAndParse extracts the first JSON array from a model reply, repairs it and decodes it into T.
func CleanAndParse[T any](text string) (T, error) {
	var out T
	raw, ok := ExtractJSONArray(text)
	if !ok {
		return out, fmt.Errorf("%w: no JSON array found", ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return out, nil
}

// ParsePredictions decodes and validates a demand prediction reply
func ParsePredictions(text string) ([]models.DemandPrediction, error) {
	preds, err := CleanAndParse[[]models.DemandPrediction](text)
	if err != nil {
		return nil, err
	}
	if err := ValidatePredictions(preds); err != nil {
		return nil, err
	}
	return preds, nil
}

// ParseOptimizations decodes and validates a schedule optimization reply
func ParseOptimizations(text string) ([]models.ScheduleOptimization, error) {
	opts, err := CleanAndParse[[]models.ScheduleOptimization](text)
	if err != nil {
		return nil, err
	}
	if err := ValidateOptimizations(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// ValidatePredictions rejects the whole batch if any prediction breaks the output invariants
func ValidatePredictions(preds []models.DemandPrediction) error {
	if len(preds) == 0 {
		return fmt.Errorf("%w: empty prediction list", ErrUnparseable)
	}
	for i, p := range preds {
		switch {
		case p.RouteID == "" && p.RouteName == "":
			return fmt.Errorf("%w: prediction %d has no route", ErrUnparseable, i)
		case p.PredictedDemand < 0:
			return fmt.Errorf("%w: prediction %d has negative demand", ErrUnparseable, i)
		case p.Confidence < 0 || p.Confidence > 100:
			return fmt.Errorf("%w: prediction %d confidence %d out of range", ErrUnparseable, i, p.Confidence)
		case !timeSlotPattern.MatchString(p.TimeSlot):
			return fmt.Errorf("%w: prediction %d time slot %q", ErrUnparseable, i, p.TimeSlot)
		case !isoDatePattern.MatchString(p.Date):
			return fmt.Errorf("%w: prediction %d date %q", ErrUnparseable, i, p.Date)
		}
	}
	return nil
}

// ValidateOptimizations rejects the whole batch if any optimization breaks the output invariants
func ValidateOptimizations(opts []models.ScheduleOptimization) error {
	if len(opts) == 0 {
		return fmt.Errorf("%w: empty optimization list", ErrUnparseable)
	}
	for i, o := range opts {
		switch {
		case o.RouteID == "":
			return fmt.Errorf("%w: optimization %d has no route", ErrUnparseable, i)
		case o.EfficiencyGain < 0:
			return fmt.Errorf("%w: optimization %d has negative gain", ErrUnparseable, i)
		case len(o.OptimizedSchedule) == 0:
			return fmt.Errorf("%w: optimization %d has empty schedule", ErrUnparseable, i)
		case len(o.OptimizedSchedule) < len(o.CurrentSchedule):
			return fmt.Errorf("%w: optimization %d drops departures", ErrUnparseable, i)
		}
	}
	return nil
}

type tokenKind int

const (
	tokenByte tokenKind = iota
	tokenString
	tokenComment
)

type token struct {
	kind       tokenKind
	start, end int
}

// scanner splits JSON-ish text into single bytes, string literals and comments
type scanner struct {
	src string
	pos int
}

func (s *scanner) next() (token, bool) {
	if s.pos >= len(s.src) {
		return token{}, false
	}
	i := s.pos
	rest := s.src[i:]

	var tok token
	switch {
	case rest[0] == '"':
		tok = token{kind: tokenString, start: i, end: stringEnd(s.src, i)}
	case strings.HasPrefix(rest, "//"):
		end := len(s.src)
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			end = i + nl
		}
		tok = token{kind: tokenComment, start: i, end: end}
	case strings.HasPrefix(rest, "/*"):
		end := len(s.src)
		if stop := strings.Index(rest[2:], "*/"); stop >= 0 {
			end = i + 2 + stop + 2
		}
		tok = token{kind: tokenComment, start: i, end: end}
	default:
		tok = token{kind: tokenByte, start: i, end: i + 1}
	}
	s.pos = tok.end
	return tok, true
}

// stringEnd returns the index just past the closing quote of the literal at start.
// Unterminated literals run to the end of src.
func stringEnd(src string, start int) int {
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(src)
}
