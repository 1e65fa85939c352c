package insights

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/shuttle-backend-go/internal/models"
)

const cleanReply = `[
  {
    "routeId": "R001",
    "routeName": "Main Campus Loop",
    "predictedDemand": 42,
    "confidence": 80,
    "timeSlot": "07:30-08:30",
    "date": "2026-10-15",
    "reasoning": "Peak before classes",
    "recommendedAction": "Add a shuttle"
  }
]`

const noisyReply = "Here are the predictions you asked for:\n```json\n" + `[
  // morning peak
  {
    "routeId": "R001",
    "routeName": "Main Campus Loop", /* from the schedule */
    "predictedDemand": 42,
    "confidence": 80,
    "timeSlot": "07:30-08:30",
    "date": "2026-10-15",
    "reasoning": "Peak before classes",
    "recommendedAction": "Add a shuttle",
  },
]` + "\n```\nLet me know if you need anything else [1]."

func TestCleanAndParse_CommentsAndTrailingCommas(t *testing.T) {
	want, err := CleanAndParse[[]models.DemandPrediction](cleanReply)
	require.NoError(t, err)

	got, err := CleanAndParse[[]models.DemandPrediction](noisyReply)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got, 1)
	assert.Equal(t, 42, got[0].PredictedDemand)
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", `[1,2]`, `[1,2]`, true},
		{"prose around", `result: [1, [2, 3]] done`, `[1, [2, 3]]`, true},
		{"bracket in string", `["a]b", "c"] tail]`, `["a]b", "c"]`, true},
		{"escaped quote", `["say \"]\" ok"]`, `["say \"]\" ok"]`, true},
		{"bracket in comment", "[1, // ]\n 2]", "[1, // ]\n 2]", true},
		{"stray close first", `] [1]`, `[1]`, true},
		{"unterminated", `[1, 2`, ``, false},
		{"none", `no json here`, ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONArray(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"line comment", "[1, // one\n2]", "[1, \n2]"},
		{"block comment", `[1, /* two */ 2]`, `[1,  2]`},
		{"trailing comma array", `[1, 2, ]`, `[1, 2 ]`},
		{"trailing comma object", `{"a": 1,}`, `{"a": 1}`},
		{"comma before comment then close", "[1, // end\n]", "[1 \n]"},
		{"url in string", `["https://example.com/a,]"]`, `["https://example.com/a,]"]`},
		{"comment markers in string", `["/* keep */", "// keep"]`, `["/* keep */", "// keep"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}

func TestCleanAndParse_Unparseable(t *testing.T) {
	for _, in := range []string{
		"",
		"I cannot help with that.",
		`[{"routeId": "R001", "predictedDemand": "many"}]`,
		`[{"routeId": "R001",, }]`,
	} {
		_, err := CleanAndParse[[]models.DemandPrediction](in)
		assert.True(t, errors.Is(err, ErrUnparseable), "input %q", in)
	}
}

func TestParsePredictions_Validation(t *testing.T) {
	valid := `[{"routeId":"R001","predictedDemand":10,"confidence":75,"timeSlot":"08:00-09:00","date":"2026-10-15"}]`
	preds, err := ParsePredictions(valid)
	require.NoError(t, err)
	assert.Len(t, preds, 1)

	for name, in := range map[string]string{
		"empty":         `[]`,
		"negative":      `[{"routeId":"R001","predictedDemand":-1,"confidence":75,"timeSlot":"08:00-09:00","date":"2026-10-15"}]`,
		"confidence":    `[{"routeId":"R001","predictedDemand":1,"confidence":120,"timeSlot":"08:00-09:00","date":"2026-10-15"}]`,
		"slot":          `[{"routeId":"R001","predictedDemand":1,"confidence":75,"timeSlot":"8-9am","date":"2026-10-15"}]`,
		"date":          `[{"routeId":"R001","predictedDemand":1,"confidence":75,"timeSlot":"08:00-09:00","date":"tomorrow"}]`,
		"no route":      `[{"predictedDemand":1,"confidence":75,"timeSlot":"08:00-09:00","date":"2026-10-15"}]`,
		"one bad entry": `[` + valid[1:len(valid)-1] + `,{"routeId":"R002","predictedDemand":-4,"confidence":75,"timeSlot":"08:00-09:00","date":"2026-10-15"}]`,
	} {
		_, err := ParsePredictions(in)
		assert.ErrorIs(t, err, ErrUnparseable, name)
	}
}

func TestParseOptimizations_Validation(t *testing.T) {
	valid := `[{"routeId":"R001","currentSchedule":["07:30"],"optimizedSchedule":["07:15","07:30"],"efficiencyGain":10,"reasoning":"r","implementationSteps":["a"]}]`
	opts, err := ParseOptimizations(valid)
	require.NoError(t, err)
	assert.Equal(t, []string{"07:15", "07:30"}, opts[0].OptimizedSchedule)

	for name, in := range map[string]string{
		"empty":    `[]`,
		"gain":     `[{"routeId":"R001","currentSchedule":[],"optimizedSchedule":["07:00"],"efficiencyGain":-5}]`,
		"schedule": `[{"routeId":"R001","currentSchedule":[],"optimizedSchedule":[],"efficiencyGain":5}]`,
		"shrinks":  `[{"routeId":"R001","currentSchedule":["07:00","08:00"],"optimizedSchedule":["07:00"],"efficiencyGain":5}]`,
		"no route": `[{"currentSchedule":[],"optimizedSchedule":["07:00"],"efficiencyGain":5}]`,
	} {
		_, err := ParseOptimizations(in)
		assert.ErrorIs(t, err, ErrUnparseable, name)
	}
}
