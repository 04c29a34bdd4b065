package planner

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// analysisResponse is the completion shape of the analysis call.
type analysisResponse struct {
	Type                  string      `json:"type"`
	Complexity            string      `json:"complexity"`
	MainGoal              string      `json:"mainGoal"`
	KeyRequirements       flexStrings `json:"keyRequirements"`
	TechnologiesSuggested flexStrings `json:"technologiesSuggested"`
	PotentialChallenges   flexStrings `json:"potentialChallenges"`
	EstimatedSteps        flexInt     `json:"estimatedSteps"`
}

// subtaskResponse is one element of the subtask list completion.
type subtaskResponse struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	Type                 string      `json:"type"`
	Complexity           string      `json:"complexity"`
	EstimatedTime        flexInt     `json:"estimatedTime"`
	Prerequisites        flexStrings `json:"prerequisites"`
	Deliverables         flexStrings `json:"deliverables"`
	VerificationCriteria flexStrings `json:"verificationCriteria"`
}

// flexInt accepts a JSON number or a string with a leading number, such as
// "45 minutes". Anything else decodes as zero.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	digits := strings.TrimSpace(s)
	end := strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) })
	if end >= 0 {
		digits = digits[:end]
	}
	if v, err := strconv.Atoi(digits); err == nil {
		*f = flexInt(v)
	}
	return nil
}

// flexStrings accepts a JSON array of strings or a single string.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var list []any
	if err := json.Unmarshal(data, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			switch t := v.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					out = append(out, s)
				}
			case float64:
				out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
			}
		}
		*f = out
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && strings.TrimSpace(s) != "" {
		*f = flexStrings{strings.TrimSpace(s)}
	}
	return nil
}
