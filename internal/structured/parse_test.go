package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analysis struct {
	Type           string `json:"type"`
	EstimatedSteps int    `json:"estimatedSteps"`
}

func TestParse_Direct(t *testing.T) {
	got, ok := Parse[analysis](`{"type":"web","estimatedSteps":4}`)
	require.True(t, ok)
	assert.Equal(t, analysis{Type: "web", EstimatedSteps: 4}, got)
}

func TestParse_EmbeddedObject(t *testing.T) {
	text := "Sure! Here is the analysis:\n```json\n{\"type\":\"cli\",\"estimatedSteps\":7}\n```\nLet me know."
	got, ok := Parse[analysis](text)
	require.True(t, ok)
	assert.Equal(t, "cli", got.Type)
	assert.Equal(t, 7, got.EstimatedSteps)
}

func TestParse_EmbeddedArray(t *testing.T) {
	got, ok := Parse[[]analysis]("Plan: [{\"type\":\"a\"},{\"type\":\"b\"}] done")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].Type)
}

func TestParse_BracketsInsideStrings(t *testing.T) {
	got, ok := Parse[analysis](`note {"type":"uses } and [ chars","estimatedSteps":1} tail`)
	require.True(t, ok)
	assert.Equal(t, "uses } and [ chars", got.Type)
}

func TestParse_SkipsUndecodableCandidates(t *testing.T) {
	// The first balanced candidate is an array, which cannot decode into a struct.
	got, ok := Parse[analysis](`[1,2] then {"type":"second"}`)
	require.True(t, ok)
	assert.Equal(t, "second", got.Type)
}

func TestParse_TrailingCommas(t *testing.T) {
	got, ok := Parse[[]analysis]("```json\n[{\"type\":\"a\",},{\"type\":\"b\"},]\n```")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Type)
}

func TestParse_Failure(t *testing.T) {
	for _, text := range []string{"", "   ", "no json here", `{"type": "unterminated"`, "{{{"} {
		_, ok := Parse[analysis](text)
		assert.False(t, ok, "Parse(%q)", text)
	}
}

func TestExtract(t *testing.T) {
	got, ok := Extract(`prefix {"a":[1,2,{"b":"}"}]} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"a":[1,2,{"b":"}"}]}`, got)

	_, ok = Extract("nothing")
	assert.False(t, ok)
}
