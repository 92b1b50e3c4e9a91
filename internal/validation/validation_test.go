package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/primary"
)

func validMove() primary.MoveRequest {
	return primary.MoveRequest{
		From:    "A1234AA",
		To:      "B1234BB",
		NoteIDs: []string{"0190a7b4-5f1e-7c3a-9d2e-1a2b3c4d5e6f"},
	}
}

func TestStruct_Valid(t *testing.T) {
	req := validMove()
	assert.NoError(t, Struct(&req))
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	req := validMove()
	req.To = req.From
	req.NoteIDs = []string{"not-a-uuid"}

	err := Struct(&req)

	require.Error(t, err)
	assert.Equal(t, errs.ValidationFailure, errs.CodeOf(err))
	assert.ElementsMatch(t, []string{
		"toPersonIdentifier: nefield=From",
		"caseNoteIds[0]: uuid",
	}, errs.DetailsOf(err))
}

func TestStruct_RequiredTime(t *testing.T) {
	req := primary.ReplaceRequest{
		Type:    "GEN",
		SubType: "OSE",
		Text:    "text",
		Reason:  "typo",
	}

	err := Struct(&req)

	require.Error(t, err)
	assert.Equal(t, []string{"occurredAt: required"}, errs.DetailsOf(err))

	req.OccurredAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	assert.NoError(t, Struct(&req))
}

func TestSlice_PrefixesIndex(t *testing.T) {
	good := validMove()
	bad := validMove()
	bad.From = ""

	err := Slice([]primary.MoveRequest{good, bad})

	require.Error(t, err)
	assert.Equal(t, []string{"[1].fromPersonIdentifier: required"}, errs.DetailsOf(err))
	assert.NoError(t, Slice([]primary.MoveRequest{good}))
}
