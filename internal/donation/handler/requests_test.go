package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bloodlink/pkg/domain-errors"
)

func TestSanitizeStripsMarkupRecursively(t *testing.T) {
	note := " <i>call</i> after 5pm "
	req := &ChangeStatusRequest{Status: " done ", Note: "<a href=\"x\">ok</a> &amp; thanks", DonorID: &note}
	sanitize(req)

	assert.Equal(t, "done", req.Status)
	assert.Equal(t, "ok & thanks", req.Note)
	assert.Equal(t, "call after 5pm", *req.DonorID)
}

func TestCreateRequestValidate(t *testing.T) {
	t.Run("parses the date", func(t *testing.T) {
		req := &CreateRequest{DonationDate: "2026-03-11", Message: "need blood"}
		require.NoError(t, req.Validate())
		assert.Equal(t, "2026-03-11", req.ParsedDate().Format(dateLayout))
	})

	t.Run("missing date", func(t *testing.T) {
		err := (&CreateRequest{}).Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("oversized recipient field", func(t *testing.T) {
		long := make([]byte, maxFieldLength+1)
		for i := range long {
			long[i] = 'a'
		}
		req := &CreateRequest{DonationDate: "2026-03-11", Recipient: RecipientRequest{HospitalName: string(long)}}
		err := req.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestSuggestRequestValidate(t *testing.T) {
	err := (&SuggestRequest{DonorID: "nope"}).Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
