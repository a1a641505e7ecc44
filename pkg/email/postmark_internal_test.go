package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostmarkResult(t *testing.T) {
	t.Parallel()

	assert.NoError(t, postmarkResult(0, "OK"))

	err := postmarkResult(postmarkInactiveRecipient, "You tried to send to a recipient that has been marked as inactive.")
	assert.ErrorIs(t, err, ErrFailedToSendEmail)
	assert.ErrorIs(t, err, ErrRecipientRejected)

	err = postmarkResult(postmarkInvalidRequest, "Invalid 'To' address")
	assert.ErrorIs(t, err, ErrRecipientRejected)

	err = postmarkResult(10, "Bad or missing API token")
	assert.ErrorIs(t, err, ErrFailedToSendEmail)
	assert.NotErrorIs(t, err, ErrRecipientRejected)
}
