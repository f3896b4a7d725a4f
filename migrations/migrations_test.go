package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesAreOrdered(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"001_users",
		"002_donation_requests",
		"003_notifications",
		"004_audit_events",
	}, names)
}

func TestDonationSchemaEnforcesDonorBinding(t *testing.T) {
	body, err := files.ReadFile("002_donation_requests.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "donor_matches_status")
	assert.Contains(t, string(body), "scheduled_at")
}
