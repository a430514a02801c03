package ical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFeed(t *testing.T) {
	body, err := Render("sre", []*Shift{
		{
			ID:       42,
			Team:     "sre",
			Role:     "primary",
			User:     "alice",
			FullName: "Alice Adams",
			Start:    1700480400, // 2023-11-20 11:40 UTC
			End:      1700566800,
			Contacts: map[string]string{
				"email": "alice@example.com",
				"sms":   "+15551234567",
			},
		},
	})
	require.NoError(t, err)
	feed := string(body)

	assert.Contains(t, feed, "BEGIN:VCALENDAR")
	assert.Contains(t, feed, "CALSCALE:GREGORIAN")
	assert.Contains(t, feed, "PRODID:"+ProdID)
	assert.Contains(t, feed, "VERSION:2.0")
	assert.Contains(t, feed, "X-WR-CALNAME:sre Oncall Calendar")
	assert.Contains(t, feed, "UID:event-42@oncall")
	assert.Contains(t, feed, "SUMMARY:sre primary shift: Alice Adams")
	assert.Contains(t, feed, "DTSTART:20231120T114000Z")
	assert.Contains(t, feed, "DTEND:20231121T114000Z")
	assert.Contains(t, feed, "TRANSP:TRANSPARENT")
	assert.Contains(t, feed, "CN=Alice Adams")
	assert.Contains(t, feed, "ROLE=REQ-PARTICIPANT")
	assert.Contains(t, feed, ":MAILTO:alice@example.com")
	assert.Contains(t, feed, "END:VCALENDAR")
}

// Contact-free feeds still carry the attendee identity, just without an
// address behind the MAILTO.
func TestRenderWithoutContacts(t *testing.T) {
	body, err := Render("sre", []*Shift{
		{ID: 1, Team: "sre", Role: "primary", FullName: "Alice Adams", Start: 1700000000, End: 1700003600},
	})
	require.NoError(t, err)
	feed := string(body)

	assert.Contains(t, feed, "CN=Alice Adams")
	assert.Contains(t, feed, ":MAILTO:\r\n")
	assert.Contains(t, feed, "DESCRIPTION:Alice Adams")
}

func TestRenderEmptyFeed(t *testing.T) {
	body, err := Render("sre", nil)
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Contains(t, string(body), "X-WR-CALNAME:sre Oncall Calendar")
	assert.NotContains(t, string(body), "BEGIN:VEVENT")
}

func TestDescriptionContactOrder(t *testing.T) {
	desc := description(&Shift{
		FullName: "Alice Adams",
		Contacts: map[string]string{
			"sms":   "+15551234567",
			"email": "alice@example.com",
			"call":  "+15557654321",
		},
	})
	lines := strings.Split(desc, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Alice Adams", lines[0])
	assert.Equal(t, "call: +15557654321", lines[1])
	assert.Equal(t, "email: alice@example.com", lines[2])
	assert.Equal(t, "sms: +15551234567", lines[3])
}
