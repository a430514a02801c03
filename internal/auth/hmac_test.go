package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifyHMAC(t *testing.T) {
	now := time.Unix(1700000000, 0)
	key := "app-secret"

	digest := SignRequest(key, "GET", "/api/v0/events?team=sre", "", now)
	assert.True(t, VerifyHMAC(key, digest, "GET", "/api/v0/events?team=sre", "", now))

	// previous window is still accepted
	assert.True(t, VerifyHMAC(key, digest, "GET", "/api/v0/events?team=sre", "", now.Add(5*time.Second)))

	assert.False(t, VerifyHMAC("other-secret", digest, "GET", "/api/v0/events?team=sre", "", now))
	assert.False(t, VerifyHMAC(key, digest, "POST", "/api/v0/events?team=sre", "", now))
	assert.False(t, VerifyHMAC(key, digest, "GET", "/api/v0/events", "", now))
	assert.False(t, VerifyHMAC(key, digest, "GET", "/api/v0/events?team=sre", "{}", now))
}

func TestVerifyHMACUnescapedPath(t *testing.T) {
	now := time.Unix(1700000000, 0)
	key := "app-secret"

	// older clients sign the raw path instead of the escaped one
	digest := SignRequest(key, "GET", "/api/v0/users/john doe/ical", "", now)
	assert.True(t, VerifyHMAC(key, digest, "GET", "/api/v0/users/john%20doe/ical", "", now))
}

func TestVerifyHMACBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	key := "app-secret"
	body := `{"start":1700003600}`

	digest := SignRequest(key, "POST", "/api/v0/events", body, now)
	assert.True(t, VerifyHMAC(key, digest, "POST", "/api/v0/events", body, now))
	assert.False(t, VerifyHMAC(key, digest, "POST", "/api/v0/events", body+" ", now))
}
