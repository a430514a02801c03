package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

// Application requests carry `Authorization: hmac <app>:<digest>` where the
// digest is base64url(HMAC-SHA512(key, "<window> <METHOD> <path?query>
// <body>")). Two window sizes are accepted, current and previous each, and
// the path is tried both URL-encoded and raw for older clients.

var hmacWindows = []int64{5, 30}

func hmacDigest(key []byte, window int64, method, path, body string) string {
	mac := hmac.New(sha512.New, key)
	fmt.Fprintf(mac, "%d %s %s %s", window, method, path, body)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks the client digest against every accepted window and
// path form in constant time per candidate.
func VerifyHMAC(key, clientDigest, method, escapedPath, body string, now time.Time) bool {
	paths := []string{escapedPath}
	if unescaped, err := url.PathUnescape(escapedPath); err == nil && unescaped != escapedPath {
		paths = append(paths, unescaped)
	}

	client := []byte(clientDigest)
	epoch := now.Unix()
	for _, size := range hmacWindows {
		for _, window := range []int64{epoch / size, epoch/size - 1} {
			for _, path := range paths {
				expected := hmacDigest([]byte(key), window, method, path, body)
				if hmac.Equal(client, []byte(expected)) {
					return true
				}
			}
		}
	}
	return false
}

// SignRequest produces the digest a client should send for the current
// window; used by tests and by API consumers of this package.
func SignRequest(key, method, path, body string, now time.Time) string {
	return hmacDigest([]byte(key), now.Unix()/5, method, path, body)
}
