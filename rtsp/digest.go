package rtsp

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// challenge is a parsed WWW-Authenticate header.
type challenge struct {
	scheme string // "Basic" or "Digest"
	realm  string
	nonce  string
}

func parseChallenge(header string) (challenge, error) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(header), " ")
	ch := challenge{scheme: scheme}
	switch scheme {
	case "Basic", "Digest":
	default:
		return ch, fmt.Errorf("unsupported auth scheme %q", scheme)
	}

	for _, part := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch strings.ToLower(key) {
		case "realm":
			ch.realm = value
		case "nonce":
			ch.nonce = value
		}
	}
	if ch.scheme == "Digest" && ch.nonce == "" {
		return ch, fmt.Errorf("digest challenge missing nonce")
	}
	return ch, nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// digestAuthorization computes the RFC 2069 style response cameras
// expect for RTSP.
func digestAuthorization(ch challenge, method, uri, username, password string) string {
	ha1 := md5hex(username + ":" + ch.realm + ":" + password)
	ha2 := md5hex(method + ":" + uri)
	response := md5hex(ha1 + ":" + ch.nonce + ":" + ha2)
	return fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		username, ch.realm, ch.nonce, uri, response,
	)
}
