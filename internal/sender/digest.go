package sender

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strings"
)

type challenge struct {
	realm     string
	nonce     string
	opaque    string
	algorithm string
	qop       string
}

// digestChallenge returns the first Digest challenge in h, or nil.
func digestChallenge(h http.Header) *challenge {
	for _, value := range h.Values("WWW-Authenticate") {
		if !isDigest(value) {
			continue
		}
		params := parseAuthParams(value[7:])
		c := &challenge{
			realm:     params["realm"],
			nonce:     params["nonce"],
			opaque:    params["opaque"],
			algorithm: params["algorithm"],
		}
		for _, q := range strings.Split(params["qop"], ",") {
			if strings.TrimSpace(q) == "auth" {
				c.qop = "auth"
			}
		}
		return c
	}
	return nil
}

func parseAuthParams(s string) map[string]string {
	out := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " ,")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, `"`) {
			end := 1
			for end < len(s) && s[end] != '"' {
				if s[end] == '\\' {
					end++
				}
				end++
			}
			if end > len(s) {
				end = len(s)
			}
			value = strings.ReplaceAll(s[1:end], `\"`, `"`)
			if end < len(s) {
				end++
			}
			s = s[end:]
		} else {
			comma := strings.IndexByte(s, ',')
			if comma < 0 {
				comma = len(s)
			}
			value = strings.TrimSpace(s[:comma])
			s = s[comma:]
		}
		out[key] = value
	}
	return out
}

func (c *challenge) hasher() func() hash.Hash {
	if strings.HasPrefix(strings.ToUpper(c.algorithm), "SHA-256") {
		return sha256.New
	}
	return md5.New
}

func (c *challenge) authorize(method, uri string, creds DigestCredentials) string {
	newHash := c.hasher()
	sum := func(parts ...string) string {
		h := newHash()
		h.Write([]byte(strings.Join(parts, ":")))
		return hex.EncodeToString(h.Sum(nil))
	}

	ha1 := sum(creds.Username, c.realm, creds.Password)
	ha2 := sum(method, uri)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, creds.Username, c.realm, c.nonce, uri)

	if c.qop == "auth" {
		const nc = "00000001"
		cnonce := newCnonce()
		fmt.Fprintf(&b, `, qop=auth, nc=%s, cnonce="%s", response="%s"`, nc, cnonce, sum(ha1, c.nonce, nc, cnonce, "auth", ha2))
	} else {
		fmt.Fprintf(&b, `, response="%s"`, sum(ha1, c.nonce, ha2))
	}
	if c.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.opaque)
	}
	if c.algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, c.algorithm)
	}
	return b.String()
}

func newCnonce() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
