// Package passkey generates and checks the recovery passkey shown once at the
// end of registration. A passkey is one word from a fixed list and three
// digits, e.g. "comet-042".
//
// The passkey is a memorable recovery hint, not a strong secret: 8 words and
// 1000 digit combinations give about 13 bits of entropy. It is only ever
// accepted together with a typing-cadence check, and step-up allows two
// attempts before lockout.
package passkey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	mrand "math/rand/v2"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Words is the fixed word list passkeys are drawn from.
var Words = []string{"moon", "star", "nova", "flare", "comet", "ocean", "river", "cloud"}

// argon2id parameters follow the OWASP minimum profile (m=19 MiB, t=2, p=1).
const (
	argonTime    = 2
	argonMemory  = 19 * 1024 // 19 MiB in KiB
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

const phcPrefix = "$argon2id$"

// Generate returns a new passkey in the form word-DDD.
func Generate() string {
	word := Words[mrand.IntN(len(Words))]
	return fmt.Sprintf("%s-%03d", word, mrand.IntN(1000))
}

// Normalize trims surrounding whitespace and lower-cases s. Verification
// compares normalized forms only.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Hash returns an argon2id PHC string of the normalized passkey:
// $argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
func Hash(plain string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(Normalize(plain)), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify reports whether attempt matches stored, ignoring case and
// surrounding whitespace. stored is normally a Hash result; a plain stored
// value is compared directly. An empty stored value never matches.
func Verify(stored, attempt string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, phcPrefix) {
		return verifyHash(Normalize(attempt), stored)
	}
	return subtle.ConstantTimeCompare([]byte(Normalize(stored)), []byte(Normalize(attempt))) == 1
}

// verifyHash checks plain against an argon2id PHC string.
func verifyHash(plain, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(plain), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, computed) == 1
}
