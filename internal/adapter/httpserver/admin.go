package httpserver

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// AdminKeyHeader carries the plaintext admin key.
const AdminKeyHeader = "X-Admin-Key"

// Argon2Params defines parameters for Argon2id key hashing.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2Params is what HashAPIKey uses from the command line.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

// HashAPIKey returns argon2id$iterations$memory$parallelism$salt$hash with
// raw base64 salt and hash.
func HashAPIKey(key string, params Argon2Params) (string, error) {
	if key == "" {
		return "", fmt.Errorf("op=admin.hash: %w: empty key", domain.ErrInvalidArgument)
	}
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("op=admin.hash: %w", err)
	}
	sum := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		params.Iterations,
		params.Memory,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// VerifyAPIKey checks key against an encoded HashAPIKey value in constant time.
func VerifyAPIKey(key, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	iters, err1 := parseUint32(parts[1])
	mem, err2 := parseUint32(parts[2])
	par, err3 := parseUint32(parts[3])
	if err1 != nil || err2 != nil || err3 != nil || par == 0 || par > math.MaxUint8 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(key), salt, iters, mem, uint8(par), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func parseUint32(s string) (uint32, error) {
	x, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return uint32(x), nil
}

// AdminKeyRequired guards gateway administration. With no hash configured
// every request is refused.
func AdminKeyRequired(encodedHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(AdminKeyHeader)
			switch {
			case encodedHash == "":
				writeError(w, r, fmt.Errorf("%w: admin routes are disabled", domain.ErrForbidden), nil)
				return
			case key == "":
				writeError(w, r, fmt.Errorf("%w: missing %s", domain.ErrUnauthorized, AdminKeyHeader), nil)
				return
			case !VerifyAPIKey(key, encodedHash):
				LoggerFrom(r).Warn("admin key rejected", "path", r.URL.Path)
				writeError(w, r, fmt.Errorf("%w: invalid admin key", domain.ErrForbidden), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
