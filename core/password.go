package core

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Algorithm tags as they appear in the first segment of a stored password hash.
// The layout of each format matches the Django hashers that produced the data.
const (
	AlgPBKDF2SHA256 = "pbkdf2_sha256" // pbkdf2_sha256$<iterations>$<salt>$<base64 digest>
	AlgPBKDF2SHA1   = "pbkdf2_sha1"   // pbkdf2_sha1$<iterations>$<salt>$<base64 digest>
	AlgArgon2       = "argon2"        // argon2$argon2id$v=19$m=<kib>,t=<n>,p=<n>$<b64 salt>$<b64 digest>
	AlgBcryptSHA256 = "bcrypt_sha256" // bcrypt_sha256$<bcrypt hash of hex(sha256(password))>
	AlgBcrypt       = "bcrypt"        // bcrypt$<bcrypt hash>
	AlgScrypt       = "scrypt"        // scrypt$<n>$<salt>$<r>$<p>$<base64 digest>
	AlgSHA1         = "sha1"          // sha1$<salt>$<hex digest>, empty salt for unsalted
	AlgMD5          = "md5"           // md5$<salt>$<hex digest>, empty salt for unsalted
)

const (
	hashSeparator = "$"

	// DefaultPBKDF2Iterations is the work factor for newly created pbkdf2_sha256 hashes.
	DefaultPBKDF2Iterations = 870000

	saltLength   = 22
	saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	// ErrUnknownHashFormat is returned by ParsePasswordHash for unsupported or malformed hashes.
	ErrUnknownHashFormat = errors.New("unknown password hash format")

	b64Std    = base64.StdEncoding.Strict()
	b64RawStd = base64.RawStdEncoding.Strict()
)

// PasswordHash is a parsed stored hash. The set of implementations is closed:
// one per supported algorithm family, each holding its own parameters.
type PasswordHash interface {
	Algorithm() string
	Matches(password string) bool
}

// CheckPassword reports whether password matches the stored hash. Any hash that
// cannot be parsed is a non-match.
func CheckPassword(password, stored string) bool {
	h, err := ParsePasswordHash(stored)
	if err != nil {
		return false
	}
	return h.Matches(password)
}

// ParsePasswordHash dispatches on the algorithm tag of stored.
func ParsePasswordHash(stored string) (PasswordHash, error) {
	tag, rest, ok := strings.Cut(stored, hashSeparator)
	if !ok {
		// Bare 32-char hex strings are unsalted MD5 digests from very old installs.
		if len(stored) == md5.Size*2 {
			return parseDigestFields(AlgMD5, md5.New, []string{"", stored})
		}
		return nil, fmt.Errorf("%w: missing algorithm tag", ErrUnknownHashFormat)
	}

	switch tag {
	case AlgPBKDF2SHA256:
		return parsePBKDF2(tag, sha256.New, rest)
	case AlgPBKDF2SHA1:
		return parsePBKDF2(tag, sha1.New, rest)
	case AlgArgon2:
		return parseArgon2(rest)
	case AlgBcryptSHA256:
		return parseBcrypt(tag, rest, true)
	case AlgBcrypt:
		return parseBcrypt(tag, rest, false)
	case AlgScrypt:
		return parseScrypt(rest)
	case AlgSHA1:
		return parseDigestFields(tag, sha1.New, strings.Split(rest, hashSeparator))
	case AlgMD5:
		return parseDigestFields(tag, md5.New, strings.Split(rest, hashSeparator))
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrUnknownHashFormat, tag)
	}
}

func malformed(tag, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrUnknownHashFormat, tag, reason)
}

type pbkdf2Hash struct {
	tag        string
	digest     func() hash.Hash
	iterations int
	salt       string
	sum        []byte
}

func parsePBKDF2(tag string, digest func() hash.Hash, rest string) (PasswordHash, error) {
	fields := strings.Split(rest, hashSeparator)
	if len(fields) != 3 {
		return nil, malformed(tag, "expected iterations, salt and digest")
	}
	iterations, err := strconv.Atoi(fields[0])
	if err != nil || iterations < 1 {
		return nil, malformed(tag, "invalid iteration count")
	}
	if fields[1] == "" {
		return nil, malformed(tag, "empty salt")
	}
	sum, err := b64Std.DecodeString(fields[2])
	if err != nil || len(sum) != digest().Size() {
		return nil, malformed(tag, "invalid digest")
	}
	return &pbkdf2Hash{tag: tag, digest: digest, iterations: iterations, salt: fields[1], sum: sum}, nil
}

func (h *pbkdf2Hash) Algorithm() string { return h.tag }

func (h *pbkdf2Hash) Matches(password string) bool {
	derived := pbkdf2.Key([]byte(password), []byte(h.salt), h.iterations, len(h.sum), h.digest)
	return subtle.ConstantTimeCompare(derived, h.sum) == 1
}

type argon2Hash struct {
	variant string
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	sum     []byte
}

func parseArgon2(rest string) (PasswordHash, error) {
	fields := strings.Split(rest, hashSeparator)
	if len(fields) != 5 {
		return nil, malformed(AlgArgon2, "expected variant, version, parameters, salt and digest")
	}
	variant := fields[0]
	if variant != "argon2id" && variant != "argon2i" {
		return nil, malformed(AlgArgon2, "unsupported variant")
	}
	version, ok := strings.CutPrefix(fields[1], "v=")
	if !ok || version != strconv.Itoa(argon2.Version) {
		return nil, malformed(AlgArgon2, "unsupported version")
	}

	params := map[string]uint64{}
	for _, kv := range strings.Split(fields[2], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, malformed(AlgArgon2, "invalid parameter segment")
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, malformed(AlgArgon2, "invalid parameter value")
		}
		params[k] = n
	}
	m, t, p := params["m"], params["t"], params["p"]
	if m == 0 || t == 0 || p == 0 || p > 255 {
		return nil, malformed(AlgArgon2, "missing or out of range m/t/p")
	}

	salt, err := b64RawStd.DecodeString(fields[3])
	if err != nil || len(salt) == 0 {
		return nil, malformed(AlgArgon2, "invalid salt")
	}
	sum, err := b64RawStd.DecodeString(fields[4])
	if err != nil || len(sum) < 4 {
		return nil, malformed(AlgArgon2, "invalid digest")
	}
	return &argon2Hash{
		variant: variant,
		memory:  uint32(m),
		time:    uint32(t),
		threads: uint8(p),
		salt:    salt,
		sum:     sum,
	}, nil
}

func (h *argon2Hash) Algorithm() string { return AlgArgon2 }

func (h *argon2Hash) Matches(password string) bool {
	var derived []byte
	if h.variant == "argon2id" {
		derived = argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, uint32(len(h.sum)))
	} else {
		derived = argon2.Key([]byte(password), h.salt, h.time, h.memory, h.threads, uint32(len(h.sum)))
	}
	return subtle.ConstantTimeCompare(derived, h.sum) == 1
}

type bcryptHash struct {
	tag     string
	prehash bool
	encoded []byte
}

func parseBcrypt(tag, rest string, prehash bool) (PasswordHash, error) {
	// The embedded bcrypt string carries its own "$2b$<cost>$" prefix.
	if !strings.HasPrefix(rest, "$2") {
		return nil, malformed(tag, "missing bcrypt prefix")
	}
	if _, err := bcrypt.Cost([]byte(rest)); err != nil {
		return nil, malformed(tag, "invalid bcrypt hash")
	}
	return &bcryptHash{tag: tag, prehash: prehash, encoded: []byte(rest)}, nil
}

func (h *bcryptHash) Algorithm() string { return h.tag }

func (h *bcryptHash) Matches(password string) bool {
	secret := []byte(password)
	if h.prehash {
		sum := sha256.Sum256(secret)
		secret = []byte(hex.EncodeToString(sum[:]))
	}
	// CompareHashAndPassword compares in constant time.
	return bcrypt.CompareHashAndPassword(h.encoded, secret) == nil
}

type scryptHash struct {
	n, r, p int
	salt    string
	sum     []byte
}

func parseScrypt(rest string) (PasswordHash, error) {
	fields := strings.Split(rest, hashSeparator)
	if len(fields) != 5 {
		return nil, malformed(AlgScrypt, "expected n, salt, r, p and digest")
	}
	var nums [3]int
	for i, f := range []string{fields[0], fields[2], fields[3]} {
		v, err := strconv.Atoi(f)
		if err != nil || v < 1 {
			return nil, malformed(AlgScrypt, "invalid work factor")
		}
		nums[i] = v
	}
	if fields[1] == "" {
		return nil, malformed(AlgScrypt, "empty salt")
	}
	sum, err := b64Std.DecodeString(fields[4])
	if err != nil || len(sum) == 0 {
		return nil, malformed(AlgScrypt, "invalid digest")
	}
	return &scryptHash{n: nums[0], salt: fields[1], r: nums[1], p: nums[2], sum: sum}, nil
}

func (h *scryptHash) Algorithm() string { return AlgScrypt }

func (h *scryptHash) Matches(password string) bool {
	derived, err := scrypt.Key([]byte(password), []byte(h.salt), h.n, h.r, h.p, len(h.sum))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(derived, h.sum) == 1
}

// digestHash covers the salted (and unsalted) single-round sha1/md5 formats.
type digestHash struct {
	tag    string
	digest func() hash.Hash
	salt   string
	sum    []byte
}

func parseDigestFields(tag string, digest func() hash.Hash, fields []string) (PasswordHash, error) {
	if len(fields) != 2 {
		return nil, malformed(tag, "expected salt and digest")
	}
	// Only the lower-case form is accepted so every digest has a single spelling.
	if fields[1] != strings.ToLower(fields[1]) {
		return nil, malformed(tag, "invalid digest")
	}
	sum, err := hex.DecodeString(fields[1])
	if err != nil || len(sum) != digest().Size() {
		return nil, malformed(tag, "invalid digest")
	}
	return &digestHash{tag: tag, digest: digest, salt: fields[0], sum: sum}, nil
}

func (h *digestHash) Algorithm() string { return h.tag }

func (h *digestHash) Matches(password string) bool {
	d := h.digest()
	d.Write([]byte(h.salt + password))
	return subtle.ConstantTimeCompare(d.Sum(nil), h.sum) == 1
}

// MakePassword encodes password as pbkdf2_sha256 with the given salt and iteration count.
func MakePassword(password, salt string, iterations int) (string, error) {
	if salt == "" || strings.Contains(salt, hashSeparator) {
		return "", errors.New("salt must be non-empty and must not contain '$'")
	}
	if iterations < 1 {
		return "", fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	sum := pbkdf2.Key([]byte(password), []byte(salt), iterations, sha256.Size, sha256.New)
	return strings.Join([]string{
		AlgPBKDF2SHA256,
		strconv.Itoa(iterations),
		salt,
		base64.StdEncoding.EncodeToString(sum),
	}, hashSeparator), nil
}

// NewSalt returns a random alphanumeric salt suitable for MakePassword.
func NewSalt() (string, error) {
	return randomString(saltLength)
}

func randomString(length int) (string, error) {
	limit := big.NewInt(int64(len(saltAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = saltAlphabet[n.Int64()]
	}
	return string(b), nil
}

// HashPassword encodes password as pbkdf2_sha256 with a fresh random salt.
func HashPassword(password string, iterations int) (string, error) {
	salt, err := NewSalt()
	if err != nil {
		return "", err
	}
	return MakePassword(password, salt, iterations)
}
