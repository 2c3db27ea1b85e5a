package core

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const testPassword = "s3cret-Passw0rd"

func pbkdf2Fixture(t *testing.T, tag string, password, salt string, iterations int) string {
	t.Helper()
	var sum []byte
	switch tag {
	case AlgPBKDF2SHA256:
		sum = pbkdf2.Key([]byte(password), []byte(salt), iterations, sha256.Size, sha256.New)
	case AlgPBKDF2SHA1:
		sum = pbkdf2.Key([]byte(password), []byte(salt), iterations, sha1.Size, sha1.New)
	default:
		t.Fatalf("unexpected tag %s", tag)
	}
	return fmt.Sprintf("%s$%d$%s$%s", tag, iterations, salt, base64.StdEncoding.EncodeToString(sum))
}

func argon2Fixture(variant, password string, salt []byte) string {
	var sum []byte
	if variant == "argon2id" {
		sum = argon2.IDKey([]byte(password), salt, 1, 64, 1, 32)
	} else {
		sum = argon2.Key([]byte(password), salt, 1, 64, 1, 32)
	}
	return fmt.Sprintf("argon2$%s$v=19$m=64,t=1,p=1$%s$%s", variant,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(sum))
}

func scryptFixture(t *testing.T, password, salt string) string {
	t.Helper()
	sum, err := scrypt.Key([]byte(password), []byte(salt), 16, 8, 1, 64)
	require.NoError(t, err)
	return fmt.Sprintf("scrypt$16$%s$8$1$%s", salt, base64.StdEncoding.EncodeToString(sum))
}

func bcryptFixture(t *testing.T, password string, prehash bool) string {
	t.Helper()
	secret := []byte(password)
	tag := AlgBcrypt
	if prehash {
		sum := sha256.Sum256(secret)
		secret = []byte(hex.EncodeToString(sum[:]))
		tag = AlgBcryptSHA256
	}
	h, err := bcrypt.GenerateFromPassword(secret, bcrypt.MinCost)
	require.NoError(t, err)
	return tag + "$" + string(h)
}

func digestFixture(tag, password, salt string) string {
	var sum []byte
	switch tag {
	case AlgSHA1:
		s := sha1.Sum([]byte(salt + password))
		sum = s[:]
	default:
		s := md5.Sum([]byte(salt + password))
		sum = s[:]
	}
	return fmt.Sprintf("%s$%s$%s", tag, salt, hex.EncodeToString(sum))
}

func allFixtures(t *testing.T) map[string]string {
	return map[string]string{
		"pbkdf2_sha256": pbkdf2Fixture(t, AlgPBKDF2SHA256, testPassword, "abcDEF123456ghiJKL7890", 1000),
		"pbkdf2_sha1":   pbkdf2Fixture(t, AlgPBKDF2SHA1, testPassword, "saltsaltsalt", 1000),
		"argon2id":      argon2Fixture("argon2id", testPassword, []byte("0123456789abcdef")),
		"argon2i":       argon2Fixture("argon2i", testPassword, []byte("fedcba9876543210")),
		"bcrypt":        bcryptFixture(t, testPassword, false),
		"bcrypt_sha256": bcryptFixture(t, testPassword, true),
		"scrypt":        scryptFixture(t, testPassword, "scryptsalt"),
		"sha1 salted":   digestFixture(AlgSHA1, testPassword, "abc12"),
		"sha1 unsalted": digestFixture(AlgSHA1, testPassword, ""),
		"md5 salted":    digestFixture(AlgMD5, testPassword, "xyz98"),
		"md5 unsalted":  digestFixture(AlgMD5, testPassword, ""),
		"md5 bare hex":  strings.TrimPrefix(digestFixture(AlgMD5, testPassword, ""), "md5$$"),
		"make_password": mustMakePassword(t, testPassword, "R4nd0mSaltValue1234567", 1000),
	}
}

func mustMakePassword(t *testing.T, password, salt string, iterations int) string {
	t.Helper()
	h, err := MakePassword(password, salt, iterations)
	require.NoError(t, err)
	return h
}

func TestCheckPasswordRoundTrip(t *testing.T) {
	for name, stored := range allFixtures(t) {
		t.Run(name, func(t *testing.T) {
			assert.True(t, CheckPassword(testPassword, stored), "correct password must match")
			assert.False(t, CheckPassword(testPassword+"x", stored), "wrong password must not match")
			assert.False(t, CheckPassword("", stored), "empty password must not match")
		})
	}
}

func TestCheckPasswordKnownDigests(t *testing.T) {
	assert.True(t, CheckPassword("password", "5f4dcc3b5aa765d61d8327deb882cf99"))
	assert.True(t, CheckPassword("password", "md5$$5f4dcc3b5aa765d61d8327deb882cf99"))
	assert.True(t, CheckPassword("password", "sha1$$5baa61e4c9b93f3f0682250b6cf8331b7ee68fd8"))
	assert.False(t, CheckPassword("password", "sha1$$5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8"))
}

// Produced by Django's PBKDF2PasswordHasher and Python's hashlib for "lètmein".
func TestCheckPasswordExternalVectors(t *testing.T) {
	vectors := map[string]string{
		AlgPBKDF2SHA256: "pbkdf2_sha256$260000$seasalt$YlZ2Vggtqdc61YjArZuoApoBh9JNGYoDRBUGu6tcJQo=",
		AlgPBKDF2SHA1:   "pbkdf2_sha1$260000$seasalt2$wAibXvW6jgvatCdONi6SMJ6q7mI=",
		AlgScrypt:       "scrypt$16384$seasalt$8$1$Qj3+9PPyRjSJIebHnG81TMjsqtaIGxNQG/aEB/NYafTJ7tibgfYz71m0ldQESkXFRkdVCBhhY8mx7rQwite/Pw==",
		AlgSHA1:         "sha1$seasalt$cff36ea83f5706ce9aa7454e63e431fc726b2dc8",
		AlgMD5:          "md5$seasalt$3f86d0d3d465b7b458c231bf3555c0e3",
	}
	for alg, stored := range vectors {
		t.Run(alg, func(t *testing.T) {
			h, err := ParsePasswordHash(stored)
			require.NoError(t, err)
			assert.Equal(t, alg, h.Algorithm())
			assert.True(t, CheckPassword("lètmein", stored))
			assert.False(t, CheckPassword("letmein", stored))
		})
	}
}

// flipFirst replaces the first character of s with '0', or '1' if it already is '0'.
func flipFirst(s string) string {
	if s == "" {
		return s
	}
	if s[0] == '0' {
		return "1" + s[1:]
	}
	return "0" + s[1:]
}

func TestCheckPasswordTamperedHash(t *testing.T) {
	cases := map[string]struct {
		stored    string
		saltField int
	}{
		"pbkdf2_sha256": {pbkdf2Fixture(t, AlgPBKDF2SHA256, testPassword, "abcDEF123456ghiJKL7890", 1000), 2},
		"pbkdf2_sha1":   {pbkdf2Fixture(t, AlgPBKDF2SHA1, testPassword, "saltsaltsalt", 1000), 2},
		"argon2id":      {argon2Fixture("argon2id", testPassword, []byte("0123456789abcdef")), 4},
		"scrypt":        {scryptFixture(t, testPassword, "scryptsalt"), 2},
		"sha1 salted":   {digestFixture(AlgSHA1, testPassword, "abc12"), 1},
		"md5 salted":    {digestFixture(AlgMD5, testPassword, "xyz98"), 1},
	}

	for name, tc := range cases {
		t.Run(name+" salt", func(t *testing.T) {
			fields := strings.Split(tc.stored, "$")
			fields[tc.saltField] = flipFirst(fields[tc.saltField])
			assert.False(t, CheckPassword(testPassword, strings.Join(fields, "$")))
		})
		t.Run(name+" digest", func(t *testing.T) {
			fields := strings.Split(tc.stored, "$")
			last := len(fields) - 1
			fields[last] = flipFirst(fields[last])
			assert.False(t, CheckPassword(testPassword, strings.Join(fields, "$")))
		})
	}
}

func TestCheckPasswordMalformed(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"unknown$1$salt$hash",
		"pbkdf2_sha256$abc$salt$aGFzaA==",
		"pbkdf2_sha256$0$salt$aGFzaA==",
		"pbkdf2_sha256$1000$salt",
		"pbkdf2_sha256$1000$salt$not base64!",
		"argon2$argon2d$v=19$m=64,t=1,p=1$c2FsdA$aGFzaGhhc2g",
		"argon2$argon2id$v=16$m=64,t=1,p=1$c2FsdA$aGFzaGhhc2g",
		"argon2$argon2id$v=19$m=64,t=1$c2FsdA$aGFzaGhhc2g",
		"bcrypt$notbcrypt",
		"bcrypt_sha256$$2b$xx$invalid",
		"scrypt$16$salt$8$1",
		"scrypt$x$salt$8$1$aGFzaA==",
		"sha1$salt$zz",
		"md5$salt$abcd",
		"md5$a$b$c",
	}
	for _, stored := range cases {
		assert.False(t, CheckPassword(testPassword, stored), "stored %q", stored)
		_, err := ParsePasswordHash(stored)
		assert.ErrorIs(t, err, ErrUnknownHashFormat, "stored %q", stored)
	}
}

func TestParsePasswordHashAlgorithm(t *testing.T) {
	fixtures := allFixtures(t)
	want := map[string]string{
		"pbkdf2_sha256": AlgPBKDF2SHA256,
		"pbkdf2_sha1":   AlgPBKDF2SHA1,
		"argon2id":      AlgArgon2,
		"bcrypt":        AlgBcrypt,
		"bcrypt_sha256": AlgBcryptSHA256,
		"scrypt":        AlgScrypt,
		"sha1 salted":   AlgSHA1,
		"md5 bare hex":  AlgMD5,
	}
	for name, alg := range want {
		h, err := ParsePasswordHash(fixtures[name])
		require.NoError(t, err, name)
		assert.Equal(t, alg, h.Algorithm(), name)
	}
}

func TestMakePassword(t *testing.T) {
	h, err := MakePassword("pw", "somesalt", 1200)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h, "pbkdf2_sha256$1200$somesalt$"))
	assert.True(t, CheckPassword("pw", h))

	_, err = MakePassword("pw", "", 1000)
	assert.Error(t, err)
	_, err = MakePassword("pw", "a$b", 1000)
	assert.Error(t, err)
	_, err = MakePassword("pw", "salt", 0)
	assert.Error(t, err)
}

func TestNewSalt(t *testing.T) {
	a, err := NewSalt()
	require.NoError(t, err)
	b, err := NewSalt()
	require.NoError(t, err)

	assert.Len(t, a, saltLength)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.Contains(t, saltAlphabet, string(r))
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("hunter2", 1000)
	require.NoError(t, err)
	assert.True(t, CheckPassword("hunter2", h))
	assert.False(t, CheckPassword("hunter3", h))
}
