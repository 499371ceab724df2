package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/medkeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters for stored password hashes.
const (
	passwordTime    = uint32(1)
	passwordMemory  = uint32(64 * 1024)
	passwordThreads = uint8(4)
	passwordKeyLen  = uint32(32)
	passwordSaltLen = 16
)

// Bounds accepted when a hash comes from outside, e.g. a backup document.
// Memory is in KiB.
const (
	maxPasswordTime    = 16
	maxPasswordMemory  = 1024 * 1024
	maxPasswordThreads = 64
	minPasswordSaltLen = 8
	maxPasswordSaltLen = 64
	minPasswordKeyLen  = 16
	maxPasswordKeyLen  = 64
)

var ErrInvalidHash = errors.New("cryptox: invalid password hash")

// PasswordHash is a decoded argon2id PHC string.
type PasswordHash struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	Salt    []byte
	Key     []byte
}

// HashPassword returns an argon2id hash of password in PHC string form:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func HashPassword(password []byte) (string, error) {
	salt := common.GenerateRandByteArray(passwordSaltLen)
	hash := argon2.IDKey(password, salt, passwordTime, passwordMemory, passwordThreads, passwordKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, passwordMemory, passwordTime, passwordThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// ParsePasswordHash decodes an argon2id PHC string and checks every
// parameter against sane bounds. Any problem yields ErrInvalidHash.
func ParsePasswordHash(encoded string) (*PasswordHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrInvalidHash
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version", ErrInvalidHash)
	}

	params := map[string]uint64{}
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: malformed parameters", ErrInvalidHash)
		}
		if _, dup := params[k]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %s", ErrInvalidHash, k)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %s", ErrInvalidHash, k)
		}
		params[k] = n
	}
	if len(params) != 3 {
		return nil, fmt.Errorf("%w: malformed parameters", ErrInvalidHash)
	}
	m, okM := params["m"]
	t, okT := params["t"]
	p, okP := params["p"]
	if !okM || !okT || !okP {
		return nil, fmt.Errorf("%w: malformed parameters", ErrInvalidHash)
	}
	if t < 1 || t > maxPasswordTime {
		return nil, fmt.Errorf("%w: time %d out of range", ErrInvalidHash, t)
	}
	if p < 1 || p > maxPasswordThreads {
		return nil, fmt.Errorf("%w: parallelism %d out of range", ErrInvalidHash, p)
	}
	// argon2 needs at least 8 KiB per lane
	if m < 8*p || m > maxPasswordMemory {
		return nil, fmt.Errorf("%w: memory %d out of range", ErrInvalidHash, m)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < minPasswordSaltLen || len(salt) > maxPasswordSaltLen {
		return nil, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < minPasswordKeyLen || len(key) > maxPasswordKeyLen {
		return nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}

	return &PasswordHash{
		Time:    uint32(t),
		Memory:  uint32(m),
		Threads: uint8(p),
		Salt:    salt,
		Key:     key,
	}, nil
}

// VerifyPassword checks password against an encoded hash produced by
// HashPassword. The comparison is constant time.
func VerifyPassword(password []byte, encoded string) (bool, error) {
	h, err := ParsePasswordHash(encoded)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey(password, h.Salt, h.Time, h.Memory, h.Threads, uint32(len(h.Key)))
	return subtle.ConstantTimeCompare(got, h.Key) == 1, nil
}
