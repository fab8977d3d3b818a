// Package password hashes and verifies user passwords with slow, salted
// algorithms. Verification never fails loudly: a malformed hash simply does
// not match.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// ErrTooLong is returned by the bcrypt hasher for passwords it would truncate.
var ErrTooLong = errors.New("password exceeds 72 bytes")

// Hasher is implemented by every supported password algorithm.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

// Config selects and tunes the hashing algorithm.
type Config struct {
	Algorithm   string
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
}

// DefaultConfig returns argon2id parameters suitable for interactive logins.
func DefaultConfig() Config {
	return Config{
		Algorithm:   AlgorithmArgon2id,
		Memory:      64 * 1024,
		Time:        2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		BcryptCost:  bcrypt.DefaultCost,
	}
}

// New builds the Hasher named by cfg.Algorithm. Zero tuning fields fall back
// to DefaultConfig.
func New(cfg Config) (Hasher, error) {
	def := DefaultConfig()
	switch strings.ToLower(strings.TrimSpace(cfg.Algorithm)) {
	case "", AlgorithmArgon2id:
		if cfg.Memory == 0 {
			cfg.Memory = def.Memory
		}
		if cfg.Time == 0 {
			cfg.Time = def.Time
		}
		if cfg.Parallelism == 0 {
			cfg.Parallelism = def.Parallelism
		}
		if cfg.SaltLength == 0 {
			cfg.SaltLength = def.SaltLength
		}
		if cfg.KeyLength == 0 {
			cfg.KeyLength = def.KeyLength
		}
		return &Argon2{
			memory:      cfg.Memory,
			time:        cfg.Time,
			parallelism: cfg.Parallelism,
			saltLength:  cfg.SaltLength,
			keyLength:   cfg.KeyLength,
		}, nil
	case AlgorithmBcrypt:
		cost := cfg.BcryptCost
		if cost == 0 {
			cost = def.BcryptCost
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
		}
		return &Bcrypt{cost: cost}, nil
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}
}

// Argon2 hashes with argon2id and encodes results in PHC string format.
type Argon2 struct {
	memory      uint32
	time        uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.time, a.memory, a.parallelism, a.keyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		AlgorithmArgon2id,
		argon2.Version,
		a.memory,
		a.time,
		a.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters stored in encoded, so hashes
// produced under older settings keep verifying.
func (a *Argon2) Verify(password, encoded string) bool {
	p, ok := parsePHC(encoded)
	if !ok {
		return false
	}
	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// upper bounds keep a hostile hash string from forcing huge allocations
const (
	maxMemory      = 1 << 22
	maxTime        = 64
	maxKeyLength   = 1024
	maxSaltLength  = 1024
	minSaltLength  = 8
	minKeyLength   = 16
	phcFieldsCount = 6
)

func parsePHC(encoded string) (phc, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != phcFieldsCount || parts[0] != "" || parts[1] != AlgorithmArgon2id {
		return phc{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return phc{}, false
	}

	var (
		p           phc
		parallelism uint32
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &parallelism); err != nil {
		return phc{}, false
	}
	if p.memory == 0 || p.memory > maxMemory || p.time == 0 || p.time > maxTime || parallelism == 0 || parallelism > 255 {
		return phc{}, false
	}
	p.parallelism = uint8(parallelism)

	var err error
	if p.salt, err = base64.RawStdEncoding.Strict().DecodeString(parts[4]); err != nil {
		return phc{}, false
	}
	if p.key, err = base64.RawStdEncoding.Strict().DecodeString(parts[5]); err != nil {
		return phc{}, false
	}
	if len(p.salt) < minSaltLength || len(p.salt) > maxSaltLength || len(p.key) < minKeyLength || len(p.key) > maxKeyLength {
		return phc{}, false
	}
	return p, true
}

// Bcrypt hashes with bcrypt at a fixed cost.
type Bcrypt struct {
	cost int
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) > 72 {
		return "", ErrTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (b *Bcrypt) Verify(password, encoded string) bool {
	// bcrypt compares in constant time and errors on malformed hashes
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
}
