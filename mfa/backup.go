package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"strings"
)

// BackupCode is the stored form of a recovery code: a per-code salt and the
// salted SHA-256 digest. The plaintext code is handed to the user once at
// generation time and never persisted.
type BackupCode struct {
	Salt string `json:"salt"`
	Hash string `json:"hash"`
}

const (
	backupCodeBytes = 5 // 8 base32 chars per half
	backupSaltBytes = 16
)

var backupEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateBackupCodes mints the configured number of single-use recovery
// codes, returning the plaintext codes alongside their stored hashes.
func (c *Coordinator) GenerateBackupCodes() ([]string, []BackupCode, error) {
	codes := make([]string, c.config.BackupCodeCount)
	records := make([]BackupCode, c.config.BackupCodeCount)

	for i := range codes {
		raw := make([]byte, backupCodeBytes*2)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		code := backupEncoding.EncodeToString(raw[:backupCodeBytes]) +
			"-" + backupEncoding.EncodeToString(raw[backupCodeBytes:])

		record, err := hashBackupCode(code)
		if err != nil {
			return nil, nil, err
		}
		codes[i] = code
		records[i] = record
	}
	return codes, records, nil
}

func hashBackupCode(code string) (BackupCode, error) {
	salt := make([]byte, backupSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return BackupCode{}, err
	}
	digest := saltedDigest(salt, code)
	return BackupCode{
		Salt: base64.RawStdEncoding.EncodeToString(salt),
		Hash: base64.RawStdEncoding.EncodeToString(digest),
	}, nil
}

func saltedDigest(salt []byte, code string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(normalizeBackupCode(code)))
	return h.Sum(nil)
}

func normalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// MatchBackupCode returns the index of the record that matches code, or -1.
// The caller must remove the matched record so a replayed code fails; see
// ConsumeBackupCode on the engine.
func (c *Coordinator) MatchBackupCode(code string, records []BackupCode) int {
	match := -1
	for i, record := range records {
		salt, err := base64.RawStdEncoding.DecodeString(record.Salt)
		if err != nil {
			continue
		}
		want, err := base64.RawStdEncoding.DecodeString(record.Hash)
		if err != nil {
			continue
		}
		// Check every record even after a hit to keep timing flat.
		if subtle.ConstantTimeCompare(saltedDigest(salt, code), want) == 1 && match < 0 {
			match = i
		}
	}
	return match
}
