package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateNanoIDWithPrefix returns an id like "alias_x7k2..." used as a
// primary key across all models.
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(nanoIDAlphabet, length)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}

// GenerateDecoyToken returns a 128-bit random token, hex encoded. The token
// space is large enough that an accidental substring collision in mail
// content is negligible.
func GenerateDecoyToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// GenerateMessageID creates an RFC 5322 message id for outbound mail.
func GenerateMessageID(domain string) string {
	id, err := gonanoid.Generate(nanoIDAlphabet, 12)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixMicro(), id, domain)
}
