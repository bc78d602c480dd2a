package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// SaleCode returns a human-readable unique receipt code.
func SaleCode() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("SALE-%d", time.Now().UnixMilli())
	}
	return fmt.Sprintf("SALE-%d-%s", time.Now().UnixMilli(), strings.ToUpper(hex.EncodeToString(buf)))
}
