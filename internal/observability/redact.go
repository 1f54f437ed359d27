package observability

import (
	"regexp"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/chaincfg"
	"github.com/sirupsen/logrus"
)

// sensitiveFieldNames are redacted by name regardless of value shape.
var sensitiveFieldNames = map[string]bool{
	"password":    true,
	"api_key":     true,
	"apikey":      true,
	"private_key": true,
	"privatekey":  true,
	"secret":      true,
	"token":       true,
}

const redactedPlaceholder = "[REDACTED]"

var hexPrivateKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
var wifPattern = regexp.MustCompile(`^[5KL][1-9A-HJ-NP-Za-km-z]{50,51}$`)

// RedactionHook scrubs sensitive field names and value shapes (Bitcoin
// addresses, WIF/hex private keys) from every log entry before it is
// written.
type RedactionHook struct{}

func (h *RedactionHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *RedactionHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		if sensitiveFieldNames[strings.ToLower(k)] {
			entry.Data[k] = redactedPlaceholder
			continue
		}
		if s, ok := v.(string); ok && looksSensitive(s) {
			entry.Data[k] = redactedPlaceholder
		}
	}
	return nil
}

func looksSensitive(s string) bool {
	if hexPrivateKeyPattern.MatchString(s) {
		return true
	}
	if wifPattern.MatchString(s) {
		return true
	}
	if isBitcoinAddress(s) {
		return true
	}
	return false
}

// isBitcoinAddress checks whether s decodes as a valid address on any
// network this daemon supports, using real checksum validation rather than
// a shape-only regex (cutting both false positives on random base58
// strings and false negatives on valid addresses a regex would miss).
func isBitcoinAddress(s string) bool {
	for _, params := range []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params, &chaincfg.RegressionNetParams} {
		if _, err := btcutil.DecodeAddress(s, params); err == nil {
			return true
		}
	}
	return false
}
