package idempotency

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

// ErrMalformedKey is returned for client-supplied keys that are neither a UUID nor a 64-hex fingerprint
var ErrMalformedKey = errors.New("malformed idempotency key")

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Intent describes a business action independent of when it was requested.
// Timestamps are deliberately not part of it: the same intent retried later is the same intent.
type Intent struct {
	Action  string
	Targets []string
	Amount  money.Amount
}

// NewIntent builds an intent; targets are typed ids such as "payment:42"
func NewIntent(action string, amount money.Amount, targets ...string) Intent {
	return Intent{Action: action, Targets: targets, Amount: amount}
}

// canonical renders the intent as action|t1,t2|amount with normalised parts
func (i Intent) canonical() string {
	targets := make([]string, len(i.Targets))
	for idx, t := range i.Targets {
		targets[idx] = strings.TrimSpace(t)
	}
	return strings.ToLower(strings.TrimSpace(i.Action)) + "|" +
		strings.Join(targets, ",") + "|" +
		strconv.FormatInt(i.Amount.Minor(), 10)
}

// Key derives the deterministic fingerprint of the intent (hex BLAKE2b-256)
func (i Intent) Key() string {
	sum := blake2b.Sum256([]byte(i.canonical()))
	return hex.EncodeToString(sum[:])
}

// ValidateClientKey accepts a UUID or a 64 character lowercase hex fingerprint
func ValidateClientKey(key string) error {
	if fingerprintPattern.MatchString(key) {
		return nil
	}
	if _, err := uuid.Parse(key); err == nil && len(key) == 36 {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrMalformedKey, key)
}

// ResolveKey returns the client key when one is supplied (after validation),
// otherwise the fingerprint of the intent
func ResolveKey(clientKey string, intent Intent) (string, error) {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		return intent.Key(), nil
	}
	if err := ValidateClientKey(clientKey); err != nil {
		return "", err
	}
	return strings.ToLower(clientKey), nil
}
