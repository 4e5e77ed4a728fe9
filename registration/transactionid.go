package registration

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const (
	transactionIDPrefix = "KONEKTE"
	suffixLength        = 9
	base36              = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var transactionIDPattern = regexp.MustCompile(`^KONEKTE-[0-9]+-[0-9a-z]{9}$`)

// NewTransactionID builds KONEKTE-<unix millis>-<9 random base36 chars>. Uniqueness is not
// guaranteed, a collision surfaces as a conflict from the store.
func NewTransactionID(now time.Time) string {
	random := uuid.New()

	suffix := make([]byte, suffixLength)
	for i := range suffix {
		suffix[i] = base36[int(random[i])%len(base36)]
	}

	return fmt.Sprintf("%s-%d-%s", transactionIDPrefix, now.UnixMilli(), suffix)
}

func IsTransactionID(s string) bool {
	return transactionIDPattern.MatchString(s)
}
