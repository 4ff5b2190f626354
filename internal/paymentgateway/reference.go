package paymentgateway

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const referenceSuffixLen = 9

var base36Max = big.NewInt(36)

// GenerateReference returns PAY_<unix-ms>_<9 random base36 chars>, upper-cased.
// Uniqueness is finally enforced by the payments.payment_reference index.
func GenerateReference() string {
	var b strings.Builder
	b.WriteString("PAY_")
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	b.WriteByte('_')
	for i := 0; i < referenceSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, base36Max)
		if err != nil {
			n = big.NewInt(time.Now().UnixNano() % 36)
		}
		b.WriteString(strconv.FormatInt(n.Int64(), 36))
	}
	return strings.ToUpper(b.String())
}
