package directory

import (
	"crypto/rand"
	"math/big"
)

const (
	lower  = "abcdefghijklmnopqrstuvwxyz"
	upper  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits = "0123456789"
)

// Generator produces a fresh random code.
type Generator func() string

// UserCode draws 4 lowercase letters, 2 uppercase letters, a dash and 4 digits.
func UserCode() string {
	return draw(lower, 4) + draw(upper, 2) + "-" + draw(digits, 4)
}

// GroupCode draws 3 digits, 3 uppercase letters, 3 digits and 1 uppercase letter.
func GroupCode() string {
	return draw(digits, 3) + draw(upper, 3) + draw(digits, 3) + draw(upper, 1)
}

func draw(alphabet string, n int) string {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}
