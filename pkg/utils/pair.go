package utils

// PairKey returns an order-independent key for two user ids.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "#" + b
}
