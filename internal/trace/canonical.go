package trace

import "golang.org/x/text/unicode/norm"

// CanonicalLabel normalizes a journal label to Unicode NFC. Entity labels
// come from arbitrary program models; without normalization, "café" in NFC
// and NFD would journal as two different slots.
func CanonicalLabel(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}
