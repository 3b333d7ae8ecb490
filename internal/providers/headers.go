package providers

import "net/http"

// MergeHeaders builds the union model.headers ⊕ options.headers ⊕ extra
// (later maps win on conflict), matching spec 4.D step 1. Keys are
// applied in the given case; callers that need Google's lower-cased
// convention should pass already-lower-cased extra keys.
func MergeHeaders(layers ...map[string]string) http.Header {
	h := http.Header{}
	for _, layer := range layers {
		for k, v := range layer {
			h.Set(k, v)
		}
	}
	return h
}

// LowerKeys returns a copy of m with every key lower-cased, used by the
// Google adapter which normalises headers to lower case (spec 4.D step 1).
func LowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[toLower(k)] = v
	}
	return out
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
