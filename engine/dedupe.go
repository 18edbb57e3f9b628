package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"warptrace/core"
)

// Dedupe collapses structurally identical findings, keeping the first
// occurrence of each key and preserving relative order. Output size is
// always ≤ input size, and deduping is idempotent.
func Dedupe(findings []core.Finding) []core.Finding {
	seen := make(map[string]struct{}, len(findings))
	unique := make([]core.Finding, 0, len(findings))
	for i := range findings {
		key := structuralKey(&findings[i])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, findings[i])
	}
	return unique
}

// structuralKey hashes the canonical encoding of (kind, reason, meta).
// Canonicalization sorts mapping keys recursively and preserves sequence
// order, so two findings differing only in map iteration order collide
// while differently ordered id lists stay distinct.
func structuralKey(f *core.Finding) string {
	h := sha256.New()
	h.Write([]byte(f.Kind))
	h.Write([]byte{0})
	h.Write([]byte(f.Reason))
	h.Write([]byte{0})
	var sb strings.Builder
	writeCanonical(&sb, f.Meta)
	h.Write([]byte(sb.String()))
	return hex.EncodeToString(h.Sum(nil))
}

func writeCanonical(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "%q:", k)
			writeCanonical(sb, x[k])
		}
		sb.WriteByte('}')
	case []int64:
		sb.WriteByte('[')
		for i, n := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.FormatInt(n, 10))
		}
		sb.WriteByte(']')
	case []string:
		sb.WriteByte('[')
		for i, s := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "%q", s)
		}
		sb.WriteByte(']')
	case []any:
		sb.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	case string:
		fmt.Fprintf(sb, "%q", x)
	case bool:
		sb.WriteString(strconv.FormatBool(x))
	case int:
		sb.WriteString(strconv.Itoa(x))
	case int64:
		sb.WriteString(strconv.FormatInt(x, 10))
	case float64:
		sb.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	default:
		fmt.Fprintf(sb, "%v", x)
	}
}
