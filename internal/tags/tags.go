// Package tags reconciles prior and AI-suggested tag lists.
package tags

import "strings"

// Reconciler merges tag lists under a size cap. Provenance tags survive the
// cap unconditionally.
type Reconciler struct {
	max        int
	provenance map[string]struct{}
}

// NewReconciler creates a Reconciler keeping at most max tags (max <= 0
// disables the cap). provenance lists the directory tags that must never be
// evicted.
func NewReconciler(max int, provenance []string) *Reconciler {
	r := &Reconciler{max: max, provenance: make(map[string]struct{}, len(provenance))}
	for _, p := range provenance {
		r.provenance[p] = struct{}{}
	}
	return r
}

// Merge returns prior followed by ai, each tag trimmed, ASCII tags
// lower-cased, empties dropped and duplicates removed in first-seen order.
func (r *Reconciler) Merge(ai, prior []string) []string {
	seen := make(map[string]struct{}, len(ai)+len(prior))
	out := make([]string, 0, len(ai)+len(prior))

	add := func(tag string) {
		tag = Fold(tag)
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, t := range prior {
		add(t)
	}
	for _, t := range ai {
		add(t)
	}

	if r.max <= 0 || len(out) <= r.max {
		return out
	}

	var kept, rest []string
	for _, t := range out {
		if r.IsProvenance(t) {
			kept = append(kept, t)
		} else {
			rest = append(rest, t)
		}
	}
	if room := r.max - len(kept); room > 0 {
		if room > len(rest) {
			room = len(rest)
		}
		kept = append(kept, rest[:room]...)
	}
	return kept
}

// IsProvenance reports whether tag is a configured directory tag.
func (r *Reconciler) IsProvenance(tag string) bool {
	_, ok := r.provenance[tag]
	return ok
}

// Fold trims tag and lower-cases it when it is pure ASCII.
func Fold(tag string) string {
	tag = strings.TrimSpace(tag)
	if isASCII(tag) {
		return strings.ToLower(tag)
	}
	return tag
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
