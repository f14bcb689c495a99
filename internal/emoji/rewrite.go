package emoji

import "strings"

type segmentKind int

const (
	segLiteral segmentKind = iota
	segCanonical
	segBare
)

type segment struct {
	kind     segmentKind
	raw      string
	name     string // canonical and bare only
	id       string // canonical only
	animated bool   // canonical only
}

// tokenize splits text in one left-to-right pass into literal runs, canonical
// references (<:name:id>, <a:name:id>) and bare references (:name:).
// Concatenating every raw field yields text again.
func tokenize(text string) []segment {
	var segs []segment
	litStart := 0

	flush := func(end int) {
		if end > litStart {
			segs = append(segs, segment{kind: segLiteral, raw: text[litStart:end]})
		}
	}

	for i := 0; i < len(text); {
		var (
			seg segment
			n   int
		)
		switch text[i] {
		case '<':
			seg, n = scanCanonical(text[i:])
		case ':':
			seg, n = scanBare(text[i:])
		}
		if n == 0 {
			i++
			continue
		}
		flush(i)
		segs = append(segs, seg)
		i += n
		litStart = i
	}
	flush(len(text))
	return segs
}

// scanCanonical matches <:name:id> or <a:name:id> at the start of s.
func scanCanonical(s string) (segment, int) {
	i := 1
	animated := i < len(s) && s[i] == 'a'
	if animated {
		i++
	}
	if i >= len(s) || s[i] != ':' {
		return segment{}, 0
	}
	i++
	nameStart := i
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	if i == nameStart || i >= len(s) || s[i] != ':' {
		return segment{}, 0
	}
	name := s[nameStart:i]
	i++
	idStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == idStart || i >= len(s) || s[i] != '>' {
		return segment{}, 0
	}
	id := s[idStart:i]
	i++
	return segment{kind: segCanonical, raw: s[:i], name: name, id: id, animated: animated}, i
}

// scanBare matches :name: at the start of s. Length limits are checked by the
// caller so an over-long token still passes through as one unit.
func scanBare(s string) (segment, int) {
	i := 1
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	if i == 1 || i >= len(s) || s[i] != ':' {
		return segment{}, 0
	}
	i++
	return segment{kind: segBare, raw: s[:i], name: s[1 : i-1]}, i
}

// Rewrite replaces bare :name: references to known emoji with their inline
// tag and counts every resolved reference as a use. A canonical reference
// counts only when its id and animated marker match the known emoji. Unknown or
// malformed references are left as written. Counting is skipped when self is true.
func (c *Cache) Rewrite(text string, self bool) string {
	if !strings.ContainsRune(text, ':') {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range tokenize(text) {
		switch seg.kind {
		case segBare:
			if !ValidName(seg.name) {
				b.WriteString(seg.raw)
				continue
			}
			sym, ok := c.Resolve(seg.name)
			if !ok {
				b.WriteString(seg.raw)
				continue
			}
			c.RecordUse(sym.Name, self)
			b.WriteString(sym.Tag())
		case segCanonical:
			if sym, ok := c.Resolve(seg.name); ok && sym.ID == seg.id && sym.Animated == seg.animated {
				c.RecordUse(sym.Name, self)
			}
			b.WriteString(seg.raw)
		default:
			b.WriteString(seg.raw)
		}
	}
	return b.String()
}
