package transform

import (
	"regexp"
	"strings"
)

// MT messages carry their fields in block 4, bounded by "{4:" and "-}".
const (
	blockStart = "{4:"
	blockEnd   = "-}"
)

// Field tags are two digits optionally followed by one uppercase letter,
// wrapped in colons (":20:", ":32A:"). A field's value runs until the next
// tag or the end of the block.
var tagPattern = regexp.MustCompile(`:(\d{2}[A-Z]?):`)

// textBlock extracts the contents of block 4, or ok=false when the message
// has no recognizable text block.
func textBlock(msg string) (string, bool) {
	start := strings.Index(msg, blockStart)
	if start < 0 {
		return "", false
	}
	rest := msg[start+len(blockStart):]
	end := strings.Index(rest, blockEnd)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// parseFields splits a text block into tag → value. Later occurrences of a
// repeated tag win; MT field mapping here is best effort, not spec complete.
func parseFields(block string) map[string]string {
	matches := tagPattern.FindAllStringSubmatchIndex(block, -1)
	fields := make(map[string]string, len(matches))
	for i, m := range matches {
		tag := block[m[2]:m[3]]
		valStart := m[1]
		valEnd := len(block)
		if i+1 < len(matches) {
			valEnd = matches[i+1][0]
		}
		fields[tag] = strings.Trim(block[valStart:valEnd], "\r\n")
	}
	return fields
}

// renderBlock assembles a text block from ordered tag/value pairs.
func renderBlock(tags []string, fields map[string]string) string {
	var b strings.Builder
	b.WriteString(blockStart)
	b.WriteString("\n")
	for _, tag := range tags {
		val, ok := fields[tag]
		if !ok {
			continue
		}
		b.WriteString(":")
		b.WriteString(tag)
		b.WriteString(":")
		b.WriteString(val)
		b.WriteString("\n")
	}
	b.WriteString(blockEnd)
	return b.String()
}

// deriveInstitution turns a customer field (name-and-address lines, possibly
// preceded by a /account line) into an institution identifier: the first
// non-account line, uppercased, stripped to alphanumerics, capped at BIC
// length.
func deriveInstitution(customer string) string {
	for _, line := range strings.Split(customer, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "/") {
			continue
		}
		var b strings.Builder
		for _, r := range strings.ToUpper(line) {
			if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
		id := b.String()
		if len(id) > 11 {
			id = id[:11]
		}
		return id
	}
	return ""
}
