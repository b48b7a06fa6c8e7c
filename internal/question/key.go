package question

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Derive returns the cache key for a title and its options: an MD5 hex digest
// of "title|options" where options are joined one per line. The layout
// matches rows written by earlier deployments, so existing answer caches
// stay valid.
//
// The separators are not escaped, so a "|" in the title or a newline inside
// an option can make two different questions share a key: ("x|y", ["z"])
// and ("x", ["y|z"]) collide, as do ("q", ["A\nB"]) and ("q", ["A", "B"]).
// Normalize trims options but does not reject these characters.
//
// Option order is significant. The question type is not part of the digest.
func Derive(title string, options []string) string {
	sum := md5.Sum([]byte(title + "|" + strings.Join(options, "\n")))
	return hex.EncodeToString(sum[:])
}

// Key derives the cache key for q. When withType is set the type label is
// folded into the digest so the same text under different types gets its
// own cache line.
func (q Question) Key(withType bool) string {
	if withType {
		return Derive(string(q.Type)+"|"+q.Title, q.Options)
	}
	return Derive(q.Title, q.Options)
}
