package remote

import "strings"

const collectionPrefix = "chunks"

// CollectionName returns the server-side collection holding embeddings for
// one profile/table pair: chunks_{profile}_{table}. Each part is lower-cased
// and anything outside [a-z0-9_] becomes '_'. The client and the server must
// agree on this exactly since nothing else links them.
func CollectionName(profile, table string) string {
	return collectionPrefix + "_" + sanitize(profile) + "_" + sanitize(table)
}

func sanitize(part string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(part))
}
