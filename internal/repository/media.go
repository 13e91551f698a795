package repository

import "strings"

// MediaResolver builds public URLs for stored media ids. Media storage
// itself lives behind a separate service; the core only needs the URL.
type MediaResolver struct {
	baseURL string
}

func NewMediaResolver(baseURL string) *MediaResolver {
	return &MediaResolver{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// URL returns the public link for a media id; empty id yields empty URL.
func (m *MediaResolver) URL(mediaID string) string {
	if mediaID == "" {
		return ""
	}
	return m.baseURL + "/api/media/" + mediaID
}
