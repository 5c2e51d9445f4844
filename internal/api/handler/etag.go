package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// GenerateETag builds a strong ETag from a resource's id and version.
// Format: "<resource_type>-<id>-<version>"
func GenerateETag(resourceType, id string, version int64) string {
	return fmt.Sprintf(`"%s-%s-%d"`, resourceType, id, version)
}

// ListETag builds an ETag for a collection from the tags of its items.
func ListETag(resourceType string, itemTags []string) string {
	h := sha256.New()
	for _, t := range itemTags {
		h.Write([]byte(t))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf(`"%s-list-%s"`, resourceType, hex.EncodeToString(h.Sum(nil))[:16])
}

// NotModified sets the ETag header and reports whether the client's copy is
// current, in which case a 304 has already been written.
//
// If-None-Match may carry several tags separated by commas, or "*".
func NotModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)

	ifNoneMatch := r.Header.Get("If-None-Match")
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}
