package models

import "strings"

// Collection names under users/{uid}
const (
	CollectionUsers        = "users"
	CollectionServers      = "servers"
	CollectionServersMeta  = "servers_meta"
	CollectionMedia        = "media"
	CollectionPlayback     = "playback"
	CollectionCollections  = "collections"
	CollectionIntegrations = "integrations_cache"
	CollectionIntegMeta    = "integrations_meta"
	CollectionClaims       = "claims"
)

func docPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// ServerPath returns users/{uid}/servers/{serverID}
func ServerPath(uid, serverID string) string {
	return docPath(CollectionUsers, uid, CollectionServers, serverID)
}

// RateLimitPath returns users/{uid}/servers_meta/rateLimit
func RateLimitPath(uid string) string {
	return docPath(CollectionUsers, uid, CollectionServersMeta, "rateLimit")
}

// MediaPath returns users/{uid}/media/{mediaID}
func MediaPath(uid, mediaID string) string {
	return docPath(CollectionUsers, uid, CollectionMedia, mediaID)
}

// PlaybackPath returns users/{uid}/playback/{mediaID}
func PlaybackPath(uid, mediaID string) string {
	return docPath(CollectionUsers, uid, CollectionPlayback, mediaID)
}

// TMDBCachePath returns users/{uid}/integrations_cache/tmdb/{key}
func TMDBCachePath(uid, key string) string {
	return docPath(CollectionUsers, uid, CollectionIntegrations, "tmdb", key)
}

// EnrichRateLimitPath returns users/{uid}/integrations_meta/tmdbRateLimit
func EnrichRateLimitPath(uid string) string {
	return docPath(CollectionUsers, uid, CollectionIntegMeta, "tmdbRateLimit")
}

// ClaimReceiptPath returns claims/{claimPublicID}
func ClaimReceiptPath(claimPublicID string) string {
	return docPath(CollectionClaims, claimPublicID)
}

// OwnerFromPath extracts the owning uid from a users/{uid}/... path
func OwnerFromPath(path string) (string, bool) {
	segs := strings.Split(path, "/")
	if len(segs) < 4 || segs[0] != CollectionUsers || segs[1] == "" {
		return "", false
	}
	return segs[1], true
}

// ValidSegment reports whether s can be used as a single path segment
func ValidSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.Contains(s, "/")
}
