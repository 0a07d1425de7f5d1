package redis

const (
	// KeyPrefix is shared by every key the store writes.
	KeyPrefix = "shelf:"
	// KeyPrefixMetadata is the prefix for cached page metadata
	KeyPrefixMetadata = KeyPrefix + "cache:metadata:"
)

func ownerPrefix(owner string) string {
	return KeyPrefix + "user:" + owner + ":"
}

// BookmarkKey returns the Redis key holding one bookmark of owner
func BookmarkKey(owner, id string) string {
	return ownerPrefix(owner) + "bookmark:" + id
}

// BookmarksKey returns the set of every bookmark id of owner
func BookmarksKey(owner string) string {
	return ownerPrefix(owner) + "bookmarks"
}

// GroupKey returns the Redis key holding one group of owner
func GroupKey(owner, id string) string {
	return ownerPrefix(owner) + "group:" + id
}

// GroupsKey returns the set of every group id of owner
func GroupsKey(owner string) string {
	return ownerPrefix(owner) + "groups"
}

// GroupNamesKey returns the hash mapping normalized group names to ids,
// which keeps names unique per owner
func GroupNamesKey(owner string) string {
	return ownerPrefix(owner) + "group-names"
}

// MetadataKey returns the cache key of a normalized URL
func MetadataKey(normalizedURL string) string {
	return KeyPrefixMetadata + normalizedURL
}
