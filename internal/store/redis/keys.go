package redis

import "strconv"

// Redis key prefixes
const (
	// KeyPrefixBookmark is the prefix for bookmark row keys
	KeyPrefixBookmark = "smartmark:bookmark:"
	// KeyPrefixOwner is the prefix for the per-owner sorted set of row IDs
	KeyPrefixOwner = "smartmark:bookmarks:owner:"
	// KeyBookmarkSeq holds the last assigned bookmark ID
	KeyBookmarkSeq = "smartmark:bookmarks:seq"
	// KeyPrefixSession is the prefix for session registry entries
	KeyPrefixSession = "smartmark:session:"
	// KeyPrefixOAuthState is the prefix for pending sign-in states
	KeyPrefixOAuthState = "smartmark:oauth_state:"
	// ChannelPrefixChanges is the pub/sub channel prefix for change events
	ChannelPrefixChanges = "smartmark:changes:"
)

// BookmarkKey returns the Redis key for a bookmark row
func BookmarkKey(id int64) string {
	return KeyPrefixBookmark + strconv.FormatInt(id, 10)
}

// OwnerKey returns the key of the sorted set listing owner's bookmark IDs
func OwnerKey(owner string) string {
	return KeyPrefixOwner + owner
}

// SessionKey returns the Redis key for a session
func SessionKey(sessionID string) string {
	return KeyPrefixSession + sessionID
}

// OAuthStateKey returns the Redis key for a pending sign-in state
func OAuthStateKey(state string) string {
	return KeyPrefixOAuthState + state
}

// ChangesChannel returns the pub/sub channel carrying changes of table
func ChangesChannel(table string) string {
	return ChannelPrefixChanges + table
}
