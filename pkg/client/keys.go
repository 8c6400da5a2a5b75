package client

const (
	keyFeed          = "feedPosts"
	keyConversations = "conversations"

	prefixPost         = "post/"
	prefixComments     = "comments/"
	prefixReplies      = "replies/"
	prefixAccount      = "account/"
	prefixFollowers    = "followers/"
	prefixFollowing    = "following/"
	prefixConversation = "conversation/"
	prefixAvatar       = "avatar/"
	prefixAlbumMedia   = "albumMedia/"
)

func postKey(id string) string         { return prefixPost + id }
func commentsKey(postID string) string { return prefixComments + postID }
func repliesKey(originID string) string {
	return prefixReplies + originID
}
func accountKey(id string) string      { return prefixAccount + id }
func followersKey(id string) string    { return prefixFollowers + id }
func followingKey(id string) string    { return prefixFollowing + id }
func conversationKey(id string) string { return prefixConversation + id }
func avatarKey(id string) string       { return prefixAvatar + id }
func albumMediaKey(id string) string   { return prefixAlbumMedia + id }

// entity keys serialize mutations and hold toggle state
func postEntity(id string) string         { return "post/" + id }
func commentEntity(id string) string      { return "comment/" + id }
func followEntity(userID string) string   { return "follow/" + userID }
func conversationEntity(id string) string { return "conversation/" + id }
func profileEntity(id string) string      { return "profile/" + id }
