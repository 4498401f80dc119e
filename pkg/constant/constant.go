package constant

// Conversation kinds
const (
	ConvKindDirect          = "direct"
	ConvKindCourseGroup     = "course_group"
	ConvKindInstructorGroup = "instructor_group"
)

// IsValidConvKind reports whether kind is a known conversation kind
func IsValidConvKind(kind string) bool {
	switch kind {
	case ConvKindDirect, ConvKindCourseGroup, ConvKindInstructorGroup:
		return true
	}
	return false
}

// Message kinds
const (
	MsgKindText   = "text"
	MsgKindSystem = "system"
)

// Message limits
const (
	MaxMessageRunes = 2000

	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Online status
const (
	StatusOffline = "offline"
	StatusOnline  = "online"
)

// Room name prefixes
const (
	UserRoomPrefix         = "user:"
	ConversationRoomPrefix = "conv:"
)

// UserRoom returns the private room of a user
func UserRoom(userId string) string { return UserRoomPrefix + userId }

// ConversationRoom returns the room of a conversation
func ConversationRoom(conversationId string) string { return ConversationRoomPrefix + conversationId }

// Conversation unique key patterns
const (
	UniqueKeyDirect          = "direct:%s:%s"        // direct:{min_user}:{max_user}
	UniqueKeyCourseGroup     = "course:%s"           // course:{course_id}
	UniqueKeyInstructorGroup = "instructor:%s:%s:%s" // instructor:{course_id}:{min_user}:{max_user}
)

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyRevokedToken = "token:revoked:%s" // token:revoked:{token_id}
	redisKeyOnline       = "online:%s"        // online:{user_id}, zset of instance leases
	redisKeyUser         = "user:%s"          // user:{user_id}
	redisKeyCourse       = "course:%s"        // course:{course_id}
	redisKeyRateLimit    = "ratelimit:%s:%s"  // ratelimit:{scope}:{user_id}
	redisKeyBroadcast    = "broadcast"
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "coursechat:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyRevokedToken() string { return redisKeyPrefix + redisKeyRevokedToken }
func RedisKeyOnline() string       { return redisKeyPrefix + redisKeyOnline }
func RedisKeyUser() string         { return redisKeyPrefix + redisKeyUser }
func RedisKeyCourse() string       { return redisKeyPrefix + redisKeyCourse }
func RedisKeyRateLimit() string    { return redisKeyPrefix + redisKeyRateLimit }
func RedisKeyBroadcast() string    { return redisKeyPrefix + redisKeyBroadcast }
