package models

// User mirrors a server-side user profile. The local copy is read-mostly:
// it is populated by background refresh and by follow/unfollow
// reconciliation, never created offline.
type User struct {
	ID             UUID   `db:"id" json:"id"`
	Username       string `db:"username" json:"username"`
	DisplayName    string `db:"display_name" json:"display_name"`
	AvatarURL      string `db:"avatar_url" json:"avatar_url,omitempty"`
	Bio            string `db:"bio" json:"bio,omitempty"`
	FollowerCount  int    `db:"follower_count" json:"follower_count"`
	FollowingCount int    `db:"following_count" json:"following_count"`
	CreatedAt      int64  `db:"created_at" json:"created_at"`

	SyncMeta
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}
