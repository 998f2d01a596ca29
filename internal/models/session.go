package models

// Session holds the persisted authenticated-session context. A single row
// exists while a user is signed in; sign-out deletes it together with all
// mirrored data.
type Session struct {
	UserID    UUID   `db:"user_id" json:"user_id"`
	Token     string `db:"token" json:"-"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "session"
}
