package users

import "time"

// User is one directory record. UserName is stored lower-cased; Token is
// the last session token issued to the user.
type User struct {
	ID           string    `json:"id"`
	UserName     string    `json:"username"`
	Salt         []byte    `json:"salt"`
	PasswordHash []byte    `json:"password_hash"`
	Token        string    `json:"token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
