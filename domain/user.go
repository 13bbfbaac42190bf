package domain

import "time"

// User is an account as exposed by the profile endpoint.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Subject() Subject {
	return Subject{ID: u.ID, Name: u.Username}
}

// Token is a signed bearer credential.
type Token string

func (t Token) String() string {
	return string(t)
}
