package model

import "time"

type UserID int64

type User struct {
	ID        UserID  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Avatar    *string `json:"avatar"`
	FirstName string  `json:"first_name,omitempty"`
	LastName  string  `json:"last_name,omitempty"`
	Bio       string  `json:"bio,omitempty"`
}

func (u User) DisplayName() string {
	if u.FirstName != "" || u.LastName != "" {
		if u.LastName == "" {
			return u.FirstName
		}
		if u.FirstName == "" {
			return u.LastName
		}
		return u.FirstName + " " + u.LastName
	}
	return u.Username
}

type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// The backend may omit slugs; the name then doubles as the route key.

func (c Category) Key() string {
	if c.Slug != "" {
		return c.Slug
	}
	return c.Name
}

func (t Tag) Key() string {
	if t.Slug != "" {
		return t.Slug
	}
	return t.Name
}

type Comment struct {
	ID        int64     `json:"id"`
	User      User      `json:"user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginResponse struct {
	Access   string  `json:"access"`
	Refresh  string  `json:"refresh"`
	UserID   UserID  `json:"user_id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Avatar   *string `json:"avatar"`
}

// User extracts the profile carried in a login response.
func (l *LoginResponse) User() User {
	return User{ID: l.UserID, Username: l.Username, Email: l.Email, Avatar: l.Avatar}
}

type LikeStatus struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

type BookmarkStatus struct {
	Bookmarked bool `json:"bookmarked"`
}

type Bookmark struct {
	ID        int64     `json:"id"`
	Post      Post      `json:"post"`
	CreatedAt time.Time `json:"created_at"`
}
