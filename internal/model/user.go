package model

import "time"

type User struct {
	ID           string    `json:"id"`
	PublicID     string    `json:"public_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatar_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSummary — профиль для отображения в чатах и конвертах сообщений.
type UserSummary struct {
	ID        string `json:"id"`
	PublicID  string `json:"public_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// FullName — отображаемое имя; фамилия может отсутствовать.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) ToSummary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		PublicID:  u.PublicID,
		Name:      u.FullName(),
		AvatarURL: u.AvatarURL,
	}
}
