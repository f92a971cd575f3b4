package models

import (
	"time"
)

// Role is a user's authorization role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ContactMethod is how a user prefers to be reached about their ads.
type ContactMethod string

const (
	ContactMessage ContactMethod = "message"
	ContactCall    ContactMethod = "call"
	ContactAny     ContactMethod = "any"
)

// NotificationPreferences allows users to control which events reach them.
type NotificationPreferences struct {
	Messages   bool `bson:"messages" json:"messages"`
	Deals      bool `bson:"deals" json:"deals"`
	Reviews    bool `bson:"reviews" json:"reviews"`
	AdExpiry   bool `bson:"ad_expiry" json:"ad_expiry"`
	Newsletter bool `bson:"newsletter" json:"newsletter"`
}

// DefaultNotificationPreferences has every channel switched on.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{Messages: true, Deals: true, Reviews: true, AdExpiry: true, Newsletter: true}
}

// User represents a marketplace account.
type User struct {
	Base                    `bson:",inline"`
	Name                    string                  `bson:"name" json:"name"`
	Username                string                  `bson:"username" json:"username"`
	UsernameChangedAt       *time.Time              `bson:"username_changed_at,omitempty" json:"username_changed_at,omitempty"`
	Email                   string                  `bson:"email" json:"email"`
	PasswordHash            string                  `bson:"password" json:"-"`
	Role                    Role                    `bson:"role" json:"role"`
	IsActive                bool                    `bson:"is_active" json:"is_active"`
	Phone                   string                  `bson:"phone,omitempty" json:"phone,omitempty"`
	DateOfBirth             *time.Time              `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"`
	Postcode                string                  `bson:"postcode,omitempty" json:"postcode,omitempty"`
	ShowPhone               bool                    `bson:"show_phone" json:"show_phone"`
	ShowEmail               bool                    `bson:"show_email" json:"show_email"`
	PreferredContact        ContactMethod           `bson:"preferred_contact" json:"preferred_contact"`
	NotificationPreferences NotificationPreferences `bson:"notification_preferences" json:"notification_preferences"`
	UpdatedAt               time.Time               `bson:"updated_at" json:"updated_at"`
	CreatedAt               time.Time               `bson:"created_at" json:"created_at"`
	Deleted                 bool                    `bson:"deleted" json:"-"`
}

// NewUser returns a user with the account defaults applied.
func NewUser(name, username, email string, now time.Time) *User {
	return &User{
		Base:                    NewBase(),
		Name:                    name,
		Username:                username,
		Email:                   email,
		Role:                    RoleUser,
		IsActive:                true,
		PreferredContact:        ContactMessage,
		NotificationPreferences: DefaultNotificationPreferences(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UsernameUnlockAt returns when the username may next change, or nil if it never changed.
func (u *User) UsernameUnlockAt(cooldown time.Duration) *time.Time {
	if u.UsernameChangedAt == nil {
		return nil
	}
	t := u.UsernameChangedAt.Add(cooldown)
	return &t
}

// CanChangeUsername reports whether newUsername may be applied at now.
// Resubmitting the current username is always allowed. The unlock instant itself is allowed.
func (u *User) CanChangeUsername(newUsername string, now time.Time, cooldown time.Duration) bool {
	if newUsername == u.Username {
		return true
	}
	unlock := u.UsernameUnlockAt(cooldown)
	return unlock == nil || !now.Before(*unlock)
}

// PublicProfile is what other users may see of an account.
type PublicProfile struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Username         string        `json:"username"`
	Postcode         string        `json:"postcode,omitempty"`
	Phone            string        `json:"phone,omitempty"`
	Email            string        `json:"email,omitempty"`
	PreferredContact ContactMethod `json:"preferred_contact"`
	MemberSince      time.Time     `json:"member_since"`
	RatingAverage    float64       `json:"rating_average"`
	RatingCount      int           `json:"rating_count"`
}

// Profile renders the public view, honouring the visibility flags.
func (u *User) Profile() PublicProfile {
	p := PublicProfile{
		ID:               u.ID.String(),
		Name:             u.Name,
		Username:         u.Username,
		Postcode:         u.Postcode,
		PreferredContact: u.PreferredContact,
		MemberSince:      u.CreatedAt,
	}
	if u.ShowPhone {
		p.Phone = u.Phone
	}
	if u.ShowEmail {
		p.Email = u.Email
	}
	return p
}
