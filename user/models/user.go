package models

import "time"

type Role string

const (
	RoleUser     Role = "user"
	RoleBusiness Role = "business"
)

// User is an account owned by the external auth service. This service only
// reads it.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255" json:"-"`
	Role      Role      `gorm:"size:32;default:user" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicProfile is what other parties may see of an account.
type PublicProfile struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

func (u *User) Profile() PublicProfile {
	return PublicProfile{ID: u.ID, Name: u.Name, Role: u.Role}
}
