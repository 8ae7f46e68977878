package profiles

import (
	"time"
)

// Profile is the minimal user record the battle service needs: a stable
// UID and something presentable to render next to a battle.
type Profile struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UID         string    `gorm:"uniqueIndex;not null" json:"uid"`
	DisplayName string    `gorm:"not null" json:"displayName"`
	Bio         string    `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
