package models

import "time"

// FriendshipSourceReferral marks edges created by the referral engine.
const FriendshipSourceReferral = "referral"

// Friendship is a one-way friend relationship. Mutual friendship is two
// rows, one each direction, created atomically together.
type Friendship struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	UserID   int64 `gorm:"not null;index;uniqueIndex:uq_friendship_user_friend" json:"user_id"`
	FriendID int64 `gorm:"not null;index;uniqueIndex:uq_friendship_user_friend" json:"friend_id"`

	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Friend *User `gorm:"foreignKey:FriendID;constraint:OnDelete:CASCADE" json:"-"`

	// How the friendship came to exist (referral, manual, ...).
	Source string `gorm:"size:50;not null;default:'referral'" json:"source"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null" json:"created_at"`
}
