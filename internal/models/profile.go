package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserProfile is the persisted advisory client document. The access token is
// the public identifier; the Mongo _id never leaves the database layer.
type UserProfile struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Token        string             `bson:"token" json:"token"`
	Role         string             `bson:"role" json:"role"`
	OwnerName    string             `bson:"ownerName" json:"owner_name"`
	BusinessName string             `bson:"businessName" json:"business_name"`
	Sector       string             `bson:"sector" json:"sector"`
	Challenges   []string           `bson:"challenges" json:"challenges"`
	Goals        []string           `bson:"goals" json:"goals"`
	Insights     BusinessInsights   `bson:"insights" json:"insights"`
	CreatedAt    time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updated_at"`
}

// Profile roles.
const (
	RoleBusinessOwner = "business_owner"
	RoleAdmin         = "admin"
)

// Expert describes one advisory persona the client can address a turn to.
type Expert struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SystemStyle string `json:"-"`
}
