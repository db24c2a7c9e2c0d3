package models

// Role tags recognised by the platform. RoleAll is a recipient tag only; no user holds it.
const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RoleCitizen = "citizen"
	RoleAll     = "all"
)

// IsUserRole reports whether role is one a user account can hold.
func IsUserRole(role string) bool {
	switch role {
	case RoleAdmin, RoleStaff, RoleCitizen:
		return true
	default:
		return false
	}
}

// User is the slice of the platform's user directory the notification subsystem reads.
type User struct {
	BaseModel `bson:",inline"`

	Name               string `gorm:"type:varchar(120)" bson:"name" json:"name"`
	Email              string `gorm:"type:varchar(255);index" bson:"email" json:"email"`
	Role               string `gorm:"type:varchar(16);index;not null;default:'citizen'" bson:"role" json:"role"`
	IsActive           bool   `gorm:"index" bson:"is_active" json:"isActive"`
	EmailNotifications bool   `bson:"email_notifications" json:"emailNotifications"`
}
