package realtime

import "strings"

// Event names emitted to clients.
const (
	EventConnectionConfirmed   = "connection:confirmed"
	EventNotificationNew       = "notification:new"
	EventNotificationRead      = "notification:read"
	EventNotificationBroadcast = "notification:broadcast"
	EventNotificationDeleted   = "notification:deleted"
	EventAllNotificationsRead  = "all_notifications_read"
	EventPong                  = "pong"
)

// RoomAllUsers is joined by every authenticated connection.
const RoomAllUsers = "all_users"

const (
	userRoomPrefix = "user_"
	roleRoomSuffix = "_room"
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Anonymous reports whether no user is attached.
func (i Identity) Anonymous() bool {
	return strings.TrimSpace(i.UserID) == ""
}

// UserRoom names the private room of a user.
func UserRoom(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	return userRoomPrefix + userID
}

// RoleRoom names the room shared by every connection of the given role.
func RoleRoom(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ""
	}
	return role + roleRoomSuffix
}

// RoomsFor lists the rooms an identity is assigned on connect. Anonymous identities join none.
func RoomsFor(id Identity) []string {
	if id.Anonymous() {
		return []string{}
	}
	rooms := []string{UserRoom(id.UserID)}
	if room := RoleRoom(id.Role); room != "" {
		rooms = append(rooms, room)
	}
	return append(rooms, RoomAllUsers)
}

func normalizeRoom(room string) string {
	return strings.TrimSpace(room)
}
