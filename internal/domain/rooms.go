package domain

// Shared realtime rooms.
const (
	RoomAllUsers = "allUsers"
	RoomAdmin    = "admin"
)

// UserRoom is the private room of one user. Only connections authenticated
// as that user may join it.
func UserRoom(userID string) string {
	return "user:" + userID
}
