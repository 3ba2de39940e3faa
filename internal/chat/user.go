package chat

// User is a chat participant as returned by the user directory backend.
type User struct {
	ID       string
	FullName string
	Image    string
	Enabled  bool
	Type     string // User or Bot
}

// DisplayName returns the best human-readable name for the user.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.ID
}
