package auth

// User is an account row. The password hash never leaves the package through
// API responses; handlers build explicit summaries instead.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"hashed_password"`
	Locked       bool   `json:"locked"`
	Role         string `json:"role"`
}

// Session is the persisted form: the id is the hex SHA-256 of the raw token,
// the raw token itself is never stored. ExpiresAt is seconds since epoch.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// StartedSession is what login and signup hand back to the HTTP layer: the raw
// token for the cookie plus the stored session and its owner.
type StartedSession struct {
	Token   string
	Session Session
	User    User
}

// SignupParams carries shape-validated signup input into the service.
type SignupParams struct {
	Email    string
	Username string
	Password string
}
