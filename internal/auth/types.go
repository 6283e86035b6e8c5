package auth

// User is a registered account. The password is kept as submitted.
type User struct {
	Username string
	Password string
	Token    string
}

// Credentials is the token view handed back by register and login.
type Credentials struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}
