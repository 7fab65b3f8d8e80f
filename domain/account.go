package domain

// Account is an authenticated owner of board tasks. The password never
// leaves the storage layer.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
