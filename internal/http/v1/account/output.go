package account

// AccountGetOutput for GET /account
type AccountGetOutput struct {
	Body Account
}

// AccountUpdateOutput for PUT /account
type AccountUpdateOutput struct {
	Body UpdateResult
}
