package types

// ProcessUsersResult is the final payload of a completed process-users job
type ProcessUsersResult struct {
	UsersCreated int    `json:"users_created"`
	UserIDs      []uint `json:"user_ids"`
}
