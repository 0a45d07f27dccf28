package telegram

// accessList decides which Telegram users may control the backends.
type accessList struct {
	allowed map[int64]bool // nil or empty = allow all
}

// newAccessList creates an access list.
// If allowedUserIDs is empty, all users are allowed.
func newAccessList(allowedUserIDs []int64) *accessList {
	allowed := make(map[int64]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = true
	}
	return &accessList{allowed: allowed}
}

// isAllowed checks if a user is authorized to use the bot.
func (a *accessList) isAllowed(userID int64) bool {
	if len(a.allowed) == 0 {
		return true
	}
	return a.allowed[userID]
}
