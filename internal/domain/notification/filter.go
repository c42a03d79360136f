package notification

import (
	"github.com/consite-erp/notify-agent/internal/domain/user"
)

// AddressedTo decides whether a canonical notification is intended for the
// session identified by userID and role.
//
// An explicit target user short-circuits role checking entirely: a
// notification the backend sent to one specific person must not be
// re-filtered by a stale role field that happens to ride along on the same
// payload. Role targets match through the historical alias table, with the
// broadcast sentinels matching every session. A notification carrying
// neither target is a broadcast.
func AddressedTo(n Notification, userID, role string) bool {
	if n.TargetUserID != "" {
		return n.TargetUserID == userID
	}
	if n.TargetRole != "" {
		if user.IsBroadcastTarget(n.TargetRole) {
			return true
		}
		return user.RolesMatch(n.TargetRole, role)
	}
	return true
}
