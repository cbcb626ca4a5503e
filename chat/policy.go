package chat

// Kind tags a server as public or private. Private servers block flagged
// users from posting and tighten the guest capability set.
type Kind string

const (
	Public  Kind = "public"
	Private Kind = "private"
)

// BlockedNotice is the fixed rejection payload returned to blocked users.
const BlockedNotice = "You cannot leave messages because you were blocked"

// policy carries the per-kind overrides: the pre-message guard and the grant
// table the capability sets are built from.
type policy interface {
	guardMessage(user *User) (ChatInfo, bool)
	grants(role Role) []Operation
}

func policyFor(kind Kind) policy {
	if kind == Private {
		return privatePolicy{}
	}
	return publicPolicy{}
}

type publicPolicy struct{}

func (publicPolicy) guardMessage(user *User) (ChatInfo, bool) {
	return ChatInfo{}, true
}

func (publicPolicy) grants(role Role) []Operation {
	return publicGrants[role]
}

type privatePolicy struct{}

// guardMessage short-circuits posts from blocked users with the fixed notice
// before any chat mutation.
func (privatePolicy) guardMessage(user *User) (ChatInfo, bool) {
	if user.Blocked {
		return ChatInfo{Logs: BlockedNotice}, false
	}
	return ChatInfo{}, true
}

func (privatePolicy) grants(role Role) []Operation {
	return privateGrants[role]
}

var publicGrants = map[Role][]Operation{
	Admin: {
		OpChangeRole, OpAddMessage, OpLeaveChat, OpShowMessages,
		OpDisconnect, OpGetUsers, OpCheckUsage,
	},
	Member: {
		OpAddMessage, OpLeaveChat, OpShowMessages,
		OpDisconnect, OpGetUsers, OpCheckUsage,
	},
	Guest: {
		OpShowMessages, OpDisconnect, OpGetUsers, OpCheckUsage,
	},
}

var privateGrants = map[Role][]Operation{
	Admin: {
		OpChangeRole, OpAddMessage, OpLeaveChat, OpShowMessages,
		OpDisconnect, OpGetUsers, OpCheckUsage, OpBlockUser,
	},
	Member: {
		OpAddMessage, OpLeaveChat, OpShowMessages,
		OpDisconnect, OpGetUsers, OpCheckUsage,
	},
	// guests in a private server may neither read nor write chat
	Guest: {
		OpDisconnect, OpGetUsers, OpCheckUsage,
	},
}
