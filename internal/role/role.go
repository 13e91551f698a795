// Package role decides whether membership mutations in group and channel
// chats are allowed. The functions are pure: role state in, verdict out,
// no I/O. Privilege order is owner > admin > member = observer; member and
// observer differ in capability, not privilege.
package role

import "github.com/rchat/internal/model"

// CanAddOrChangeRole reports whether a participant with acting role may set
// requested as the role of a target. targetExisting is nil when the target
// is not yet a participant (a plain add).
//
//   - observer: never.
//   - member: may only add brand-new participants as member or observer.
//   - admin: may add new members/observers; may re-assign an existing
//     member/observer between member and observer; never touches an
//     existing admin or owner and never grants admin or owner.
//   - owner: unrestricted. Assigning owner to someone else demotes the
//     previous owner to admin — that side effect lives in the chat store
//     (TransferOwnership), not here.
func CanAddOrChangeRole(acting model.Role, targetExisting *model.Role, requested model.Role) bool {
	if !requested.Valid() {
		return false
	}
	switch acting {
	case model.RoleOwner:
		return true
	case model.RoleAdmin:
		if requested == model.RoleAdmin || requested == model.RoleOwner {
			return false
		}
		if targetExisting == nil {
			return true
		}
		return *targetExisting == model.RoleMember || *targetExisting == model.RoleObserver
	case model.RoleMember:
		if targetExisting != nil {
			return false
		}
		return requested == model.RoleMember || requested == model.RoleObserver
	default: // observer or unknown
		return false
	}
}

// CanRemove reports whether a participant with acting role may remove a
// target with target role. actingIsAdder is true when the acting user is
// the one who originally added the target.
//
// Self-removal never goes through this path: leaving a chat is a separate,
// unrestricted operation, and even the owner cannot remove themself here.
func CanRemove(acting, target model.Role, actingIsAdder bool) bool {
	switch acting {
	case model.RoleOwner:
		return true
	case model.RoleAdmin:
		return target == model.RoleMember || target == model.RoleObserver
	case model.RoleMember:
		return actingIsAdder
	default:
		return false
	}
}
