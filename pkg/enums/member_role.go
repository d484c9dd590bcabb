package enums

import (
	"fmt"
	"slices"
	"strings"
)

// MemberRole is the role an admin token is minted for. Admins use the whole
// admin API; operators and members exist so tokens can be scoped down later.
type MemberRole string

const (
	MemberRoleAdmin    MemberRole = "admin"
	MemberRoleOperator MemberRole = "operator"
	MemberRoleMember   MemberRole = "member"
)

var memberRoles = []MemberRole{MemberRoleAdmin, MemberRoleOperator, MemberRoleMember}

func (m MemberRole) String() string { return string(m) }

func (m MemberRole) IsValid() bool { return slices.Contains(memberRoles, m) }

// ParseMemberRole accepts any casing and surrounding whitespace.
func ParseMemberRole(value string) (MemberRole, error) {
	role := MemberRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", value)
	}
	return role, nil
}
