package model

import (
	"github.com/google/uuid"
)

// UserRole is a role either at teamcloud level (admin, creator) or inside a
// project membership (owner, member, provider).
type UserRole string

const (
	UserRoleNone    UserRole = "none"
	UserRoleAdmin   UserRole = "admin"
	UserRoleCreator UserRole = "creator"

	ProjectRoleOwner    UserRole = "owner"
	ProjectRoleMember   UserRole = "member"
	ProjectRoleProvider UserRole = "provider"
)

// ProjectMembership binds a user to one project with a role.
type ProjectMembership struct {
	ProjectID  uuid.UUID         `json:"project_id"`
	Role       UserRole          `json:"role"`
	Properties map[string]string `json:"properties,omitempty"`
}

// User is an acting principal: a human, a service principal, or the
// automation system identity.
type User struct {
	ID          uuid.UUID           `json:"id"`
	Tenant      string              `json:"tenant"`
	Role        UserRole            `json:"role"`
	Memberships []ProjectMembership `json:"memberships,omitempty"`
	Properties  map[string]string   `json:"properties,omitempty"`
}

// IsAdmin reports whether the user holds the teamcloud admin role.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// RoleFor returns the user's role inside the given project, or UserRoleNone.
func (u *User) RoleFor(projectID uuid.UUID) UserRole {
	for _, m := range u.Memberships {
		if m.ProjectID == projectID {
			return m.Role
		}
	}
	return UserRoleNone
}

// EnsureProjectMembership adds or updates the membership for the given
// project, keeping memberships for other projects untouched.
func (u *User) EnsureProjectMembership(projectID uuid.UUID, role UserRole) {
	for i, m := range u.Memberships {
		if m.ProjectID == projectID {
			u.Memberships[i].Role = role
			return
		}
	}
	u.Memberships = append(u.Memberships, ProjectMembership{ProjectID: projectID, Role: role})
}

// RemoveProjectMembership drops the membership for the given project.
func (u *User) RemoveProjectMembership(projectID uuid.UUID) {
	for i, m := range u.Memberships {
		if m.ProjectID == projectID {
			u.Memberships = append(u.Memberships[:i], u.Memberships[i+1:]...)
			return
		}
	}
}

// ScopeToProject returns a copy of the user whose membership list is
// filtered down to the given project. Project documents only ever carry
// memberships for themselves.
func (u User) ScopeToProject(projectID uuid.UUID) User {
	scoped := u
	scoped.Memberships = nil
	for _, m := range u.Memberships {
		if m.ProjectID == projectID {
			scoped.Memberships = append(scoped.Memberships, m)
		}
	}
	return scoped
}

// ScopeUsersToProject filters each user's memberships to the given project
// and drops users without any membership in it.
func ScopeUsersToProject(users []User, projectID uuid.UUID) []User {
	var scoped []User
	for _, u := range users {
		if u.RoleFor(projectID) == UserRoleNone {
			continue
		}
		scoped = append(scoped, u.ScopeToProject(projectID))
	}
	return scoped
}
