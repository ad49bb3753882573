package services

import (
	"github.com/google/uuid"

	"tabula/internal/models"
)

type Action string

const (
	ActionView   Action = "view"
	ActionChange Action = "change"
	ActionDelete Action = "delete"

	RoleAdmin = "admin"
)

var allActions = []Action{ActionView, ActionChange, ActionDelete}

// User is the authenticated caller.
type User struct {
	ID   uuid.UUID
	Role string
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Authorizer answers whether user may perform action on a table.
type Authorizer interface {
	Can(user User, action Action, table *models.Table) bool
}

// OwnerAuthorizer lets admins do anything and everybody else act on the
// tables they own.
type OwnerAuthorizer struct{}

func (OwnerAuthorizer) Can(user User, _ Action, table *models.Table) bool {
	if table == nil {
		return false
	}
	return user.IsAdmin() || table.OwnerID == user.ID
}

// Permissions lists the actions user may perform on table.
func Permissions(a Authorizer, user User, table *models.Table) []string {
	perms := []string{}
	for _, action := range allActions {
		if a.Can(user, action, table) {
			perms = append(perms, string(action))
		}
	}
	return perms
}

// owns reports whether user created a resource or is an admin.
func owns(user User, owner uuid.UUID) bool {
	return user.IsAdmin() || user.ID == owner
}
