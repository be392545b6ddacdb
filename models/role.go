package models

// Role is the privilege level an actor holds over a resource. Roles are
// totally ordered: viewer < commenter < editor < owner.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleOwner     Role = "owner"
)

var roleLevels = map[Role]int{
	RoleViewer:    1,
	RoleCommenter: 2,
	RoleEditor:    3,
	RoleOwner:     4,
}

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Satisfies reports whether r grants at least the privileges of required.
// Unknown roles never satisfy anything.
func (r Role) Satisfies(required Role) bool {
	level, ok1 := roleLevels[r]
	requiredLevel, ok2 := roleLevels[required]
	return ok1 && ok2 && level >= requiredLevel
}

type ResourceType string

const (
	ResourceFile   ResourceType = "file"
	ResourceFolder ResourceType = "folder"
)

func (t ResourceType) Valid() bool {
	return t == ResourceFile || t == ResourceFolder
}
