package model

type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Actor — аутентифицированный пользователь, приходит из внешнего identity-провайдера
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsInstructor() bool {
	return a.Role == RoleInstructor
}
