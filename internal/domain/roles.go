package domain

// Actor описывает участника, выполняющего команду.
type Actor struct {
	ID      MemberID
	RoleIDs []RoleID
	// Administrator — права администратора на стороне платформы чата.
	Administrator bool
}

// IsAdmin сообщает, может ли участник выполнять административные действия.
func (c Config) IsAdmin(actor Actor) bool {
	if actor.Administrator {
		return true
	}
	for _, have := range actor.RoleIDs {
		for _, admin := range c.AdminRoleIDs {
			if have == admin {
				return true
			}
		}
	}
	return false
}

// ToggleAdminRole добавляет роль, если её нет, и убирает, если есть. Возвращает true при добавлении.
func (c *Config) ToggleAdminRole(role RoleID) bool {
	for i, existing := range c.AdminRoleIDs {
		if existing == role {
			c.AdminRoleIDs = append(c.AdminRoleIDs[:i], c.AdminRoleIDs[i+1:]...)
			return false
		}
	}
	c.AdminRoleIDs = append(c.AdminRoleIDs, role)
	return true
}
