package models

import "time"

// Роли пользователя внутри компании.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// User представляет зарегистрированного пользователя, принадлежащего одной компании.
type User struct {
	UID          string     // Уникальный идентификатор пользователя
	CompanyID    string     // Компания; пустая строка, если арендатор ещё не создан
	Email        string     // Электронная почта (уникальная, в нижнем регистре)
	Username     string     // Отображаемое имя
	PasswordHash string     // bcrypt-хэш пароля
	Role         string     // owner или member
	CreatedAt    time.Time  // Дата регистрации
	LastLoginAt  *time.Time // Последний вход, может отсутствовать
}

// IsOwner сообщает, может ли пользователь управлять оплатой компании.
func (u *User) IsOwner() bool {
	return u != nil && u.Role == RoleOwner
}

// Caller аутентифицированный вызывающий, извлечённый из токена.
type Caller struct {
	UserUID  string `json:"user_uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// SignupRequest используется для приёма данных регистрации арендатора из JSON-запроса.
type SignupRequest struct {
	CompanyName string `json:"company_name" validate:"required"`
	Username    string `json:"username" validate:"required,alphanum"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}

// LoginRequest используется для приёма учётных данных из JSON-запроса.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
