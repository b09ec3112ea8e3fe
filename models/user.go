package models

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      UserRole  `gorm:"type:enum('Admin','Manager','Operator');not null;default:Operator" json:"role"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" validate:"required,max=100"`
	Name     string   `json:"name" validate:"required,max=100"`
	Email    string   `json:"email" validate:"omitempty,email,max=100"`
	Password string   `json:"password" validate:"required,min=8"`
	Role     UserRole `json:"role" validate:"required"`
	IsActive *bool    `json:"is_active"`
}

type UpdateUserInput struct {
	Name     *string   `json:"name" validate:"omitempty,max=100"`
	Email    *string   `json:"email" validate:"omitempty,email,max=100"`
	Password *string   `json:"password" validate:"omitempty,min=8"`
	Role     *UserRole `json:"role"`
	IsActive *bool     `json:"is_active"`
}

/*
caches:
	User:$id
*/

const userCacheTTL = 10 * time.Minute

func userCacheKey(id int) string {
	return fmt.Sprintf("User:%d", id)
}

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey(userCacheKey(user.ID))
}

// Active reports whether the account may open sessions.
func (user User) Active() bool {
	return user.IsActive != nil && *user.IsActive
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}
	if !input.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRow, input.Role)
	}
	if err := checkUnique[User](ctx, "username", input.Username, 0); err != nil {
		return nil, err
	}
	var email *string
	if input.Email != "" {
		if err := checkUnique[User](ctx, "email", input.Email, 0); err != nil {
			return nil, err
		}
		email = &input.Email
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	isActive := input.IsActive
	if isActive == nil {
		isActive = utils.NewTrue()
	}

	user := User{
		Username: html.EscapeString(input.Username),
		Name:     strings.TrimSpace(input.Name),
		Email:    email,
		Password: hashedPassword,
		Role:     input.Role,
		IsActive: isActive,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &user, nil
}

func UpdateUser(ctx context.Context, id int, input *UpdateUserInput) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}
	user, err := GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if email == "" {
			updates["email"] = nil
		} else {
			if err := checkUnique[User](ctx, "email", email, id); err != nil {
				return nil, err
			}
			updates["email"] = email
		}
	}
	if input.Password != nil {
		hashed, err := utils.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		updates["password"] = hashed
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRow, *input.Role)
		}
		updates["role"] = *input.Role
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return user, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, translateDBError(err)
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	return GetUser(ctx, id)
}

// GetUser reads through the Redis cache; a missing Redis client falls back to the database.
func GetUser(ctx context.Context, id int) (*User, error) {
	var user User
	exists, err := config.GetRedisObject(userCacheKey(id), &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}

	result, err := utils.FetchModel[User](ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("%w: user #%d", ErrReferenceNotFound, id)
		}
		return nil, err
	}
	if err := config.SetRedisObject(userCacheKey(id), result, userCacheTTL); err != nil {
		return nil, err
	}
	return result, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: user %q", ErrReferenceNotFound, username)
		}
		return nil, err
	}
	return &user, nil
}

// CheckUserPassword returns the user when the password matches an active account.
func CheckUserPassword(ctx context.Context, username string, password string) (*User, error) {
	user, err := GetUserByUsername(ctx, username)
	if err != nil {
		return nil, errors.New("invalid username or password")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, errors.New("invalid username or password")
	}
	if !user.Active() {
		return nil, errors.New("user is disabled")
	}
	return user, nil
}

func ListUsers(ctx context.Context) ([]*User, error) {
	db := config.GetDB()
	var results []*User
	err := db.WithContext(ctx).Order("username ASC").Find(&results).Error
	return results, err
}
