package services

import (
	"errors"
	"time"

	"hirehub/internal/models"

	"gorm.io/gorm"
)

// UserService 用户查询与认证
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// GetByID 获取用户
func (s *UserService) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate 用户名密码认证，成功后更新最后登录时间
func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	var user models.User
	err := s.db.Where("username = ? OR email = ?", username, username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("用户名或密码错误")
		}
		return nil, err
	}

	if user.Status != models.UserStatusActive {
		return nil, errors.New("账号已被禁用")
	}

	if !user.CheckPassword(password) {
		return nil, errors.New("用户名或密码错误")
	}

	now := time.Now()
	s.db.Model(&user).Update("last_login_at", now)
	user.LastLoginAt = &now

	return &user, nil
}
