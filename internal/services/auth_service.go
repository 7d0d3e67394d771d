package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/Gopher0727/CampusLink/internal/errs"
	"github.com/Gopher0727/CampusLink/internal/models"
	"github.com/Gopher0727/CampusLink/internal/repositories"
	"github.com/Gopher0727/CampusLink/internal/utils"
)

// AuthService 认证服务
// 身份只在边界处出现：引擎内部只认已认证的用户ID
type AuthService struct {
	userRepo *repositories.UserRepository
}

// NewAuthService 创建认证服务实例
func NewAuthService(userRepo *repositories.UserRepository) *AuthService {
	return &AuthService{
		userRepo: userRepo,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Token string   `json:"token"`
	User  *UserDTO `json:"user"`
}

// UserDTO 用户数据传输对象
type UserDTO struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
	IsAdmin   bool   `json:"is_admin"`
}

func userToDTO(user *models.User) *UserDTO {
	return &UserDTO{
		ID:        user.ID,
		Username:  user.UserName,
		Email:     user.Email,
		Nickname:  user.Nickname,
		AvatarURL: user.AvatarURL,
		IsAdmin:   user.IsAdmin,
	}
}

// Register 注册用户
func (s *AuthService) Register(req *RegisterRequest) (*AuthResponse, error) {
	if !utils.ValidateUserName(req.Username) {
		return nil, errs.Validation("invalid username format")
	}
	if !utils.ValidateEmail(req.Email) {
		return nil, errs.Validation("invalid email format")
	}
	if !utils.ValidatePassword(req.Password) {
		return nil, errs.Validation("password too short")
	}

	if _, err := s.userRepo.GetByUserName(req.Username); err == nil {
		return nil, errs.Conflict("username already exists")
	}
	if _, err := s.userRepo.GetByEmail(req.Email); err == nil {
		return nil, errs.Conflict("email already exists")
	}

	hashPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, errs.Unavailable(err)
	}

	user := &models.User{
		UserName:     req.Username,
		Email:        req.Email,
		PasswordHash: hashPassword,
		Nickname:     req.Username,
	}
	if err := s.userRepo.Create(user); err != nil {
		// 预检查和插入之间可能有并发注册，唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflict("username or email already exists")
		}
		return nil, errs.Unavailable(err)
	}

	token, err := utils.GenerateToken(user.ID, user.UserName, user.Email)
	if err != nil {
		return nil, errs.Unavailable(err)
	}

	return &AuthResponse{Token: token, User: userToDTO(user)}, nil
}

// Login 登录用户
// 用户名不存在和密码错误返回同一个错误，不泄露账号是否存在
func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.GetByUserName(req.Username)
	if err != nil {
		return nil, errs.Forbidden("username or password incorrect")
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return nil, errs.Forbidden("username or password incorrect")
	}

	token, err := utils.GenerateToken(user.ID, user.UserName, user.Email)
	if err != nil {
		return nil, errs.Unavailable(err)
	}

	return &AuthResponse{Token: token, User: userToDTO(user)}, nil
}

// GetProfile 获取用户资料
func (s *AuthService) GetProfile(userID uint) (*UserDTO, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("user not found")
		}
		return nil, errs.Unavailable(err)
	}
	return userToDTO(user), nil
}

// UpdateProfile 更新昵称/头像
func (s *AuthService) UpdateProfile(userID uint, nickname, avatarURL string) (*UserDTO, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("user not found")
		}
		return nil, errs.Unavailable(err)
	}

	if nickname != "" {
		user.Nickname = nickname
	}
	if avatarURL != "" {
		user.AvatarURL = avatarURL
	}
	if err := s.userRepo.Update(user); err != nil {
		return nil, errs.Unavailable(err)
	}
	return userToDTO(user), nil
}
