package users

import (
	"errors"
	"fmt"
	"strings"

	"item-rental/pkg/models"
	"item-rental/pkg/pagination"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidUser        = errors.New("invalid user data")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBlocked            = errors.New("account is blocked")
	ErrForbidden          = errors.New("only administrators can change roles")
	ErrSelfModification   = errors.New("cannot change your own account")
)

const minPasswordLength = 6

var listSorting = pagination.Sorting{
	Allowed: map[string]string{
		"id":      "id",
		"email":   "email",
		"roles":   "roles",
		"blocked": "blocked",
	},
	DefaultField:     "id",
	DefaultDirection: "desc",
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	cost int
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log, cost: bcrypt.DefaultCost}
}

// WithHashCost returns a copy of s hashing passwords at the given bcrypt cost.
func (s *Service) WithHashCost(cost int) *Service {
	cp := *s
	cp.cost = cost
	return &cp
}

func (s *Service) Register(email, nickname, password string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, err
	}
	nick, err := normalizeNickname(nickname)
	if err != nil {
		return models.User{}, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Email:    email,
		Nickname: nick,
		Roles:    models.Roles{models.RoleUser},
		Password: hash,
	}
	err = s.db.Create(&user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.User{}, ErrEmailTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID))
	return user, nil
}

// Authenticate checks a password and refuses blocked accounts.
func (s *Service) Authenticate(email, password string) (models.User, error) {
	user, err := s.FindByEmail(email)
	if errors.Is(err, ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	if user.Blocked {
		return models.User{}, ErrBlocked
	}
	return user, nil
}

func (s *Service) FindByEmail(email string) (models.User, error) {
	var user models.User
	err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *Service) Get(id uint) (models.User, error) {
	var user models.User
	err := s.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Service) List(p pagination.Params) (pagination.Page[models.User], error) {
	return pagination.Paginate[models.User](s.db.Model(&models.User{}), p, listSorting)
}

func (s *Service) UpdateProfile(user *models.User, email, nickname string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	nick, err := normalizeNickname(nickname)
	if err != nil {
		return err
	}
	err = s.db.Model(user).Updates(map[string]interface{}{"email": email, "nickname": nick}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	user.Email = email
	user.Nickname = nick
	return nil
}

func (s *Service) ChangePassword(user *models.User, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if err := s.db.Model(user).Update("password", hash).Error; err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	user.Password = hash
	return nil
}

// UpdateRole grants or revokes the administrator role. Administrators cannot
// change their own role.
func (s *Service) UpdateRole(target, current *models.User, isAdmin bool) error {
	if !current.IsAdmin() {
		return ErrForbidden
	}
	if current.ID == target.ID {
		return ErrSelfModification
	}

	roles := target.Roles.Without(models.RoleAdmin)
	if isAdmin {
		roles = roles.With(models.RoleAdmin)
	}
	if err := s.db.Model(target).Update("roles", roles).Error; err != nil {
		return fmt.Errorf("update roles: %w", err)
	}
	target.Roles = roles
	s.log.Info("user role changed",
		zap.Uint("user_id", target.ID),
		zap.Bool("admin", isAdmin),
		zap.Uint("changed_by", current.ID))
	return nil
}

func (s *Service) ToggleBlock(target, current *models.User) error {
	if current.ID == target.ID {
		return ErrSelfModification
	}
	blocked := !target.Blocked
	if err := s.db.Model(target).Update("blocked", blocked).Error; err != nil {
		return fmt.Errorf("toggle block: %w", err)
	}
	target.Blocked = blocked
	s.log.Info("user block toggled", zap.Uint("user_id", target.ID), zap.Bool("blocked", blocked))
	return nil
}

func (s *Service) Delete(target, current *models.User) error {
	if current.ID == target.ID {
		return ErrSelfModification
	}
	// reservations and committed ratings outlive the account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Reservation{}).
			Where("user_id = ?", target.ID).
			Update("user_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, target.ID).Error
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info("user deleted", zap.Uint("user_id", target.ID), zap.Uint("deleted_by", current.ID))
	return nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) (string, error) {
	email, err := models.NormalizeEmail(email, 180)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}
	return email, nil
}

func normalizeNickname(nickname string) (*string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, nil
	}
	if len(nickname) < 2 || len(nickname) > 50 {
		return nil, fmt.Errorf("%w: nickname must be 2 to 50 characters", ErrInvalidUser)
	}
	return &nickname, nil
}
