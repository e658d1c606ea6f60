package models

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"html"
	"math/big"
	"strings"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDisabled       = errors.New("user is disabled")
	ErrUserNotVerified    = errors.New("account not verified, verify it with the one-time code")
)

// OTPLifespan is how long a one-time verification code stays valid.
const OTPLifespan = 80 * time.Second

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	FirstName  string    `gorm:"size:150;not null" json:"first_name"`
	LastName   string    `gorm:"size:150" json:"last_name"`
	Email      string    `gorm:"size:254;not null;unique" json:"email"`
	Phone      *string   `gorm:"size:20" json:"phone"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	IsVerified bool      `gorm:"not null;default:false" json:"is_verified"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	OtpHash      *string    `gorm:"size:255" json:"-"`
	OtpCreatedAt *time.Time `json:"-"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type NewUser struct {
	FirstName string  `json:"first_name" validate:"required,max=150"`
	LastName  string  `json:"last_name" validate:"max=150"`
	Email     string  `json:"email" validate:"required,email,max=254"`
	Phone     *string `json:"phone" validate:"omitempty,phone"`
	Password  string  `json:"password" validate:"required,min=8"`
}

type LoginInfo struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Registration is a new unverified user and the code that verifies it.
type Registration struct {
	User *User  `json:"user"`
	OTP  string `json:"-"`
}

// RegisterUser creates an unverified account and issues its first one-time code.
func RegisterUser(ctx context.Context, input *NewUser) (*Registration, error) {
	user, err := createUser(ctx, input, false)
	if err != nil {
		return nil, err
	}
	otp, err := issueOTP(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Registration{User: user, OTP: otp}, nil
}

// CreateUser creates an account that can log in straight away.
func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	return createUser(ctx, input, true)
}

func createUser(ctx context.Context, input *NewUser, verified bool) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	email := strings.ToLower(strings.TrimSpace(input.Email))

	var count int64
	if err := db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, &utils.TransactionError{Op: "CreateUser", Err: err}
	}
	if count > 0 {
		return nil, utils.NewValidationError(map[string]string{"email": "is already registered"})
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		FirstName:  html.EscapeString(strings.TrimSpace(input.FirstName)),
		LastName:   html.EscapeString(strings.TrimSpace(input.LastName)),
		Email:      email,
		Phone:      input.Phone,
		Password:   hashedPassword,
		IsVerified: verified,
		IsActive:   true,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, &utils.TransactionError{Op: "CreateUser", Err: err}
	}
	return &user, nil
}

// Login checks credentials and issues a JWT.
func Login(ctx context.Context, email string, password string) (*LoginInfo, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&user).Error
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	if !user.IsVerified {
		return nil, ErrUserNotVerified
	}

	token, err := utils.JwtGenerate(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &LoginInfo{Token: token, User: &user}, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return utils.FetchModel[User](ctx, id)
}

// GetUserByEmail is cached in redis for the auth middleware.
func GetUserByEmail(ctx context.Context, email string) (*User, error) {
	key := "User:" + email
	var user User
	exists, err := config.GetRedisObject(ctx, key, &user)
	if err == nil && exists {
		return &user, nil
	}

	if err := config.GetDB().WithContext(ctx).Where("email = ?", email).Take(&user).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := config.SetRedisObject(ctx, key, &user, utils.LatestDataCacheLifespan); err != nil {
		config.LogError(config.GetLogger(), "models", "GetUserByEmail", "redis", email, err)
	}
	return &user, nil
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// issueOTP stores a fresh code for user (hashed) and returns it.
func issueOTP(ctx context.Context, user *User) (string, error) {
	otp, err := generateOTP()
	if err != nil {
		return "", err
	}
	hashed, err := utils.HashPassword(otp)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	err = config.GetDB().WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"otp_hash": hashed, "otp_created_at": now}).Error
	if err != nil {
		return "", &utils.TransactionError{Op: "issueOTP", Err: err}
	}
	user.OtpHash = &hashed
	user.OtpCreatedAt = &now
	return otp, nil
}

func findUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := config.GetDB().WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&user).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

// VerifyOTP marks the account verified when otp matches an unexpired code.
// An expired code is cleared; a wrong code is kept so the user can retry.
func VerifyOTP(ctx context.Context, email string, otp string) (*User, error) {
	invalid := utils.NewValidationError(map[string]string{"otp": "is invalid or expired"})
	user, err := findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.OtpHash == nil || user.OtpCreatedAt == nil {
		return nil, invalid
	}

	db := config.GetDB().WithContext(ctx).Model(&User{}).Where("id = ?", user.ID)
	if time.Since(*user.OtpCreatedAt) > OTPLifespan {
		if err := db.Updates(map[string]interface{}{"otp_hash": nil, "otp_created_at": nil}).Error; err != nil {
			return nil, &utils.TransactionError{Op: "VerifyOTP", Err: err}
		}
		return nil, invalid
	}
	if err := utils.ComparePassword(*user.OtpHash, strings.TrimSpace(otp)); err != nil {
		return nil, invalid
	}

	if err := db.Updates(map[string]interface{}{"is_verified": true, "otp_hash": nil, "otp_created_at": nil}).Error; err != nil {
		return nil, &utils.TransactionError{Op: "VerifyOTP", Err: err}
	}
	if err := config.RemoveRedisKey(ctx, "User:"+user.Email); err != nil {
		config.LogError(config.GetLogger(), "models", "VerifyOTP", "redis", user.Email, err)
	}
	user.IsVerified = true
	user.OtpHash = nil
	user.OtpCreatedAt = nil
	return user, nil
}

// ResendOTP replaces the pending code of an unverified account.
func ResendOTP(ctx context.Context, email string) (string, error) {
	user, err := findUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user.IsVerified {
		return "", utils.NewValidationError(map[string]string{"email": "account is already verified"})
	}
	return issueOTP(ctx, user)
}

func revokedTokenKey(token string) string {
	return "RevokedToken:" + token
}

// RevokeToken denies a token until it would have expired anyway. Without Redis it is a no-op.
func RevokeToken(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return config.SetRedisObject(ctx, revokedTokenKey(token), true, ttl)
}

func IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	exists, err := config.GetRedisObject(ctx, revokedTokenKey(token), &revoked)
	if err != nil {
		return false, err
	}
	return exists && revoked, nil
}
