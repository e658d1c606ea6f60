package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type resendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// otpBody describes a freshly issued code. No delivery channel is wired, so the
// code itself is only echoed outside production.
func otpBody(otp string) gin.H {
	body := gin.H{"otp_expires_in": int(models.OTPLifespan.Seconds())}
	if !config.GetSettings().IsProduction() {
		body["otp"] = otp
	}
	return body
}

func (h *Handler) register(c *gin.Context) {
	var input models.NewUser
	if !bindJSON(c, &input) {
		return
	}
	reg, err := models.RegisterUser(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	body := otpBody(reg.OTP)
	body["data"] = reg.User
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var input verifyOTPRequest
	if !bindJSON(c, &input) {
		return
	}
	if err := utils.ValidateStruct(&input); err != nil {
		writeError(c, err)
		return
	}
	user, err := models.VerifyOTP(c.Request.Context(), input.Email, input.OTP)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (h *Handler) resendOTP(c *gin.Context) {
	var input resendOTPRequest
	if !bindJSON(c, &input) {
		return
	}
	if err := utils.ValidateStruct(&input); err != nil {
		writeError(c, err)
		return
	}
	otp, err := models.ResendOTP(c.Request.Context(), input.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, otpBody(otp))
}

func (h *Handler) login(c *gin.Context) {
	var input loginRequest
	if !bindJSON(c, &input) {
		return
	}
	info, err := models.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (h *Handler) logout(c *gin.Context) {
	ctx := c.Request.Context()
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok {
		writeError(c, utils.ErrorUnauthorized)
		return
	}
	expiresAt := time.Now().Add(time.Hour)
	if parsed, err := utils.JwtValidate(token); err == nil {
		if claim, ok := parsed.Claims.(*utils.JwtCustomClaim); ok && claim.ExpiresAt > 0 {
			expiresAt = time.Unix(claim.ExpiresAt, 0)
		}
	}
	if err := models.RevokeToken(ctx, token, expiresAt); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": true})
}

func (h *Handler) me(c *gin.Context) {
	id, _ := utils.GetUserIdFromContext(c.Request.Context())
	user, err := models.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}
