package handlers

import (
	"crypto/subtle"
	"net/http"

	"sevaboard/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminCredentials is the single configured admin account.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// AuthHandler issues admin tokens.
type AuthHandler struct {
	creds  AdminCredentials
	issuer *utils.TokenIssuer
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(creds AdminCredentials, issuer *utils.TokenIssuer) *AuthHandler {
	return &AuthHandler{creds: creds, issuer: issuer}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLoginHandler checks the admin credentials and returns a bearer token.
func (h *AuthHandler) AdminLoginHandler(c *gin.Context) {
	logger := getLogger(c)

	if h.creds.PasswordHash == "" {
		utils.JSONError(c, http.StatusServiceUnavailable, "Admin login is not configured", "")
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.creds.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(h.creds.PasswordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		logger.Warn("Admin login rejected", zap.String("username", req.Username), zap.String("ip", c.ClientIP()))
		utils.JSONError(c, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	token, err := h.issuer.GenerateToken(h.creds.Username, utils.AdminRole)
	if err != nil {
		logger.Error("Failed to sign admin token", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Failed to issue token", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
