package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"github.com/tijee/groupchat/pkg/groupchat/outcome"
	"gorm.io/gorm"
)

// Handler handles account requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new auth handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required,max=100"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Result string       `json:"result"`
	Token  string       `json:"token"`
	User   UserResponse `json:"user"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	SystemRole string `json:"system_role"`
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		SystemRole: string(u.SystemRole),
	}
}

func respondWithToken(c *gin.Context, status int, user models.User) {
	token, err := GenerateToken(user.ID, user.Email, string(user.SystemRole))
	if err != nil {
		outcome.Error(c, err)
		return
	}
	c.JSON(status, AuthResponse{
		Result: outcome.ResultSuccess,
		Token:  token,
		User:   toUserResponse(user),
	})
}

// Register creates an account and returns a token for it
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"result": outcome.ResultError, "msg": "Email already registered"})
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		outcome.Error(c, err)
		return
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		outcome.Error(c, err)
		return
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Name:         req.Name,
		SystemRole:   models.SystemRoleUser,
	}
	if err := h.db.Create(&user).Error; err != nil {
		outcome.Error(c, err)
		return
	}

	zerolog.Ctx(c.Request.Context()).Info().Uint("user_id", user.ID).Msg("user registered")
	respondWithToken(c, http.StatusCreated, user)
}

// Login authenticates with email and password
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		outcome.Invalid(c, err.Error())
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"result": outcome.ResultError, "msg": "Invalid email or password"})
		return
	}

	if !CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"result": outcome.ResultError, "msg": "Invalid email or password"})
		return
	}

	respondWithToken(c, http.StatusOK, user)
}

// Me returns the current authenticated user
func (h *Handler) Me(c *gin.Context) {
	userID, exists := GetUserID(c)
	if !exists {
		unauthorized(c, "Authentication required")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"result": outcome.ResultError, "msg": "User not found"})
		return
	}

	outcome.Success(c, http.StatusOK, gin.H{"user": toUserResponse(user)})
}

// Logout is a no-op; tokens are discarded client-side
func (h *Handler) Logout(c *gin.Context) {
	outcome.Success(c, http.StatusOK, gin.H{"msg": "Logged out successfully"})
}

// RegisterRoutes registers auth routes on the given router group.
// keys may be nil, in which case /me only accepts JWTs.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, keys KeyResolver) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", IdentityMiddleware(keys), RequireAuth(), h.Me)
}
