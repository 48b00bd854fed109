package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"donation-api/internal/apperr"
	"donation-api/internal/middleware"
	"donation-api/internal/models"
)

const tokenTTL = time.Hour * 24 * 7

// UserStore holds administrator accounts.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
}

type AuthHandler struct {
	Users     UserStore
	JwtSecret string
}

func NewAuthHandler(users UserStore, jwtSecret string) *AuthHandler {
	return &AuthHandler{Users: users, JwtSecret: jwtSecret}
}

type CreateAdminRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// CreateAdmin adds another administrator. Only admins reach it.
func (h *AuthHandler) CreateAdmin(c *gin.Context) {
	var req CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := createUser(c.Request.Context(), h.Users, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully.",
		"user_id": user.ID,
		"email":   user.Email,
	})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) createJWT(user models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  middleware.AdminRole,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.JwtSecret))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.Users.GetByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	// Compare stored passwordHash with the user entered password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
		return
	}

	tokenString, err := h.createJWT(*user)
	if err != nil {
		log.Println("Failed to create JWT:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Login successful.", "token": tokenString})
}

func createUser(ctx context.Context, users UserStore, email, password string) (*models.User, error) {
	// We MUST NOT store the plain-text password
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return users.Create(ctx, email, string(hash))
}

// EnsureAdmin creates the bootstrap administrator unless the email is
// already registered. Empty credentials skip the bootstrap.
func EnsureAdmin(ctx context.Context, users UserStore, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if _, err := createUser(ctx, users, email, password); err != nil && !errors.Is(err, apperr.ErrConflict) {
		return err
	}
	log.Println("[auth] bootstrap admin created:", email)
	return nil
}
