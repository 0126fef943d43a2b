// Account HTTP handlers.
//
//   - POST /auth/register        (create account)
//   - POST /auth/login           (issue bearer token)
//   - POST /auth/reset-password  (change password, revokes tokens)
//   - POST /auth/logout          (revoke the caller's tokens)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rag-backend/internal/http/middleware"
)

// CredentialsRequest is the payload of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"    binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
}

// ResetPasswordRequest changes a password given the current one.
type ResetPasswordRequest struct {
	Email           string `json:"email"            binding:"required" example:"ada@example.com"`
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password"     binding:"required"`
}

// UserResponse describes a registered account.
type UserResponse struct {
	ID        string    `json:"id"         example:"3f6c1d2a-8b1e-4c59-9d77-0e2b4f1a6c11"`
	Email     string    `json:"email"      example:"ada@example.com"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token     string    `json:"token"      example:"5b0f3c3e-2f1d-4a8e-9a55-7d1c2e3f4a5b"`
	TokenType string    `json:"token_type" example:"Bearer"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Email and password"
// @Success     201   {object}  handlers.UserResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid email or weak password"
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}
	u, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, UserResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt})
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Exchanges credentials for an opaque bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Email and password"
// @Success     200   {object}  handlers.TokenResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}
	tok, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TokenResponse{Token: tok.Token, TokenType: "Bearer", ExpiresAt: tok.ExpiresAt})
}

// ResetPassword godoc
// @ID          resetPassword
// @Summary     Change a password
// @Description Verifies the current password, stores the new one and revokes every token of the account.
// @Tags        Auth
// @Accept      json
// @Param       body  body  handlers.ResetPasswordRequest  true  "Current and new password"
// @Success     204   {string}  string  "No Content"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Router      /auth/reset-password [post]
func (h *Handlers) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email, current_password and new_password required")
		return
	}
	if err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.CurrentPassword, req.NewPassword); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Description Revokes every bearer token of the caller.
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.UserID(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
