package auth

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windrig/backend/internal/models"
	"github.com/windrig/backend/pkg/response"
	"github.com/windrig/backend/pkg/utils"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token    string          `json:"token"`
	Operator models.Operator `json:"operator"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   *Repository
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	op, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, op.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(op.ID, op.Email, op.Role)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, Operator: *op})
}

// Me handles GET /auth/me: the profile of the operator behind the token.
func (h *Handler) Me(c *gin.Context) {
	idVal, ok := c.Get(ContextOperatorID)
	if !ok {
		response.Unauthorized(c, "missing operator context")
		return
	}
	id, ok := idVal.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "invalid operator context")
		return
	}
	op, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "operator not found")
		return
	}
	response.OK(c, op)
}

// CreateOperatorRequest is the body for POST /operators.
type CreateOperatorRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

// CreateOperator handles POST /operators (admin only).
func (h *Handler) CreateOperator(c *gin.Context) {
	var req CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleOperator
	}
	if role != models.RoleAdmin && role != models.RoleOperator {
		response.BadRequest(c, "unknown role: "+role)
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("password hash failed", zap.Error(err))
		response.Internal(c, "failed to create operator")
		return
	}
	op, err := h.repo.Create(c.Request.Context(), req.Email, hash, role)
	if err != nil {
		h.logger.Error("create operator failed", zap.Error(err), zap.String("email", req.Email))
		response.Internal(c, "failed to create operator")
		return
	}
	response.Created(c, op)
}

// Bootstrap creates an admin operator from config when the operators table is
// empty, so a fresh install can log in. No-op when operators exist or no
// password is configured.
func Bootstrap(ctx context.Context, repo *Repository, email, password string, logger *zap.Logger) error {
	if password == "" {
		return nil
	}
	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := repo.Create(ctx, email, hash, models.RoleAdmin); err != nil {
		return err
	}
	logger.Info("bootstrap operator created", zap.String("email", email))
	return nil
}
