package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/identity"
	"github.com/vibepatch/identity/internal/models"
)

// ProfileHandler serves account profile endpoints.
type ProfileHandler struct {
	accounts *accounts.Store
	ledger   *identity.Ledger
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(store *accounts.Store, ledger *identity.Ledger) *ProfileHandler {
	return &ProfileHandler{accounts: store, ledger: ledger}
}

// Get returns the caller's profile with its identity bindings.
func (h *ProfileHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := currentAccountID(c)

	account, errFind := h.accounts.GetByID(ctx, accountID)
	if errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	bindings, errList := h.ledger.ListForAccount(ctx, accountID)
	if errList != nil {
		log.WithError(errList).Error("profile: list bindings failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}
	items := make([]gin.H, 0, len(bindings))
	for i := range bindings {
		items = append(items, bindingResponse(&bindings[i]))
	}

	body := accountResponse(account)
	body["identities"] = items
	c.JSON(http.StatusOK, body)
}

// updateProfileRequest defines the request body for profile updates.
// Absent fields stay untouched.
type updateProfileRequest struct {
	Nickname  *string `json:"nickname"`
	AvatarURL *string `json:"avatar_url"`
	Phone     *string `json:"phone"`
	Bio       *string `json:"bio"`
}

// Update applies a partial profile update and returns the result.
func (h *ProfileHandler) Update(c *gin.Context) {
	var body updateProfileRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Nickname != nil && strings.TrimSpace(*body.Nickname) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nickname cannot be empty"})
		return
	}

	ctx := c.Request.Context()
	accountID := currentAccountID(c)
	errUpdate := h.accounts.UpdateProfile(ctx, accountID, accounts.ProfileUpdate{
		Nickname:  body.Nickname,
		AvatarURL: body.AvatarURL,
		Phone:     body.Phone,
		Bio:       body.Bio,
	})
	if errors.Is(errUpdate, accounts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if errUpdate != nil {
		log.WithError(errUpdate).Error("profile update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	account, errFind := h.accounts.GetByID(ctx, accountID)
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}
	c.JSON(http.StatusOK, accountResponse(account))
}

// SolverGet returns the caller's solver profile.
func (h *ProfileHandler) SolverGet(c *gin.Context) {
	profile, errFind := h.accounts.GetSolverProfile(c.Request.Context(), currentAccountID(c))
	if errFind != nil {
		log.WithError(errFind).Error("solver profile load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load solver profile"})
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "solver profile not found"})
		return
	}
	c.JSON(http.StatusOK, solverProfileResponse(profile))
}

// updateSolverRequest defines the request body for solver profile updates.
type updateSolverRequest struct {
	ExperienceYears *int     `json:"experience_years"`
	ExpertiseAreas  []string `json:"expertise_areas"`
	Resume          *string  `json:"resume"`
	HourlyRate      *float64 `json:"hourly_rate"`
	Available       *bool    `json:"available"`
}

// SolverUpdate applies a partial solver profile update.
func (h *ProfileHandler) SolverUpdate(c *gin.Context) {
	var body updateSolverRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.ExperienceYears != nil && *body.ExperienceYears < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "experience years cannot be negative"})
		return
	}
	if body.HourlyRate != nil && *body.HourlyRate < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hourly rate cannot be negative"})
		return
	}

	update := accounts.SolverProfileUpdate{
		ExperienceYears: body.ExperienceYears,
		Resume:          body.Resume,
		HourlyRate:      body.HourlyRate,
		Available:       body.Available,
	}
	if body.ExpertiseAreas != nil {
		areas, errMarshal := json.Marshal(body.ExpertiseAreas)
		if errMarshal != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expertise areas"})
			return
		}
		update.ExpertiseAreas = datatypes.JSON(areas)
	}

	ctx := c.Request.Context()
	accountID := currentAccountID(c)
	errUpdate := h.accounts.UpdateSolverProfile(ctx, accountID, update)
	if errors.Is(errUpdate, accounts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "solver profile not found"})
		return
	}
	if errUpdate != nil {
		log.WithError(errUpdate).Error("solver profile update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update solver profile"})
		return
	}

	profile, errFind := h.accounts.GetSolverProfile(ctx, accountID)
	if errFind != nil || profile == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load solver profile"})
		return
	}
	c.JSON(http.StatusOK, solverProfileResponse(profile))
}

// Public returns the safe, public view of any account.
func (h *ProfileHandler) Public(c *gin.Context) {
	accountID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	ctx := c.Request.Context()
	account, errFind := h.accounts.GetByID(ctx, accountID)
	if errFind != nil || account.Disabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	body := gin.H{
		"id":         account.ID,
		"nickname":   account.Nickname,
		"role":       account.Role,
		"avatar_url": account.AvatarURL,
		"verified":   account.Verified,
		"bio":        account.Bio,
		"created_at": account.CreatedAt,
	}
	if account.CanSolve() {
		profile, errProfile := h.accounts.GetSolverProfile(ctx, accountID)
		if errProfile == nil && profile != nil {
			body["solver"] = gin.H{
				"rating":           profile.Rating,
				"total_solved":     profile.TotalSolved,
				"available":        profile.Available,
				"experience_years": profile.ExperienceYears,
				"expertise_areas":  profile.ExpertiseAreas,
			}
		}
	}
	c.JSON(http.StatusOK, body)
}

// solverProfileResponse shapes a solver profile for its owner.
func solverProfileResponse(profile *models.SolverProfile) gin.H {
	return gin.H{
		"experience_years": profile.ExperienceYears,
		"expertise_areas":  profile.ExpertiseAreas,
		"resume":           profile.Resume,
		"hourly_rate":      profile.HourlyRate,
		"rating":           profile.Rating,
		"total_solved":     profile.TotalSolved,
		"available":        profile.Available,
		"updated_at":       profile.UpdatedAt,
	}
}
