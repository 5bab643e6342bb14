package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"

	"canvasmind/internal/models"
	"canvasmind/internal/services"
)

// ProfileHandler serves profile CRUD, memory reset and canvas export.
type ProfileHandler struct {
	profiles *services.ProfileService
	sessions *services.SessionService
}

// NewProfileHandler builds the handler.
func NewProfileHandler(profiles *services.ProfileService, sessions *services.SessionService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, sessions: sessions}
}

type createProfileRequest struct {
	OwnerName    string   `json:"owner_name"`
	BusinessName string   `json:"business_name"`
	Sector       string   `json:"sector"`
	Challenges   []string `json:"challenges"`
	Goals        []string `json:"goals"`
}

// HandleCreate registers a new business profile and returns its token.
func (h *ProfileHandler) HandleCreate(c *fiber.Ctx) error {
	var req createProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.BusinessName) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "business_name is required")
	}

	profile := &models.UserProfile{
		OwnerName:    strings.TrimSpace(req.OwnerName),
		BusinessName: strings.TrimSpace(req.BusinessName),
		Sector:       strings.TrimSpace(req.Sector),
		Challenges:   req.Challenges,
		Goals:        req.Goals,
	}
	if err := h.profiles.CreateProfile(c.Context(), profile); err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(profile)
}

// HandleGet returns the profile for a token.
func (h *ProfileHandler) HandleGet(c *fiber.Ctx) error {
	profile, err := h.profiles.GetProfileByToken(c.Context(), c.Params("token"))
	if err != nil {
		return profileError(err)
	}
	return c.JSON(profile)
}

// HandleValidate reports whether a token exists without exposing the profile.
func (h *ProfileHandler) HandleValidate(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token query parameter is required")
	}
	valid, err := h.profiles.ValidateToken(c.Context(), token)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "validation failed")
	}
	return c.JSON(fiber.Map{"valid": valid})
}

// HandleGetMe reads the profile for the token query parameter. Same payload
// as HandleGet, for clients that avoid tokens in paths.
func (h *ProfileHandler) HandleGetMe(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token query parameter is required")
	}
	profile, err := h.profiles.GetProfileByToken(c.Context(), token)
	if err != nil {
		return profileError(err)
	}
	return c.JSON(profile)
}

type updateProfileRequest struct {
	Token        string   `json:"token"`
	OwnerName    string   `json:"owner_name"`
	BusinessName string   `json:"business_name"`
	Sector       string   `json:"sector"`
	Challenges   []string `json:"challenges"`
	Goals        []string `json:"goals"`
}

// HandleUpdate replaces the mutable profile fields. Insights are owned by
// the pipeline and never writable here.
func (h *ProfileHandler) HandleUpdate(c *fiber.Ctx) error {
	token := c.Params("token")
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Token != "" && req.Token != token {
		return fiber.NewError(fiber.StatusBadRequest, "token in body does not match path")
	}
	if strings.TrimSpace(req.BusinessName) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "business_name is required")
	}

	if err := h.profiles.UpdateProfile(c.Context(), token, models.UserProfile{
		OwnerName:    strings.TrimSpace(req.OwnerName),
		BusinessName: strings.TrimSpace(req.BusinessName),
		Sector:       strings.TrimSpace(req.Sector),
		Challenges:   req.Challenges,
		Goals:        req.Goals,
	}); err != nil {
		return profileError(err)
	}
	profile, err := h.profiles.GetProfileByToken(c.Context(), token)
	if err != nil {
		return profileError(err)
	}
	return c.JSON(profile)
}

// HandleDelete removes a profile and its sessions.
func (h *ProfileHandler) HandleDelete(c *fiber.Ctx) error {
	token := c.Params("token")
	if err := h.profiles.DeleteProfile(c.Context(), token); err != nil {
		return profileError(err)
	}
	h.sessions.Clear(token)
	return c.JSON(fiber.Map{"status": "deleted"})
}

// HandleResetMemory wipes learned insights and the in-memory sessions for a
// profile. The profile document itself survives.
func (h *ProfileHandler) HandleResetMemory(c *fiber.Ctx) error {
	token := c.Params("token")
	if err := h.profiles.ResetMemory(c.Context(), token); err != nil {
		return profileError(err)
	}
	h.sessions.Clear(token)
	return c.JSON(fiber.Map{"status": "reset"})
}

// HandleExport renders the profile's canvas as an XLSX workbook: one
// overview sheet plus one sheet per canvas block.
func (h *ProfileHandler) HandleExport(c *fiber.Ctx) error {
	profile, err := h.profiles.GetProfileByToken(c.Context(), c.Params("token"))
	if err != nil {
		return profileError(err)
	}

	f := excelize.NewFile()
	defer f.Close()

	overview := "Overview"
	f.SetSheetName(f.GetSheetName(0), overview)
	f.SetCellValue(overview, "A1", "Business")
	f.SetCellValue(overview, "B1", profile.BusinessName)
	f.SetCellValue(overview, "A2", "Owner")
	f.SetCellValue(overview, "B2", profile.OwnerName)
	f.SetCellValue(overview, "A3", "Sector")
	f.SetCellValue(overview, "B3", profile.Sector)
	f.SetCellValue(overview, "A5", "Block")
	f.SetCellValue(overview, "B5", "Facts")
	for i, block := range models.CanvasBlocks {
		row := 6 + i
		f.SetCellValue(overview, fmt.Sprintf("A%d", row), models.BlockDisplayNames[block])
		f.SetCellValue(overview, fmt.Sprintf("B%d", row), len(profile.Insights.CanvasState[block]))
	}

	for _, block := range models.CanvasBlocks {
		sheet := models.BlockDisplayNames[block]
		if _, err := f.NewSheet(sheet); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "export failed")
		}
		for i, fact := range profile.Insights.CanvasState[block] {
			f.SetCellValue(sheet, fmt.Sprintf("A%d", i+1), fact)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "export failed")
	}

	filename := strings.ReplaceAll(strings.TrimSpace(profile.BusinessName), " ", "_")
	if filename == "" {
		filename = "canvas"
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s_canvas.xlsx"`, filename))
	return c.Send(buf.Bytes())
}

// HandleListExperts returns the advisory persona registry.
func (h *ProfileHandler) HandleListExperts(c *fiber.Ctx) error {
	return c.JSON(services.ListExperts())
}

// HandleAdminList returns every profile. Guarded by the admin middleware.
func (h *ProfileHandler) HandleAdminList(c *fiber.Ctx) error {
	profiles, err := h.profiles.ListProfiles(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "listing failed")
	}
	return c.JSON(fiber.Map{"count": len(profiles), "profiles": profiles})
}

func profileError(err error) error {
	if err == services.ErrProfileNotFound {
		return fiber.NewError(fiber.StatusNotFound, "unknown user token")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "profile operation failed")
}
