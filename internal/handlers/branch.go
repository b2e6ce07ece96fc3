package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/schoolhub/apiserver/internal/auth"
	"github.com/schoolhub/apiserver/internal/services"
	"github.com/schoolhub/apiserver/internal/store"
	"github.com/schoolhub/apiserver/types"
)

var (
	staffRoles   = []types.Role{types.RoleSuperAdmin, types.RoleBranchAdmin, types.RoleRegistrar}
	managerRoles = []types.Role{types.RoleSuperAdmin, types.RoleBranchAdmin}
)

// BranchHandler serves branch-scoped reads and account management.
type BranchHandler struct {
	branchService *services.BranchService
	userService   *services.UserService
	authorizer    *auth.Authorizer
	gate          branchGate
}

func NewBranchHandler(
	branchService *services.BranchService,
	userService *services.UserService,
	authorizer *auth.Authorizer,
) *BranchHandler {
	return &BranchHandler{
		branchService: branchService,
		userService:   userService,
		authorizer:    authorizer,
		gate:          branchGate{branches: branchService, authorizer: authorizer},
	}
}

// BranchRouter registers /branches routes. Every route requires
// authentication. Document routes are skipped when documents is nil.
func BranchRouter(
	r chi.Router,
	handler *BranchHandler,
	documents *DocumentHandler,
	authMiddleware func(http.Handler) http.Handler,
) {
	r.Use(authMiddleware)
	r.Route("/{branchID}", func(r chi.Router) {
		r.Get("/", handler.GetBranch)
		r.Get("/users", handler.ListBranchUsers)
		if documents != nil {
			r.Route("/documents/{name}", func(r chi.Router) {
				r.Get("/", documents.GetDocument)
				r.With(RequireRole(staffRoles...)).Put("/", documents.PutDocument)
				r.With(RequireRole(staffRoles...)).Delete("/", documents.DeleteDocument)
			})
		}
	})
}

// SchoolRouter registers /schools routes.
func SchoolRouter(r chi.Router, handler *BranchHandler, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware, RequireRole(types.RoleSuperAdmin)).Get("/{schoolID}/branches", handler.ListSchoolBranches)
}

// UserRouter registers /users routes.
func UserRouter(r chi.Router, handler *BranchHandler, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware, RequireRole(managerRoles...)).Patch("/{userID}/active", handler.SetUserActive)
}

func (h *BranchHandler) GetBranch(w http.ResponseWriter, r *http.Request) {
	branch, _, ok := h.gate.load(w, r, types.AllRoles()...)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, branch)
}

func (h *BranchHandler) ListBranchUsers(w http.ResponseWriter, r *http.Request) {
	branch, _, ok := h.gate.load(w, r, staffRoles...)
	if !ok {
		return
	}

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, total, err := h.userService.ListByBranch(r.Context(), branch.ID, offset, limit)
	if err != nil {
		log.Printf("list branch users failed branch_id=%s err=%v", branch.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Items: users,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *BranchHandler) ListSchoolBranches(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	schoolID := chi.URLParam(r, "schoolID")
	if !h.authorizer.CanAccessSchool(user, schoolID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	branches, err := h.branchService.ListBySchool(r.Context(), schoolID)
	if err != nil {
		log.Printf("list branches failed school_id=%s err=%v", schoolID, err)
		writeError(w, http.StatusInternalServerError, "failed to list branches")
		return
	}
	writeJSON(w, http.StatusOK, BranchListResponse{Items: branches})
}

// SetUserActive activates or deactivates an account in the caller's reach.
// Deactivation ends the target's sessions on their next request.
func (h *BranchHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	targetID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if targetID == user.ID && !*req.Active {
		writeError(w, http.StatusBadRequest, "cannot deactivate own account")
		return
	}

	target, err := h.userService.GetByID(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("load user failed user_id=%s err=%v", targetID, err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	if !h.canManage(user, target) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := h.userService.SetActive(r.Context(), target.ID, *req.Active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("set active failed user_id=%s err=%v", target.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BranchHandler) canManage(user types.AuthUser, target types.User) bool {
	if !h.authorizer.CanAccessSchool(user, target.SchoolID) {
		return false
	}
	if target.Role == types.RoleSuperAdmin && user.Role != types.RoleSuperAdmin {
		return false
	}
	branchID := ""
	if target.BranchID != nil {
		branchID = *target.BranchID
	}
	return h.authorizer.CanAccessBranch(user, branchID)
}

// branchGate guards routes under /branches/{branchID}.
type branchGate struct {
	branches   *services.BranchService
	authorizer *auth.Authorizer
}

// load applies the role and branch gates before touching the store, then
// confines the caller to its own school. It writes the error response
// itself and reports whether the handler may continue.
func (g branchGate) load(w http.ResponseWriter, r *http.Request, roles ...types.Role) (types.Branch, types.AuthUser, bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return types.Branch{}, types.AuthUser{}, false
	}

	branchID := strings.TrimSpace(chi.URLParam(r, "branchID"))
	if err := g.authorizer.Authorize(user, branchID, roles...); err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return types.Branch{}, types.AuthUser{}, false
	}

	branch, err := g.branches.Get(r.Context(), branchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "branch not found")
			return types.Branch{}, types.AuthUser{}, false
		}
		log.Printf("load branch failed branch_id=%s err=%v", branchID, err)
		writeError(w, http.StatusInternalServerError, "failed to load branch")
		return types.Branch{}, types.AuthUser{}, false
	}

	if !g.authorizer.CanAccessSchool(user, branch.SchoolID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return types.Branch{}, types.AuthUser{}, false
	}
	return branch, user, true
}

type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// UserListResponse is the paginated list response payload.
type UserListResponse struct {
	Items []types.User `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

type BranchListResponse struct {
	Items []types.Branch `json:"items"`
}
