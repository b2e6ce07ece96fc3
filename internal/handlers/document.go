package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/schoolhub/apiserver/internal/auth"
	"github.com/schoolhub/apiserver/internal/services"
	"github.com/schoolhub/apiserver/types"
)

const maxDocumentBytes = 32 << 20

// DocumentHandler stores and serves branch documents.
type DocumentHandler struct {
	documents *services.DocumentService
	gate      branchGate
}

func NewDocumentHandler(
	documents *services.DocumentService,
	branchService *services.BranchService,
	authorizer *auth.Authorizer,
) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		gate:      branchGate{branches: branchService, authorizer: authorizer},
	}
}

// PutDocument stores the raw request body under the given name.
func (h *DocumentHandler) PutDocument(w http.ResponseWriter, r *http.Request) {
	branch, user, ok := h.gate.load(w, r, staffRoles...)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	if !services.ValidDocumentName(name) {
		writeError(w, http.StatusBadRequest, "invalid document name")
		return
	}

	data, err := readFileLimited(r.Body, maxDocumentBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.documents.Put(r.Context(), branch.ID, name, bytes.NewReader(data), int64(len(data)), r.Header.Get("Content-Type"))
	if err != nil {
		log.Printf("put document failed branch_id=%s name=%s user_id=%s err=%v", branch.ID, name, user.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	branch, _, ok := h.gate.load(w, r, types.AllRoles()...)
	if !ok {
		return
	}

	doc, body, err := h.documents.Get(r.Context(), branch.ID, chi.URLParam(r, "name"))
	if err != nil {
		h.writeDocumentError(w, branch.ID, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("stream document failed branch_id=%s name=%s err=%v", branch.ID, doc.Name, err)
	}
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	branch, _, ok := h.gate.load(w, r, staffRoles...)
	if !ok {
		return
	}

	if err := h.documents.Delete(r.Context(), branch.ID, chi.URLParam(r, "name")); err != nil {
		h.writeDocumentError(w, branch.ID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) writeDocumentError(w http.ResponseWriter, branchID string, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidDocumentName):
		writeError(w, http.StatusBadRequest, "invalid document name")
	case errors.Is(err, services.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	default:
		log.Printf("document request failed branch_id=%s err=%v", branchID, err)
		writeError(w, http.StatusInternalServerError, "failed to access document")
	}
}
