package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/redeemy/internal/auth"
	"github.com/wellywell/redeemy/internal/codegen"
	"github.com/wellywell/redeemy/internal/notify"
	"github.com/wellywell/redeemy/internal/types"
	"github.com/wellywell/redeemy/internal/validate"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

func (h *HandlerSet) handleAuthorizeAdmin(w http.ResponseWriter, req *http.Request) (string, bool) {
	admin, ok := auth.GetAuthenticatedUser(req)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return admin, true
}

func positiveInt(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, errors.New("must be a positive number")
	}
	return n, nil
}

func (h *HandlerSet) HandleListOrders(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()

	page, err := positiveInt(query.Get("page"), 1)
	if err != nil {
		http.Error(w, "page "+err.Error(), http.StatusBadRequest)
		return
	}
	perPage, err := positiveInt(query.Get("per_page"), defaultPerPage)
	if err != nil {
		http.Error(w, "per_page "+err.Error(), http.StatusBadRequest)
		return
	}
	perPage = min(perPage, maxPerPage)

	filter := types.OrderFilter{
		Search: strings.TrimSpace(query.Get("q")),
		Sort:   types.OldestFirst,
		Offset: (page - 1) * perPage,
		Limit:  perPage,
	}
	if s := query.Get("status"); s != "" {
		status := types.Status(s)
		if !status.Valid() {
			http.Error(w, "Unknown status", http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}

	ctx, cancel := h.withTimeout(req.Context())
	defer cancel()

	records, total, err := h.records.ListOrders(ctx, filter)
	if err != nil {
		handleUnavailable(err, w)
		return
	}

	views := make([]orderView, 0, len(records))
	for _, rec := range records {
		views = append(views, h.view(rec))
	}
	writeJSON(w, http.StatusOK, struct {
		Orders  []orderView `json:"orders"`
		Total   int         `json:"total"`
		Page    int         `json:"page"`
		PerPage int         `json:"per_page"`
		Pages   int         `json:"pages"`
	}{
		Orders:  views,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   int(math.Ceil(float64(total) / float64(perPage))),
	})
}

func (h *HandlerSet) HandleGetOrder(w http.ResponseWriter, req *http.Request) {
	rec, err := h.orders.Get(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		handleOrderErrors(err, w)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*rec))
}

func (h *HandlerSet) HandleAttachCredentials(w http.ResponseWriter, req *http.Request) {
	var data struct {
		LoginInfo string `json:"loginInfo" validate:"required"`
	}
	if err := readJSON(req, &data); err != nil {
		http.Error(w, "Could not parse body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.orders.AttachCredentials(req.Context(), chi.URLParam(req, "id"), data.LoginInfo)
	if err != nil {
		handleOrderErrors(err, w)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*rec))
}

func (h *HandlerSet) HandleIssueCodes(w http.ResponseWriter, req *http.Request) {
	var data struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"omitempty,email"`
		Count int    `json:"count" validate:"omitempty,min=1,max=50"`
	}
	if err := readJSON(req, &data); err != nil {
		http.Error(w, "Could not parse body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if data.Count == 0 {
		data.Count = 1
	}

	issued := make([]orderView, 0, data.Count)
	for range data.Count {
		rec, err := h.codes.Issue(req.Context(), codegen.Request{Name: data.Name, Email: data.Email})
		if err != nil {
			logger.Warningf("Issued %d of %d codes", len(issued), data.Count)
			if errors.Is(err, codegen.ErrExhaustedRetries) {
				logger.Error(err)
				http.Error(w, "Could not generate a unique code", http.StatusInternalServerError)
				return
			}
			handleUnavailable(err, w)
			return
		}
		issued = append(issued, h.view(*rec))
	}

	writeJSON(w, http.StatusCreated, struct {
		Orders []orderView `json:"orders"`
	}{Orders: issued})
}

func (h *HandlerSet) HandleCancelCode(w http.ResponseWriter, req *http.Request) {
	code := validate.NormalizeCode(chi.URLParam(req, "code"))

	rec, err := h.orders.Cancel(req.Context(), code)
	if err != nil {
		handleOrderErrors(err, w)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*rec))
}

func (h *HandlerSet) HandleDeleteOrders(w http.ResponseWriter, req *http.Request) {
	var data struct {
		IDs []string `json:"ids" validate:"required,min=1,dive,required"`
	}
	if err := readJSON(req, &data); err != nil {
		http.Error(w, "Could not parse body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := h.withTimeout(req.Context())
	defer cancel()

	deleted, err := h.records.DeleteOrders(ctx, data.IDs)
	if err != nil {
		handleUnavailable(err, w)
		return
	}
	logger.Infof("Deleted %d orders", deleted)

	writeJSON(w, http.StatusOK, struct {
		Deleted int64 `json:"deleted"`
	}{Deleted: deleted})
}

func (h *HandlerSet) poller(w http.ResponseWriter, req *http.Request) (*notify.Poller, bool) {
	admin, ok := h.handleAuthorizeAdmin(w, req)
	if !ok {
		return nil, false
	}
	return h.notifications.For(admin), true
}

func (h *HandlerSet) HandleGetNotifications(w http.ResponseWriter, req *http.Request) {
	p, ok := h.poller(w, req)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Notifications []types.Notification `json:"notifications"`
		Unread        int                  `json:"unread"`
	}{Notifications: p.Notifications(), Unread: p.Unread()})
}

// HandleMarkRead marks one notification read, or all of them when no id is given.
func (h *HandlerSet) HandleMarkRead(w http.ResponseWriter, req *http.Request) {
	p, ok := h.poller(w, req)
	if !ok {
		return
	}

	var data struct {
		ID string `json:"id"`
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "Could not read body", http.StatusBadRequest)
		return
	}
	// an empty body is the same as an empty id
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			http.Error(w, "Could not parse body", http.StatusBadRequest)
			return
		}
	}

	if data.ID == "" {
		p.MarkAllRead()
	} else if !p.MarkRead(data.ID) {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HandlerSet) HandleClearNotifications(w http.ResponseWriter, req *http.Request) {
	p, ok := h.poller(w, req)
	if !ok {
		return
	}
	p.Clear()
	w.WriteHeader(http.StatusNoContent)
}
