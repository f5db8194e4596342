package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/redeemy/internal/auth"
	"github.com/wellywell/redeemy/internal/codegen"
	"github.com/wellywell/redeemy/internal/notify"
	"github.com/wellywell/redeemy/internal/order"
	"github.com/wellywell/redeemy/internal/store"
	"github.com/wellywell/redeemy/internal/tracking"
	"github.com/wellywell/redeemy/internal/types"
	"github.com/wellywell/redeemy/internal/validate"
)

// OrderStore covers the admin operations that bypass the state machine.
type OrderStore interface {
	ListOrders(ctx context.Context, filter types.OrderFilter) ([]types.OrderRecord, int, error)
	DeleteOrders(ctx context.Context, ids []string) (int64, error)
}

type Dependencies struct {
	Secret               []byte
	CookieExpiresSeconds int
	AllowSignup          bool
	// RequestTimeout bounds store calls made directly by handlers. Zero means no bound.
	RequestTimeout time.Duration

	Orders        *order.Service
	Codes         *codegen.Generator
	Notifications *notify.Hub
	Records       OrderStore
	Users         store.UserStore
}

type HandlerSet struct {
	secret               []byte
	cookieExpiresSeconds int
	allowSignup          bool
	requestTimeout       time.Duration

	orders        *order.Service
	codes         *codegen.Generator
	notifications *notify.Hub
	records       OrderStore
	users         store.UserStore
	now           func() time.Time
}

var (
	ErrCouldNotParseBody = errors.New("could not parse body")
	ErrAuthDataEmpty     = errors.New("login or password cannot be empty")
)

func NewHandlerSet(deps Dependencies) *HandlerSet {
	return &HandlerSet{
		secret:               deps.Secret,
		cookieExpiresSeconds: deps.CookieExpiresSeconds,
		allowSignup:          deps.AllowSignup,
		requestTimeout:       deps.RequestTimeout,
		orders:               deps.Orders,
		codes:                deps.Codes,
		notifications:        deps.Notifications,
		records:              deps.Records,
		users:                deps.Users,
		now:                  time.Now,
	}
}

// orderView is a record together with its decoded progress steps.
type orderView struct {
	types.OrderRecord
	Steps [3]types.StepView `json:"steps"`
}

func (h *HandlerSet) view(rec types.OrderRecord) orderView {
	return orderView{OrderRecord: rec, Steps: tracking.Project(rec, h.now()).Steps}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	response, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Could not serialize result",
			http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(response); err != nil {
		logger.Errorf("Writing response failed: %s", err)
	}
}

func (h *HandlerSet) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.requestTimeout)
}

// handleUnavailable answers a failed store call with a retryable 503.
func handleUnavailable(err error, w http.ResponseWriter) {
	logger.Error(err)
	if errors.Is(err, context.DeadlineExceeded) {
		http.Error(w, "Request timed out, please try again", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "Service temporarily unavailable, please try again", http.StatusServiceUnavailable)
}

func readJSON(req *http.Request, v any) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return ErrCouldNotParseBody
	}
	return nil
}

// handleOrderErrors maps state machine errors onto HTTP answers.
func handleOrderErrors(err error, w http.ResponseWriter) {
	var storeFailure *order.StoreFailureError

	switch {
	case errors.Is(err, order.ErrInvalidCode):
		http.Error(w, "Invalid redemption code", http.StatusNotFound)
	case errors.Is(err, order.ErrNotFound):
		http.Error(w, "Order not found", http.StatusNotFound)
	case errors.Is(err, order.ErrAlreadyRedeemed):
		http.Error(w, "Code already redeemed", http.StatusConflict)
	case errors.Is(err, order.ErrOrderCancelled):
		http.Error(w, "Order cancelled", http.StatusConflict)
	case errors.Is(err, order.ErrOrderMismatch):
		http.Error(w, "Order id does not match", http.StatusUnprocessableEntity)
	case errors.Is(err, order.ErrMissingField):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &storeFailure):
		logger.Error(err)
		if storeFailure.Timeout() {
			http.Error(w, "Request timed out, please try again", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Service temporarily unavailable, please try again", http.StatusServiceUnavailable)
	default:
		logger.Error(err)
		http.Error(w, "Unknown error", http.StatusInternalServerError)
	}
}

func (h *HandlerSet) HandleCheckCode(w http.ResponseWriter, req *http.Request) {
	code := validate.NormalizeCode(chi.URLParam(req, "code"))

	availability := order.InvalidCode
	if validate.ValidateCode(code) {
		var err error
		availability, err = h.orders.CheckRedeemable(req.Context(), code)
		if err != nil {
			handleOrderErrors(err, w)
			return
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Code         string             `json:"code"`
		Availability order.Availability `json:"availability"`
	}{Code: code, Availability: availability})
}

func (h *HandlerSet) HandleRedeem(w http.ResponseWriter, req *http.Request) {
	var data struct {
		Code    string `json:"code" validate:"required,redeemcode"`
		Email   string `json:"email" validate:"required,email"`
		OrderID string `json:"orderId"`
	}
	if err := readJSON(req, &data); err != nil {
		http.Error(w, "Could not parse body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.orders.SubmitRedemption(req.Context(), order.Redemption{
		Code:    validate.NormalizeCode(data.Code),
		Email:   data.Email,
		OrderID: data.OrderID,
	})
	if err != nil {
		handleOrderErrors(err, w)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*rec))
}

func (h *HandlerSet) HandleTrack(w http.ResponseWriter, req *http.Request) {
	code := validate.NormalizeCode(chi.URLParam(req, "code"))
	if !validate.ValidateCode(code) {
		http.Error(w, "Invalid redemption code", http.StatusNotFound)
		return
	}

	rec, err := h.orders.Track(req.Context(), code)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			http.Error(w, "Invalid redemption code", http.StatusNotFound)
			return
		}
		handleOrderErrors(err, w)
		return
	}
	writeJSON(w, http.StatusOK, tracking.Project(*rec, h.now()))
}

func (h *HandlerSet) parseAuthData(req *http.Request) (username string, password string, err error) {

	var data struct {
		Username string `json:"login"`
		Password string `json:"password"`
	}

	if err = readJSON(req, &data); err != nil {
		return "", "", ErrCouldNotParseBody
	}

	if data.Username == "" || data.Password == "" {
		return "", "", ErrAuthDataEmpty
	}

	return data.Username, data.Password, nil
}

func (h *HandlerSet) handleAuthErrors(err error, w http.ResponseWriter) {

	if errors.Is(err, ErrCouldNotParseBody) {
		http.Error(w, "Could not parse body",
			http.StatusBadRequest)
	} else if errors.Is(err, ErrAuthDataEmpty) {
		http.Error(w, "Login and password cannot be empty",
			http.StatusBadRequest)
	} else {
		http.Error(w, "Unknown error", http.StatusInternalServerError)
	}
}

func (h *HandlerSet) HandleLogin(w http.ResponseWriter, req *http.Request) {

	username, password, err := h.parseAuthData(req)
	if err != nil {
		h.handleAuthErrors(err, w)
		return
	}

	passwordInDB, err := h.users.GetUserHashedPassword(req.Context(), username)
	if err != nil {
		var userNotFound *store.UserNotFoundError
		if errors.As(err, &userNotFound) {
			http.Error(w, "Wrong login or password", http.StatusUnauthorized)
			return
		}
		logger.Error(err)
		http.Error(w, "Something went wrong", http.StatusInternalServerError)
		return
	}

	if !auth.CheckPasswordHash(password, passwordInDB) {
		http.Error(w, "Wrong login or password", http.StatusUnauthorized)
		return
	}

	h.startSession(username, w)
}

func (h *HandlerSet) HandleRegisterAdmin(w http.ResponseWriter, req *http.Request) {

	if !h.allowSignup {
		http.Error(w, "Registration is disabled", http.StatusForbidden)
		return
	}

	username, password, err := h.parseAuthData(req)
	if err != nil {
		h.handleAuthErrors(err, w)
		return
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		http.Error(w, "Something went wrong",
			http.StatusInternalServerError)
		return
	}

	err = h.users.CreateUser(req.Context(), username, hashed)
	if err != nil {
		var userExists *store.UserExistsError
		if errors.As(err, &userExists) {
			http.Error(w, "User exists", http.StatusConflict)
			return
		}
		logger.Error(err)
		http.Error(w, "Something went wrong", http.StatusInternalServerError)
		return
	}

	h.startSession(username, w)
}

func (h *HandlerSet) startSession(username string, w http.ResponseWriter) {
	if err := auth.SetAuthCookie(username, w, h.secret, h.cookieExpiresSeconds); err != nil {
		http.Error(w, "Something went wrong",
			http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("success")); err != nil {
		logger.Errorf("Writing response failed: %s", err)
	}
}

// HandleLogout ends the session and drops the notification state of the admin.
func (h *HandlerSet) HandleLogout(w http.ResponseWriter, req *http.Request) {
	if admin, err := auth.VerifyUser(req, h.secret); err == nil {
		h.notifications.Release(admin)
	}
	auth.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
