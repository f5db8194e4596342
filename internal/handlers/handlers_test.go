package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellywell/redeemy/internal/auth"
	"github.com/wellywell/redeemy/internal/codegen"
	"github.com/wellywell/redeemy/internal/memstore"
	"github.com/wellywell/redeemy/internal/notify"
	"github.com/wellywell/redeemy/internal/order"
	"github.com/wellywell/redeemy/internal/types"
)

var secret = []byte("secret")

type orderResponse struct {
	ID         string           `json:"id"`
	Code       string           `json:"code"`
	Name       *string          `json:"name"`
	Email      *string          `json:"email"`
	OrderID    *string          `json:"orderId"`
	Status     types.Status     `json:"status"`
	IsRedeemed bool             `json:"isRedeemed"`
	LoginInfo  *string          `json:"loginInfo"`
	Steps      []types.StepView `json:"steps"`
}

type fixture struct {
	store   *memstore.Store
	handler http.Handler
	cookie  *http.Cookie
}

func routes(h *HandlerSet) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/codes/{code}", h.HandleCheckCode)
	r.Post("/api/redeem", h.HandleRedeem)
	r.Get("/api/track/{code}", h.HandleTrack)
	r.Post("/api/admin/register", h.HandleRegisterAdmin)
	r.Post("/api/admin/login", h.HandleLogin)
	r.Post("/api/admin/logout", h.HandleLogout)

	authMiddleware := &auth.AuthenticateMiddleware{Secret: secret}
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/admin/orders", h.HandleListOrders)
		r.Delete("/api/admin/orders", h.HandleDeleteOrders)
		r.Get("/api/admin/orders/{id}", h.HandleGetOrder)
		r.Post("/api/admin/orders/{id}/credentials", h.HandleAttachCredentials)
		r.Post("/api/admin/codes", h.HandleIssueCodes)
		r.Post("/api/admin/codes/{code}/cancel", h.HandleCancelCode)
		r.Get("/api/admin/notifications", h.HandleGetNotifications)
		r.Post("/api/admin/notifications/read", h.HandleMarkRead)
		r.Delete("/api/admin/notifications", h.HandleClearNotifications)
	})
	return r
}

func newFixture(t *testing.T, allowSignup bool) *fixture {
	t.Helper()

	s := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := notify.NewHub(ctx, s, 10*time.Millisecond, notify.DefaultLimit)
	t.Cleanup(hub.Close)

	hash, err := auth.HashPassword("password")
	require.NoError(t, err)
	require.NoError(t, s.CreateUser(ctx, "admin", hash))

	h := NewHandlerSet(Dependencies{
		Secret:               secret,
		CookieExpiresSeconds: 60,
		AllowSignup:          allowSignup,
		Orders:               order.NewService(s),
		Codes:                codegen.NewGenerator(s),
		Notifications:        hub,
		Records:              s,
		Users:                s,
	})

	w := httptest.NewRecorder()
	require.NoError(t, auth.SetAuthCookie("admin", w, secret, 60))

	return &fixture{store: s, handler: routes(h), cookie: w.Result().Cookies()[0]}
}

func (f *fixture) do(method string, path string, body string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if admin {
		req.AddCookie(f.cookie)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) seed(t *testing.T, code string, orderID *string) types.OrderRecord {
	t.Helper()
	now := time.Now()
	rec, err := f.store.InsertOrder(context.Background(), types.NewOrder{
		Code:       code,
		OrderID:    orderID,
		Pending:    types.Step{Label: types.PendingStepLabel, Status: types.StepCompleted, Timestamp: &now},
		Processing: types.Step{Label: types.ProcessingStepLabel, Status: types.StepProcessing},
		CreatedAt:  now,
	})
	require.NoError(t, err)
	return *rec
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestCheckCode(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "ABC123", nil)

	testCases := []struct {
		path         string
		availability order.Availability
	}{
		{"/api/codes/ABC123", order.Redeemable},
		{"/api/codes/abc123", order.Redeemable},
		{"/api/codes/NOPE", order.InvalidCode},
		{"/api/codes/AB-C", order.InvalidCode},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			w := f.do(http.MethodGet, tc.path, "", false)
			require.Equal(t, http.StatusOK, w.Code)

			got := decode[struct {
				Availability order.Availability `json:"availability"`
			}](t, w)
			assert.Equal(t, tc.availability, got.Availability)
		})
	}
}

func TestRedemptionFlow(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/api/admin/codes", `{"name": "Alice", "email": "alice@example.com"}`, true)
	require.Equal(t, http.StatusCreated, w.Code)
	issued := decode[struct {
		Orders []orderResponse `json:"orders"`
	}](t, w)
	require.Len(t, issued.Orders, 1)
	code := issued.Orders[0].Code
	id := issued.Orders[0].ID
	assert.Equal(t, types.PendingStatus, issued.Orders[0].Status)

	w = f.do(http.MethodPost, "/api/redeem", `{"code": "`+strings.ToLower(code)+`", "email": "alice@example.com", "orderId": "A-1"}`, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	redeemed := decode[orderResponse](t, w)
	assert.True(t, redeemed.IsRedeemed)
	assert.Equal(t, types.ProcessingStatus, redeemed.Status)
	assert.Equal(t, "A-1", types.Deref(redeemed.OrderID))
	require.Len(t, redeemed.Steps, 3)
	assert.Equal(t, types.StepCompleted, redeemed.Steps[1].Status)
	assert.Equal(t, types.StepProcessing, redeemed.Steps[2].Status)

	w = f.do(http.MethodPost, "/api/redeem", `{"code": "`+code+`", "email": "bob@example.com"}`, false)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Code already redeemed\n", w.Body.String())

	w = f.do(http.MethodGet, "/api/track/"+code, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	tracked := decode[types.Tracking](t, w)
	assert.Nil(t, tracked.LoginInfo)
	assert.Equal(t, types.ProcessingStatus, tracked.Status)

	w = f.do(http.MethodPost, "/api/admin/orders/"+id+"/credentials", `{"loginInfo": "user / pass"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/track/"+code, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	tracked = decode[types.Tracking](t, w)
	assert.Equal(t, types.CompletedStatus, tracked.Status)
	assert.Equal(t, "user / pass", types.Deref(tracked.LoginInfo))
	assert.Equal(t, types.StepCompleted, tracked.Steps[2].Status)

	w = f.do(http.MethodGet, "/api/admin/orders/"+id, "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice@example.com", types.Deref(decode[orderResponse](t, w).Email))
}

func TestRedeemErrors(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "WITHID", types.StringPtr("42"))
	f.seed(t, "GONE", nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/admin/codes/GONE/cancel", "", true).Code)

	testCases := []struct {
		name         string
		body         string
		expectedCode int
		expectedBody string
	}{
		{name: "not json", body: "smth", expectedCode: http.StatusBadRequest, expectedBody: "Could not parse body\n"},
		{name: "no email", body: `{"code": "WITHID"}`, expectedCode: http.StatusBadRequest},
		{name: "bad email", body: `{"code": "WITHID", "email": "nope"}`, expectedCode: http.StatusBadRequest},
		{name: "unknown code", body: `{"code": "MISSING", "email": "a@b.co"}`, expectedCode: http.StatusNotFound, expectedBody: "Invalid redemption code\n"},
		{name: "malformed code", body: `{"code": "AB C", "email": "a@b.co"}`, expectedCode: http.StatusBadRequest, expectedBody: "field code failed redeemcode check\n"},
		{name: "overlong code", body: `{"code": "` + strings.Repeat("A", 65) + `", "email": "a@b.co"}`, expectedCode: http.StatusBadRequest, expectedBody: "field code failed redeemcode check\n"},
		{name: "lowercase code", body: `{"code": " withid ", "email": "a@b.co", "orderId": "43"}`, expectedCode: http.StatusUnprocessableEntity},
		{name: "order mismatch", body: `{"code": "WITHID", "email": "a@b.co", "orderId": "43"}`, expectedCode: http.StatusUnprocessableEntity},
		{name: "cancelled", body: `{"code": "GONE", "email": "a@b.co"}`, expectedCode: http.StatusConflict, expectedBody: "Order cancelled\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/redeem", tc.body, false)
			assert.Equal(t, tc.expectedCode, w.Code)
			if tc.expectedBody != "" {
				assert.Equal(t, tc.expectedBody, w.Body.String())
			}
		})
	}

	rec, err := f.store.FindByCode(context.Background(), "WITHID")
	require.NoError(t, err)
	assert.False(t, rec.IsRedeemed)
}

func TestTrackUnknownCode(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodGet, "/api/track/NOPE", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Invalid redemption code\n", w.Body.String())
}

type failingStore struct{}

func (failingStore) FindByCode(ctx context.Context, code string) (*types.OrderRecord, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) FindByID(ctx context.Context, id string) (*types.OrderRecord, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) UpdateByCode(ctx context.Context, code string, patch types.OrderPatch) (*types.OrderRecord, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) UpdateByID(ctx context.Context, id string, patch types.OrderPatch) (*types.OrderRecord, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsRetryable(t *testing.T) {
	h := NewHandlerSet(Dependencies{Secret: secret, Orders: order.NewService(failingStore{})})
	r := routes(h)

	req := httptest.NewRequest(http.MethodPost, "/api/redeem", strings.NewReader(`{"code": "ABC", "email": "a@b.co"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/codes/ABC", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminRequiresSession(t *testing.T) {
	f := newFixture(t, false)

	for _, path := range []string{"/api/admin/orders", "/api/admin/notifications"} {
		w := f.do(http.MethodGet, path, "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, false)

	testCases := []struct {
		name         string
		body         string
		expectedCode int
	}{
		{name: "wrong body", body: "smth", expectedCode: http.StatusBadRequest},
		{name: "empty", body: `{"login": "", "password": "password"}`, expectedCode: http.StatusBadRequest},
		{name: "unknown user", body: `{"login": "root", "password": "password"}`, expectedCode: http.StatusUnauthorized},
		{name: "wrong password", body: `{"login": "admin", "password": "letmein"}`, expectedCode: http.StatusUnauthorized},
		{name: "ok", body: `{"login": "admin", "password": "password"}`, expectedCode: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/admin/login", tc.body, false)
			assert.Equal(t, tc.expectedCode, w.Code)
			if tc.expectedCode == http.StatusOK {
				assert.Equal(t, "success", w.Body.String())
				assert.NotEmpty(t, w.Result().Cookies())
			}
		})
	}
}

func TestRegister(t *testing.T) {
	closed := newFixture(t, false)
	w := closed.do(http.MethodPost, "/api/admin/register", `{"login": "new", "password": "pw"}`, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	open := newFixture(t, true)
	w = open.do(http.MethodPost, "/api/admin/register", `{"login": "new", "password": "pw"}`, false)
	assert.Equal(t, http.StatusOK, w.Code)
	w = open.do(http.MethodPost, "/api/admin/register", `{"login": "new", "password": "pw"}`, false)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = open.do(http.MethodPost, "/api/admin/login", `{"login": "new", "password": "pw"}`, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/api/admin/logout", "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t, false)
	for _, code := range []string{"AAA1", "AAA2", "AAA3", "BBB1", "BBB2", "CCC1", "CCC2"} {
		f.seed(t, code, nil)
	}

	type listResponse struct {
		Orders  []orderResponse `json:"orders"`
		Total   int             `json:"total"`
		Page    int             `json:"page"`
		PerPage int             `json:"per_page"`
		Pages   int             `json:"pages"`
	}

	w := f.do(http.MethodGet, "/api/admin/orders?per_page=3&page=3", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[listResponse](t, w)
	assert.Equal(t, 7, got.Total)
	assert.Equal(t, 3, got.Pages)
	assert.Len(t, got.Orders, 1)

	w = f.do(http.MethodGet, "/api/admin/orders?q=aaa", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[listResponse](t, w)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 10, got.PerPage)

	w = f.do(http.MethodGet, "/api/admin/orders?status=cancelled", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[listResponse](t, w).Orders)

	for _, query := range []string{"status=lost", "page=0", "per_page=x"} {
		w = f.do(http.MethodGet, "/api/admin/orders?"+query, "", true)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestIssueCodesValidation(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/api/admin/codes", `{"email": "a@b.co"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/admin/codes", `{"name": "A", "count": 51}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/admin/codes", `{"name": "A", "count": 3}`, true)
	require.Equal(t, http.StatusCreated, w.Code)
	issued := decode[struct {
		Orders []orderResponse `json:"orders"`
	}](t, w)
	require.Len(t, issued.Orders, 3)
	assert.NotEqual(t, issued.Orders[0].Code, issued.Orders[1].Code)
}

func TestDeleteOrders(t *testing.T) {
	f := newFixture(t, false)
	a := f.seed(t, "AAA", nil)
	b := f.seed(t, "BBB", nil)

	w := f.do(http.MethodDelete, "/api/admin/orders", `{"ids": []}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodDelete, "/api/admin/orders", `{"ids": ["`+a.ID+`", "`+b.ID+`", "missing"]}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted": 2}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/admin/orders/"+a.ID, "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "AAA", nil)

	for range 2 {
		w := f.do(http.MethodPost, "/api/admin/codes/aaa/cancel", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, types.CancelledStatus, decode[orderResponse](t, w).Status)
	}

	w := f.do(http.MethodPost, "/api/admin/codes/NOPE/cancel", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/codes/AAA", "", false)
	assert.JSONEq(t, `{"code": "AAA", "availability": "cancelled"}`, w.Body.String())
}

func TestNotifications(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "AAA", nil)

	w := f.do(http.MethodPost, "/api/redeem", `{"code": "AAA", "email": "a@b.co"}`, false)
	require.Equal(t, http.StatusOK, w.Code)

	type notificationsResponse struct {
		Notifications []types.Notification `json:"notifications"`
		Unread        int                  `json:"unread"`
	}

	var got notificationsResponse
	require.Eventually(t, func() bool {
		w := f.do(http.MethodGet, "/api/admin/notifications", "", true)
		got = decode[notificationsResponse](t, w)
		return len(got.Notifications) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, got.Unread)
	assert.Equal(t, "Order AAA has been redeemed", got.Notifications[0].Message)

	w = f.do(http.MethodPost, "/api/admin/notifications/read", `{"id": "missing"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/admin/notifications/read", `{"id": "`+got.Notifications[0].ID+`"}`, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/admin/notifications", "", true)
	assert.Equal(t, 0, decode[notificationsResponse](t, w).Unread)

	w = f.do(http.MethodDelete, "/api/admin/notifications", "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/admin/notifications", "", true)
	assert.Empty(t, decode[notificationsResponse](t, w).Notifications)
}

// blockingStore never answers until the caller gives up.
type blockingStore struct{}

func (blockingStore) ListOrders(ctx context.Context, filter types.OrderFilter) ([]types.OrderRecord, int, error) {
	<-ctx.Done()
	return nil, 0, ctx.Err()
}

func (blockingStore) DeleteOrders(ctx context.Context, ids []string) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (blockingStore) FindByCode(ctx context.Context, code string) (*types.OrderRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) InsertOrder(ctx context.Context, o types.NewOrder) (*types.OrderRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAdminStoreCallsTimeOut(t *testing.T) {
	timeout := 20 * time.Millisecond
	h := NewHandlerSet(Dependencies{
		Secret:         secret,
		RequestTimeout: timeout,
		Codes:          codegen.NewGenerator(blockingStore{}, codegen.WithTimeout(timeout)),
		Records:        blockingStore{},
	})
	r := routes(h)

	cookies := httptest.NewRecorder()
	require.NoError(t, auth.SetAuthCookie("admin", cookies, secret, 60))
	cookie := cookies.Result().Cookies()[0]

	testCases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "list", method: http.MethodGet, path: "/api/admin/orders"},
		{name: "delete", method: http.MethodDelete, path: "/api/admin/orders", body: `{"ids": ["a"]}`},
		{name: "issue", method: http.MethodPost, path: "/api/admin/codes", body: `{"name": "Alice"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.AddCookie(cookie)
			w := httptest.NewRecorder()

			start := time.Now()
			r.ServeHTTP(w, req)

			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Equal(t, "Request timed out, please try again\n", w.Body.String())
		})
	}
}

func TestMarkAllReadWithEmptyBody(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "AAA", nil)
	f.seed(t, "BBB", nil)

	for _, code := range []string{"AAA", "BBB"} {
		w := f.do(http.MethodPost, "/api/redeem", `{"code": "`+code+`", "email": "a@b.co"}`, false)
		require.Equal(t, http.StatusOK, w.Code)
	}

	type notificationsResponse struct {
		Notifications []types.Notification `json:"notifications"`
		Unread        int                  `json:"unread"`
	}

	require.Eventually(t, func() bool {
		w := f.do(http.MethodGet, "/api/admin/notifications", "", true)
		return decode[notificationsResponse](t, w).Unread == 2
	}, time.Second, 10*time.Millisecond)

	for _, body := range []string{"", "  \n"} {
		w := f.do(http.MethodPost, "/api/admin/notifications/read", body, true)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}

	w := f.do(http.MethodGet, "/api/admin/notifications", "", true)
	got := decode[notificationsResponse](t, w)
	assert.Len(t, got.Notifications, 2)
	assert.Equal(t, 0, got.Unread)

	w = f.do(http.MethodPost, "/api/admin/notifications/read", "smth", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
