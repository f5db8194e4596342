// Package postgrest stores orders in a hosted table behind a PostgREST style
// REST endpoint, the way Supabase exposes its tables.
package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/redeemy/internal/store"
	"github.com/wellywell/redeemy/internal/types"
)

const DefaultTable = "orders"

var (
	ErrUnknown = errors.New("unknown store error")
	ErrAuth    = errors.New("store rejected credentials")
)

// ErrThrottle is returned when the store keeps answering 429 until the context ends.
type ErrThrottle struct {
	RetryAfter int
}

func (e *ErrThrottle) Error() string {
	return fmt.Sprintf("Too many requests, retry after %d seconds", e.RetryAfter)
}

type Client struct {
	http  *resty.Client
	table string
}

func NewClient(address string, apiKey string, table string) *Client {
	if table == "" {
		table = DefaultTable
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(address, "/")+"/rest/v1").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetHeader("apikey", apiKey).SetAuthToken(apiKey)
	}
	return &Client{http: c, table: table}
}

// row is the JSON shape of a table row.
type row struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Email      *string      `json:"email"`
	Name       *string      `json:"name"`
	OrderID    *string      `json:"orderId"`
	Status     types.Status `json:"status"`
	IsRedeemed bool         `json:"isRedeemed"`
	LoginInfo  *string      `json:"loginInfo"`
	Pending    stepColumn   `json:"pending"`
	Processing stepColumn   `json:"processing"`
	Completed  stepColumn   `json:"completed"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (r row) record() types.OrderRecord {
	status := r.Status
	if status == "" {
		status = types.PendingStatus
	}
	return types.OrderRecord{
		ID:         r.ID,
		Code:       r.Code,
		Email:      r.Email,
		Name:       r.Name,
		OrderID:    r.OrderID,
		Status:     status,
		IsRedeemed: r.IsRedeemed,
		LoginInfo:  r.LoginInfo,
		Pending:    r.Pending.text,
		Processing: r.Processing.text,
		Completed:  r.Completed.text,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// stepColumn accepts a step stored either as JSON text inside a string or as
// a JSON object, and keeps it as text.
type stepColumn struct {
	text *string
}

func (s *stepColumn) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		s.text = nil
	case strings.HasPrefix(trimmed, `"`):
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		s.text = &text
	default:
		s.text = &trimmed
	}
	return nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) path() string {
	return "/" + c.table
}

// send runs the request, waiting out 429 answers for as long as ctx allows.
func (c *Client) send(ctx context.Context, method string, build func(*resty.Request)) (*resty.Response, error) {
	for {
		req := c.http.R().SetContext(ctx)
		build(req)

		resp, err := req.Execute(method, c.path())
		if err != nil {
			return nil, fmt.Errorf("store request failed %w", err)
		}
		if resp.StatusCode() != http.StatusTooManyRequests {
			return resp, nil
		}

		retryAfter, err := strconv.Atoi(resp.Header().Get("Retry-After"))
		if err != nil || retryAfter <= 0 {
			retryAfter = 1
		}
		logger.Warningf("Store too many requests, will retry in %d seconds", retryAfter)

		timer := time.NewTimer(time.Duration(retryAfter) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", &ErrThrottle{RetryAfter: retryAfter}, ctx.Err())
		case <-timer.C:
		}
	}
}

func checkStatus(resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w", ErrAuth)
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrUnknown, code)
	default:
		var apiErr apiError
		_ = json.Unmarshal(resp.Body(), &apiErr)
		return fmt.Errorf("Unexpected status %d %s %s", code, apiErr.Code, apiErr.Message)
	}
}

func decodeRows(resp *resty.Response) ([]types.OrderRecord, error) {
	var rows []row
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("json parsing error %w", err)
	}
	records := make([]types.OrderRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

func (c *Client) FindByCode(ctx context.Context, code string) (*types.OrderRecord, error) {
	return c.findOne(ctx, "code", code)
}

func (c *Client) FindByID(ctx context.Context, id string) (*types.OrderRecord, error) {
	return c.findOne(ctx, "id", id)
}

func (c *Client) findOne(ctx context.Context, column string, value string) (*types.OrderRecord, error) {
	resp, err := c.send(ctx, resty.MethodGet, func(r *resty.Request) {
		r.SetQueryParam("select", "*").
			SetQueryParam(column, "eq."+value).
			SetQueryParam("limit", "1")
	})
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	records, err := decodeRows(resp)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w", store.ErrOrderNotFound)
	}
	return &records[0], nil
}

func (c *Client) ListOrders(ctx context.Context, filter types.OrderFilter) ([]types.OrderRecord, int, error) {
	resp, err := c.send(ctx, resty.MethodGet, func(r *resty.Request) {
		r.SetQueryParam("select", "*").
			SetHeader("Prefer", "count=exact")
		if filter.Status != nil {
			r.SetQueryParam("status", "eq."+string(*filter.Status))
		}
		if filter.Redeemed != nil {
			r.SetQueryParam("isRedeemed", "is."+strconv.FormatBool(*filter.Redeemed))
		}
		if filter.Search != "" {
			pattern := "*" + searchEscaper.Replace(filter.Search) + "*"
			r.SetQueryParam("or", fmt.Sprintf("(code.ilike.%[1]s,orderId.ilike.%[1]s,email.ilike.%[1]s,name.ilike.%[1]s)", pattern))
		}
		if filter.Sort == types.RecentlyUpdatedFirst {
			r.SetQueryParam("order", "updated_at.desc,id.desc")
		} else {
			r.SetQueryParam("order", "created_at.asc,id.asc")
		}
		if filter.Offset > 0 {
			r.SetQueryParam("offset", strconv.Itoa(filter.Offset))
		}
		if filter.Limit > 0 {
			r.SetQueryParam("limit", strconv.Itoa(filter.Limit))
		}
	})
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode() == http.StatusRequestedRangeNotSatisfiable {
		return []types.OrderRecord{}, parseTotal(resp.Header().Get("Content-Range")), nil
	}
	if err := checkStatus(resp); err != nil {
		return nil, 0, err
	}

	records, err := decodeRows(resp)
	if err != nil {
		return nil, 0, err
	}
	total := parseTotal(resp.Header().Get("Content-Range"))
	if total < 0 {
		total = filter.Offset + len(records)
	}
	return records, total, nil
}

// parseTotal reads the total out of a Content-Range header such as "0-9/42".
func parseTotal(contentRange string) int {
	_, total, found := strings.Cut(contentRange, "/")
	if !found {
		return -1
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return -1
	}
	return n
}

type insertBody struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Name       *string      `json:"name,omitempty"`
	Email      *string      `json:"email,omitempty"`
	OrderID    *string      `json:"orderId,omitempty"`
	Status     types.Status `json:"status"`
	IsRedeemed bool         `json:"isRedeemed"`
	Pending    *string      `json:"pending,omitempty"`
	Processing *string      `json:"processing,omitempty"`
	Completed  *string      `json:"completed,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (c *Client) InsertOrder(ctx context.Context, order types.NewOrder) (*types.OrderRecord, error) {
	body := insertBody{
		ID:        order.ID,
		Code:      order.Code,
		Name:      order.Name,
		Email:     order.Email,
		OrderID:   order.OrderID,
		Status:    types.PendingStatus,
		CreatedAt: order.CreatedAt,
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}
	if body.CreatedAt.IsZero() {
		body.CreatedAt = time.Now()
	}
	body.UpdatedAt = body.CreatedAt

	var err error
	if body.Pending, err = encodeStep(order.Pending); err != nil {
		return nil, err
	}
	if body.Processing, err = encodeStep(order.Processing); err != nil {
		return nil, err
	}
	if body.Completed, err = encodeStep(order.Completed); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, resty.MethodPost, func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").
			SetHeader("Prefer", "return=representation").
			SetBody(body)
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusConflict {
		var apiErr apiError
		if json.Unmarshal(resp.Body(), &apiErr) != nil || apiErr.Code == "" || apiErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w", &store.CodeExistsError{Code: order.Code})
		}
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	records, err := decodeRows(resp)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: insert returned no rows", ErrUnknown)
	}
	return &records[0], nil
}

func (c *Client) UpdateByCode(ctx context.Context, code string, patch types.OrderPatch) (*types.OrderRecord, error) {
	return c.update(ctx, "code", code, patch)
}

func (c *Client) UpdateByID(ctx context.Context, id string, patch types.OrderPatch) (*types.OrderRecord, error) {
	return c.update(ctx, "id", id, patch)
}

// update sends one PATCH filtered by key and guards; the store applies it
// atomically to the matching row.
func (c *Client) update(ctx context.Context, column string, key string, patch types.OrderPatch) (*types.OrderRecord, error) {
	body, err := patchBody(patch)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, resty.MethodPatch, func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").
			SetHeader("Prefer", "return=representation").
			SetQueryParam(column, "eq."+key).
			SetBody(body)
		if guards := guardFilter(patch); guards != "" {
			r.SetQueryParam("and", guards)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	records, err := decodeRows(resp)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		return &records[0], nil
	}

	if _, err := c.findOne(ctx, column, key); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w", store.ErrConditionFailed)
}

// guardFilter renders the patch guards as an and=(...) filter. Rows written
// by older clients may hold NULL in isRedeemed and status; those read back as
// unredeemed and pending, so the guards let NULL through.
func guardFilter(patch types.OrderPatch) string {
	var guards []string
	if patch.UnlessRedeemed {
		guards = append(guards, "or(isRedeemed.is.false,isRedeemed.is.null)")
	}
	if len(patch.UnlessStatus) > 0 {
		statuses := make([]string, 0, len(patch.UnlessStatus))
		for _, s := range patch.UnlessStatus {
			statuses = append(statuses, quote(string(s)))
		}
		guards = append(guards, "or(status.is.null,status.not.in.("+strings.Join(statuses, ",")+"))")
	}
	if len(guards) == 0 {
		return ""
	}
	return "(" + strings.Join(guards, ",") + ")"
}

func patchBody(patch types.OrderPatch) (map[string]any, error) {
	body := make(map[string]any)
	if patch.Email != nil {
		body["email"] = *patch.Email
	}
	if patch.OrderID != nil {
		body["orderId"] = *patch.OrderID
	}
	if patch.Status != nil {
		body["status"] = *patch.Status
	}
	if patch.IsRedeemed != nil {
		body["isRedeemed"] = *patch.IsRedeemed
	}
	if patch.LoginInfo != nil {
		body["loginInfo"] = *patch.LoginInfo
	}
	if patch.Processing != nil {
		encoded, err := patch.Processing.Encode()
		if err != nil {
			return nil, err
		}
		body["processing"] = encoded
	}
	if patch.Completed != nil {
		encoded, err := patch.Completed.Encode()
		if err != nil {
			return nil, err
		}
		body["completed"] = encoded
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	body["updated_at"] = updatedAt.UTC().Format(time.RFC3339Nano)
	return body, nil
}

func (c *Client) DeleteOrders(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	resp, err := c.send(ctx, resty.MethodDelete, func(r *resty.Request) {
		r.SetHeader("Prefer", "return=representation").
			SetQueryParam("id", "in.("+quoteList(ids)+")").
			SetQueryParam("select", "id")
	})
	if err != nil {
		return 0, err
	}
	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	var deleted []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &deleted); err != nil {
		return 0, fmt.Errorf("json parsing error %w", err)
	}
	return int64(len(deleted)), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote wraps a filter value in double quotes so reserved characters such as
// commas and parentheses stay part of the value.
func quote(value string) string {
	return `"` + quoteEscaper.Replace(value) + `"`
}

func quoteList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, quote(v))
	}
	return strings.Join(quoted, ",")
}

var searchEscaper = strings.NewReplacer(",", "", "(", "", ")", "", "*", "")

func encodeStep(step types.Step) (*string, error) {
	if step.Status == "" {
		return nil, nil
	}
	encoded, err := step.Encode()
	if err != nil {
		return nil, err
	}
	return &encoded, nil
}
