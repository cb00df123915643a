package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"moneymind/internal/core"
	"moneymind/internal/reports"
	"moneymind/internal/services"
)

// maxBodyBytes bounds mutation payloads.
const maxBodyBytes = 1 << 20

// ErrBadRequest marks requests that cannot be decoded at all.
var ErrBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// MutationRequest is the wire form of a mutation. Payload is decoded once
// kind and action are known.
type MutationRequest struct {
	Kind    core.EntityKind `json:"kind"`
	Action  core.Action     `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// goalPatchRequest distinguishes absent fields from zero values.
type goalPatchRequest struct {
	ID            string           `json:"id"`
	Name          *string          `json:"name"`
	TargetAmount  *decimal.Decimal `json:"targetAmount"`
	CurrentAmount *decimal.Decimal `json:"currentAmount"`
	Icon          *string          `json:"icon"`
	TargetDate    *core.Date       `json:"targetDate"`
}

func (g goalPatchRequest) patch() core.GoalPatch {
	return core.GoalPatch{
		ID:            g.ID,
		Name:          g.Name,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
		Icon:          g.Icon,
		TargetDate:    g.TargetDate,
	}
}

// DecodeMutation reads a MutationRequest body and builds the typed mutation.
// Unknown kinds are left to the coordinator, which rejects them as validation errors.
func DecodeMutation(r *http.Request) (services.Mutation, error) {
	var req MutationRequest
	if err := decodeJSON(r, &req); err != nil {
		return services.Mutation{}, err
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		return services.Mutation{}, core.Invalid("payload", errors.New("payload is required"))
	}

	m := services.Mutation{Kind: req.Kind, Action: req.Action}
	var err error
	switch req.Kind {
	case core.KindTransaction:
		m.Payload, err = decodePayload[core.Transaction](req.Payload)
	case core.KindAccount:
		m.Payload, err = decodePayload[core.Account](req.Payload)
	case core.KindCategory:
		m.Payload, err = decodePayload[core.Category](req.Payload)
	case core.KindGoal:
		if req.Action == core.ActionUpdate {
			var p goalPatchRequest
			p, err = decodePayload[goalPatchRequest](req.Payload)
			m.Payload = p.patch()
		} else {
			m.Payload, err = decodePayload[core.Goal](req.Payload)
		}
	default:
		return services.Mutation{}, core.Invalid("kind", fmt.Errorf("unknown entity kind %q", req.Kind))
	}
	if err != nil {
		return services.Mutation{}, err
	}
	return m, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, badRequest("invalid payload: %v", err)
	}
	return v, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// ParseFilter reads the transaction filter from query parameters:
// from, to (YYYY-MM-DD), type, category, account and limit.
func ParseFilter(query url.Values) (reports.Filter, error) {
	var f reports.Filter
	var err error

	if f.From, err = core.ParseDate(query.Get("from")); err != nil {
		return f, core.Invalid("from", err)
	}
	if f.To, err = core.ParseDate(query.Get("to")); err != nil {
		return f, core.Invalid("to", err)
	}
	f.Type = core.TransactionType(strings.TrimSpace(query.Get("type")))
	f.CategoryID = strings.TrimSpace(query.Get("category"))
	f.AccountID = strings.TrimSpace(query.Get("account"))

	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, core.Invalid("limit", fmt.Errorf("limit must be a number"))
		}
	}
	return f, nil
}

// parseLimit reads a positive integer parameter, falling back to def.
func parseLimit(query url.Values, key string, def int) int {
	if v := strings.TrimSpace(query.Get(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
