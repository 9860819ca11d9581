package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/reservationd/internal/auth"
	"github.com/example/reservationd/internal/reservation"
	"github.com/example/reservationd/internal/store"
	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type users map[string]string

func (u users) Authenticate(_ context.Context, name, pw string) (int64, error) {
	if want, ok := u[name]; ok && want == pw {
		return int64(len(name)), nil
	}
	return 0, auth.ErrInvalidCredentials
}

type catalog struct {
	tables map[string]reservation.Table
	err    error
}

func (c catalog) Tables(context.Context, string) ([]reservation.Table, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []reservation.Table
	for _, t := range c.tables {
		out = append(out, t)
	}
	return out, nil
}

func (c catalog) Table(_ context.Context, _, id string) (reservation.Table, bool, error) {
	if c.err != nil {
		return reservation.Table{}, false, c.err
	}
	t, ok := c.tables[id]
	return t, ok, nil
}

func (c catalog) AvailableTables(ctx context.Context, rid string, _ int) ([]reservation.Table, error) {
	return c.Tables(ctx, rid)
}

func (c catalog) IsOperating(context.Context, string, time.Time) (bool, error) {
	return c.err == nil, c.err
}

type env struct {
	srv    *httptest.Server
	client *http.Client
	cookie *http.Cookie
}

func newEnv(t *testing.T, cat reservation.Catalog) *env {
	t.Helper()
	st := store.NewMemory()
	e := reservation.NewEngine(reservation.DefaultPolicy(), cat, st)
	e.Now = func() time.Time { return now }
	m := reservation.NewManager(e, st, nil)
	m.Now = func() time.Time { return now }

	s := &Server{
		Auth:         auth.NewStore(nil, securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32)),
		Users:        users{"ana": "secret", "beatriz": "hunter2"},
		Reservations: m,
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return &env{srv: srv, client: srv.Client()}
}

func defaultCatalog() catalog {
	return catalog{tables: map[string]reservation.Table{
		"T": {ID: "T", Capacity: 4, Status: reservation.TableAvailable, RestaurantID: "R"},
		"U": {ID: "U", Capacity: 6, Status: reservation.TableAvailable, RestaurantID: "R"},
	}}
}

func (e *env) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	res, err := e.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func (e *env) login(t *testing.T) {
	t.Helper()
	e.loginAs(t, "ana", "secret")
}

func (e *env) loginAs(t *testing.T, name, password string) {
	t.Helper()
	res, _ := e.do(t, http.MethodPost, "/api/login", map[string]string{"username": name, "password": password})
	require.Equal(t, http.StatusOK, res.StatusCode)
	for _, c := range res.Cookies() {
		if c.Name == "reservationd_session" {
			e.cookie = c
		}
	}
	require.NotNil(t, e.cookie)
}

func booking(table string, party int) map[string]any {
	return map[string]any{
		"restaurant_id":    "R",
		"table_id":         table,
		"reservation_time": now.Add(2 * time.Hour).Format(time.RFC3339),
		"party_size":       party,
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, defaultCatalog())
	res, err := e.client.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestLogin(t *testing.T) {
	e := newEnv(t, defaultCatalog())
	res, body := e.do(t, http.MethodPost, "/api/login", map[string]string{"username": "ana", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid credentials", body["error"])

	res, _ = e.do(t, http.MethodPost, "/api/reservations", booking("T", 2))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestReservationFlow(t *testing.T) {
	e := newEnv(t, defaultCatalog())
	e.login(t)

	res, body := e.do(t, http.MethodPost, "/api/reservations", booking("T", 4))
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "3", body["user_id"])
	id := int64(body["id"].(float64))
	path := fmt.Sprintf("/api/reservations/%d", id)

	res, body = e.do(t, http.MethodPost, "/api/reservations", booking("T", 2))
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "SLOT_TAKEN", body["reason"])

	res, body = e.do(t, http.MethodPut, path, booking("T", 6))
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "INSUFFICIENT_CAPACITY", body["reason"])

	res, body = e.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "CONFIRMED", body["status"])

	res, _ = e.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "PENDING"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, body = e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "CONFIRMED", body["status"])

	res, body = e.do(t, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "CANCELLED", body["status"])

	res, _ = e.do(t, http.MethodPost, path+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = e.do(t, http.MethodGet, "/api/reservations/999", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = e.do(t, http.MethodGet, "/api/reservations/abc", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestReservationsAreScopedToOwner(t *testing.T) {
	e := newEnv(t, defaultCatalog())
	e.login(t)

	res, body := e.do(t, http.MethodPost, "/api/reservations", booking("T", 2))
	require.Equal(t, http.StatusCreated, res.StatusCode)
	path := fmt.Sprintf("/api/reservations/%d", int64(body["id"].(float64)))

	other := &env{srv: e.srv, client: e.client}
	other.loginAs(t, "beatriz", "hunter2")

	res, _ = other.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = other.do(t, http.MethodPut, path, booking("U", 2))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = other.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "CONFIRMED"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = other.do(t, http.MethodPost, path+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "T", body["table_id"])
}

func TestValidationErrors(t *testing.T) {
	e := newEnv(t, defaultCatalog())
	e.login(t)

	res, body := e.do(t, http.MethodPost, "/api/reservations", booking("T", 0))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "party_size", body["field"])

	res, _ = e.do(t, http.MethodPost, "/api/reservations", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = e.do(t, http.MethodPatch, "/api/reservations/1/status", map[string]string{"status": "SEATED"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "status", body["field"])
}

func TestReadEndpoints(t *testing.T) {
	e := newEnv(t, defaultCatalog())
	e.login(t)
	at := now.Add(2 * time.Hour).Format(time.RFC3339)

	res, _ := e.do(t, http.MethodPost, "/api/reservations", booking("T", 2))
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, body := e.do(t, http.MethodGet, "/api/restaurants/R/tables/available?time="+at, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []any{"U"}, body["table_ids"])

	res, body = e.do(t, http.MethodGet, "/api/restaurants/R/slots/active?time="+at, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, body["active"])

	res, body = e.do(t, http.MethodGet, "/api/restaurants/R/availability?table=T&party=2&time="+at, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, false, body["admitted"])
	assert.Equal(t, "SLOT_TAKEN", body["reason"])

	res, _ = e.do(t, http.MethodGet, "/api/restaurants/R/availability?table=T", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	for _, q := range []string{"", "?status=pending", "?from=" + at + "&to=" + at} {
		req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/restaurants/R/reservations"+q, nil)
		require.NoError(t, err)
		res, err := e.client.Do(req)
		require.NoError(t, err)
		var list []reservation.Reservation
		require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
		res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode, q)
		assert.Len(t, list, 1, q)
	}

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/me/reservations", nil)
	require.NoError(t, err)
	req.AddCookie(e.cookie)
	res, err = e.client.Do(req)
	require.NoError(t, err)
	var mine []reservation.Reservation
	require.NoError(t, json.NewDecoder(res.Body).Decode(&mine))
	res.Body.Close()
	assert.Len(t, mine, 1)
}

func TestCatalogUnavailable(t *testing.T) {
	e := newEnv(t, catalog{err: errors.New("circuit open")})
	e.login(t)

	res, body := e.do(t, http.MethodPost, "/api/reservations", booking("T", 2))
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "table catalog unavailable", body["error"])
}
