package web

import (
	"errors"
	"net/http"

	"github.com/example/reservationd/internal/auth"
	"github.com/example/reservationd/internal/reservation"
	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	uid, err := s.Users.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.Auth.SetSession(w, r, uid); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"user_id": uid})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserRef(r.Context())
	var req reservation.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.Reservations.Create(r.Context(), req, uid)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// owned loads reservation id for the session user. Someone else's reservation
// is reported as missing.
func (s *Server) owned(w http.ResponseWriter, r *http.Request, id int64) (reservation.Reservation, bool) {
	res, err := s.Reservations.Get(r.Context(), id)
	if err == nil {
		if uid, ok := auth.UserRef(r.Context()); !ok || uid != res.UserID {
			err = reservation.ErrNotFound
		}
	}
	if err != nil {
		writeErr(w, r, err)
		return reservation.Reservation{}, false
	}
	return res, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	res, ok := s.owned(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req reservation.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, ok := s.owned(w, r, id); !ok {
		return
	}
	res, err := s.Reservations.Update(r.Context(), id, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	to, err := reservation.ParseStatus(body.Status)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if _, ok := s.owned(w, r, id); !ok {
		return
	}
	res, err := s.Reservations.UpdateStatus(r.Context(), id, to)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if _, ok := s.owned(w, r, id); !ok {
		return
	}
	res, err := s.Reservations.Cancel(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserRef(r.Context())
	rs, err := s.Reservations.ListByUser(r.Context(), uid)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// handleRestaurantReservations lists by status when ?status= is given, by
// time range when ?from=&to= are given, and everything otherwise.
func (s *Server) handleRestaurantReservations(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	q := r.URL.Query()

	var (
		rs  []reservation.Reservation
		err error
	)
	switch {
	case q.Get("status") != "":
		var st reservation.Status
		st, err = reservation.ParseStatus(q.Get("status"))
		if err == nil {
			rs, err = s.Reservations.ListByStatus(r.Context(), rid, st)
		}
	case q.Get("from") != "" || q.Get("to") != "":
		from, ferr := queryTime(r, "from", true)
		to, terr := queryTime(r, "to", true)
		err = errors.Join(ferr, terr)
		if err == nil {
			rs, err = s.Reservations.ListByTimeRange(r.Context(), rid, from, to)
		}
	default:
		rs, err = s.Reservations.ListByRestaurant(r.Context(), rid)
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	at, err := queryTime(r, "time", true)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	party, err := queryInt(r, "party", 1)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	d, err := s.Reservations.CheckAvailability(r.Context(), reservation.Query{
		RestaurantID: chi.URLParam(r, "rid"),
		TableID:      r.URL.Query().Get("table"),
		Time:         at,
		PartySize:    party,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAvailableTables(w http.ResponseWriter, r *http.Request) {
	at, err := queryTime(r, "time", true)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	capacity, err := queryInt(r, "capacity", 0)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	ids, err := s.Reservations.AvailableTables(r.Context(), chi.URLParam(r, "rid"), at, capacity)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table_ids": ids})
}

func (s *Server) handleActiveCount(w http.ResponseWriter, r *http.Request) {
	at, err := queryTime(r, "time", true)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	n, err := s.Reservations.CountActive(r.Context(), chi.URLParam(r, "rid"), at)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"active": n})
}
