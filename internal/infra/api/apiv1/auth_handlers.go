package apiv1

import (
	"net/http"

	"mindspace/internal/domain/model"
	"mindspace/internal/infra/api"
	"mindspace/internal/usecase"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	in := usecase.RegisterInput{
		Secret:        req.Secret,
		Contact:       req.Contact,
		RetentionDays: req.RetentionDays,
	}
	if req.Preferences != nil {
		p := model.Preferences(*req.Preferences)
		in.Preferences = &p
	}
	if req.Privacy != nil {
		p := model.Privacy(*req.Privacy)
		in.Privacy = &p
	}
	id, err := s.ids.Register(r.Context(), in)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	s.issue(w, r, http.StatusCreated, id, req.Contact)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	id, err := s.ids.Authenticate(r.Context(), req.PseudonymID, req.Secret)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	s.issue(w, r, http.StatusOK, id, "")
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, code int, id *model.Identity, contact string) {
	tok, exp, err := s.tokens.Mint(id.PseudonymID)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, code, AuthResponse{
		PseudonymID: id.PseudonymID,
		Token:       tok,
		ExpiresAt:   exp,
		Profile:     toProfile(id, contact),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	pid := api.PseudonymID(r.Context())
	id, err := s.ids.Get(r.Context(), pid)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	contact, err := s.ids.Contact(r.Context(), pid)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toProfile(id, contact))
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	var patch PreferencesPatch
	if err := decode(r, &patch); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	pid := api.PseudonymID(r.Context())
	cur, err := s.ids.Get(r.Context(), pid)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	p := cur.Preferences
	if patch.Theme != nil {
		p.Theme = *patch.Theme
	}
	if patch.Language != nil {
		p.Language = *patch.Language
	}
	if patch.Notifications != nil {
		p.Notifications = *patch.Notifications
	}
	id, err := s.ids.UpdatePreferences(r.Context(), pid, p)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toProfile(id, ""))
}

func (s *Server) handlePrivacy(w http.ResponseWriter, r *http.Request) {
	var patch PrivacyPatch
	if err := decode(r, &patch); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	id, err := s.ids.UpdatePrivacy(r.Context(), api.PseudonymID(r.Context()), usecase.PrivacyUpdate{
		RetentionDays:      patch.RetentionDays,
		ShareAnalytics:     patch.ShareAnalytics,
		AllowCrisisContact: patch.AllowCrisisContact,
	})
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toProfile(id, ""))
}

func (s *Server) handleChangeSecret(w http.ResponseWriter, r *http.Request) {
	var req ChangeSecretRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	if err := s.ids.ChangeSecret(r.Context(), api.PseudonymID(r.Context()), req.CurrentSecret, req.NewSecret); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req DeleteAccountRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	if err := s.ids.Delete(r.Context(), api.PseudonymID(r.Context()), req.Secret); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
