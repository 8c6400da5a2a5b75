package gateway

import (
	"fmt"
	"net/http"

	"socialclient/pkg/backend"
	"socialclient/pkg/client"
	"socialclient/pkg/repository"

	"github.com/gorilla/mux"
)

func (h *handler) getUser(w http.ResponseWriter, r *http.Request, s *client.Session) {
	u, err := s.Account(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) followers(w http.ResponseWriter, r *http.Request, s *client.Session) {
	list, err := s.Followers(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page(list, true))
}

func (h *handler) following(w http.ResponseWriter, r *http.Request, s *client.Session) {
	list, err := s.Following(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page(list, true))
}

func (h *handler) follow(w http.ResponseWriter, r *http.Request, s *client.Session) {
	following, err := s.ToggleFollow(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": following})
}

func (h *handler) search(w http.ResponseWriter, r *http.Request, s *client.Session) {
	found, err := s.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page(found, true))
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request, s *client.Session) {
	var update repository.ProfileUpdate
	if err := readJSON(r, &update); err != nil {
		h.writeError(w, err)
		return
	}
	if err := s.UpdateProfile(r.Context(), update); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) uploadAvatar(w http.ResponseWriter, r *http.Request, s *client.Session) {
	form, err := parseUpload(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	imgs, err := images(form, "avatar")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(imgs) != 1 {
		h.writeError(w, backend.Label("uploadAvatar", fmt.Errorf("expected one avatar image: %w", backend.ErrMissingIdentifier)))
		return
	}
	s.State().SetUploadURI(imgs[0].Filename)
	if err := s.UploadAvatar(r.Context(), imgs[0]); err != nil {
		h.writeError(w, err)
		return
	}
	url, err := s.AvatarURL(r.Context(), s.ViewerID())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}

type albumRequest struct {
	Name string `json:"name"`
}

func (h *handler) createAlbum(w http.ResponseWriter, r *http.Request, s *client.Session) {
	var req albumRequest
	if err := readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	album, err := s.CreateAlbum(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, album)
}

func (h *handler) albumMedia(w http.ResponseWriter, r *http.Request, s *client.Session) {
	media, err := s.AlbumMedia(r.Context(), mux.Vars(r)["albumId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page(media, true))
}

func (h *handler) addRecipient(w http.ResponseWriter, r *http.Request, s *client.Session) {
	if err := s.AddRecipient(r.Context(), mux.Vars(r)["userId"]); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Recipients())
}

func (h *handler) removeRecipient(w http.ResponseWriter, r *http.Request, s *client.Session) {
	s.RemoveRecipient(mux.Vars(r)["userId"])
	writeJSON(w, http.StatusOK, s.Recipients())
}
