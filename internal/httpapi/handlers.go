package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tug-of-war-backend/internal/hub"
	"github.com/DoyleJ11/tug-of-war-backend/internal/session"
	"github.com/DoyleJ11/tug-of-war-backend/internal/token"
	"github.com/DoyleJ11/tug-of-war-backend/internal/wire"
	"github.com/DoyleJ11/tug-of-war-backend/pkg/types"
)

// AdminCodeHeader unlocks join tokens on the lookup endpoint.
const AdminCodeHeader = "X-Admin-Code"

const qrSize = 320 // mobile-friendly size

func Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Tug of War Quiz Game Server is running!"))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GetRoom answers GET /api/room/{roomId}. Tokens are redacted unless the
// caller presents the admin code.
func GetRoom(h *hub.Hub, b *session.Binder, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		lb, err := h.Get(r.Context(), roomID)
		if errors.Is(err, hub.ErrRoomNotFound) {
			writeJSON(w, http.StatusOK, types.RoomLookup{Exists: false})
			return
		}
		if err != nil {
			log.Error("lookup room", zap.String("room_id", roomID), zap.Error(err))
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}

		v, err := lb.View(r.Context())
		if err != nil {
			// Removed between Get and View.
			writeJSON(w, http.StatusOK, types.RoomLookup{Exists: false})
			return
		}

		room := v.State
		if !b.AdminCodeOK(r.Header.Get(AdminCodeHeader)) {
			room = room.Redacted()
		}
		info := wire.RoomInfo(room, v.Version)
		writeJSON(w, http.StatusOK, types.RoomLookup{Exists: true, Room: &info})
	}
}

// JoinQR renders a PNG QR code of a team's join link. The token must belong
// to the room in the path.
func JoinQR(tokens *token.Registry, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		tok := r.URL.Query().Get("token")
		if tok == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		}

		grant, err := tokens.Resolve(tok)
		if err != nil || grant.RoomID != roomID {
			http.Error(w, "unknown room or token", http.StatusNotFound)
			return
		}

		link := wire.JoinLink(wire.BaseURL(r, publicURL), roomID, tok)
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
