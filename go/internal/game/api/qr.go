package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// JoinURL is the link a QR code points at: <base>/join/<code>.
func (s *Service) JoinURL(r *http.Request, code string) string {
	base := strings.TrimSuffix(s.opts.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + url.PathEscape(code)
}

// joinQR renders a PNG QR code of the room's join link.
func (s *Service) joinQR(w http.ResponseWriter, r *http.Request) {
	rm, err := s.rooms.Room(r.PathValue("code"))
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to look up room for qr code")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	png, err := qrcode.Encode(s.JoinURL(r, rm.Code), qrcode.Medium, s.opts.QRSize)
	if err != nil {
		log.Error().Err(err).Str("room_code", rm.Code).Msg("failed to encode qr code")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := w.Write(png); err != nil {
		log.Error().Err(err).Msg("failed to write qr code")
	}
}
