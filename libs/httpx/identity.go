package httpx

import (
	"net/http"
	"strings"
)

// Identity headers are set by the gateway after token verification and
// stripped from inbound requests before that.
const (
	HeaderUserID   = "X-User-Id"
	HeaderArtistID = "X-Artist-Id"
	HeaderRole     = "X-Role"
)

const (
	RoleCustomer = "customer"
	RoleArtist   = "artist"
	RoleAdmin    = "admin"
)

type Identity struct {
	UserID   string
	ArtistID string
	Role     string
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanManageArtist reports whether the caller may edit the given artist's data.
func (i Identity) CanManageArtist(artistID string) bool {
	if i.IsAdmin() {
		return true
	}
	return i.Role == RoleArtist && i.ArtistID != "" && i.ArtistID == artistID
}

func IdentityFromRequest(r *http.Request) Identity {
	return Identity{
		UserID:   strings.TrimSpace(r.Header.Get(HeaderUserID)),
		ArtistID: strings.TrimSpace(r.Header.Get(HeaderArtistID)),
		Role:     strings.TrimSpace(r.Header.Get(HeaderRole)),
	}
}

// StripIdentity removes client supplied identity headers.
func StripIdentity(r *http.Request) {
	r.Header.Del(HeaderUserID)
	r.Header.Del(HeaderArtistID)
	r.Header.Del(HeaderRole)
}

func SetIdentity(r *http.Request, id Identity) {
	StripIdentity(r)
	r.Header.Set(HeaderUserID, id.UserID)
	if id.ArtistID != "" {
		r.Header.Set(HeaderArtistID, id.ArtistID)
	}
	r.Header.Set(HeaderRole, id.Role)
}
