package app

import (
	"errors"
	"fmt"
	"net/url"
)

// Scheme is the deep-link scheme registered by the host application.
const Scheme = "vaultbeam"

// ErrUnknownLink is returned for links outside the scheme or with an
// unrecognized action.
var ErrUnknownLink = errors.New("unrecognized deep link")

// Route names the flow a deep link lands in.
type Route int

const (
	// RouteImport opens the receiver flow with an inline import request.
	RouteImport Route = iota
	// RouteScan opens the sender flow pointed at the camera.
	RouteScan
	// RouteRecover opens manual recovery, handled outside this core.
	RouteRecover
)

// String returns the link action name for the route.
func (r Route) String() string {
	switch r {
	case RouteImport:
		return "import"
	case RouteScan:
		return "scan"
	case RouteRecover:
		return "recover"
	default:
		return "unknown"
	}
}

// DeepLink is a parsed, validated inbound link.
type DeepLink struct {
	Route Route
	// Data is the encoded import request; set only for RouteImport.
	Data string
}

// ParseDeepLink validates a raw URL against the vaultbeam:// scheme and
// routes it. Import links must carry a non-empty data parameter.
func ParseDeepLink(raw string) (*DeepLink, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownLink, err)
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnknownLink, u.Scheme)
	}

	switch u.Host {
	case "import":
		data := u.Query().Get("data")
		if data == "" {
			return nil, fmt.Errorf("%w: import link without data", ErrUnknownLink)
		}
		return &DeepLink{Route: RouteImport, Data: data}, nil
	case "scan":
		return &DeepLink{Route: RouteScan}, nil
	case "recover":
		return &DeepLink{Route: RouteRecover}, nil
	default:
		return nil, fmt.Errorf("%w: action %q", ErrUnknownLink, u.Host)
	}
}
