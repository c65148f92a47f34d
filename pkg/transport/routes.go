package transport

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sirosfoundation/go-sifen/pkg/message"
)

// Environment is the SIFEN environment a target URL belongs to
type Environment int

const (
	EnvironmentUnknown Environment = iota
	EnvironmentTest
	EnvironmentProduction
)

// Authority hosts
const (
	TestHost       = "sifen-test.set.gov.py"
	ProductionHost = "sifen.set.gov.py"
)

func (e Environment) String() string {
	switch e {
	case EnvironmentTest:
		return "test"
	case EnvironmentProduction:
		return "prod"
	default:
		return "unknown"
	}
}

// EnvironmentOf infers the environment from a host name
func EnvironmentOf(host string) Environment {
	switch strings.ToLower(host) {
	case TestHost:
		return EnvironmentTest
	case ProductionHost:
		return EnvironmentProduction
	default:
		return EnvironmentUnknown
	}
}

// Content negotiation values
const (
	ContentTypeXML    = "application/xml; charset=utf-8"
	ContentTypeSOAP12 = "application/soap+xml; charset=utf-8"
	AcceptSOAP        = "application/soap+xml, text/xml, */*"
	AcceptBrowser     = "text/html, image/gif, image/jpeg, */*; q=0.2"
)

// Route is the wire treatment for one target. SOAPAction is sent only when
// SendSOAPAction is set; it may then be the empty string.
type Route struct {
	Name           string
	Version        message.Version
	ContentType    string
	Accept         string
	SOAPAction     string
	SendSOAPAction bool
	KeepAlive      bool
	Close          bool
}

func soap12Action(action string) string {
	return fmt.Sprintf("%s; action=%q", ContentTypeSOAP12, action)
}

type rule struct {
	contains string
	env      Environment // EnvironmentUnknown matches any environment
	route    Route
}

// routes is evaluated top to bottom; the first matching row wins. New
// endpoints get a new row.
var routes = []rule{
	{
		contains: "consulta-ruc",
		env:      EnvironmentTest,
		route: Route{
			Name:        "ruc-test",
			Version:     message.SOAP11,
			ContentType: ContentTypeXML,
			Accept:      AcceptBrowser,
			KeepAlive:   true,
		},
	},
	{
		contains: "consulta-ruc",
		route: Route{
			Name:           "ruc",
			Version:        message.SOAP12,
			ContentType:    soap12Action("siConsRUC"),
			Accept:         AcceptSOAP,
			SOAPAction:     "siConsRUC",
			SendSOAPAction: true,
		},
	},
	{
		contains: "/async/recibe-lote",
		route: Route{
			Name:        "lot-reception",
			Version:     message.SOAP12,
			ContentType: soap12Action("siRecepLoteDE"),
			Accept:      AcceptSOAP,
		},
	},
	{
		contains: "consulta-lote",
		route: Route{
			Name:           "lot-query",
			Version:        message.SOAP12,
			ContentType:    soap12Action("siConsLoteDE"),
			Accept:         AcceptSOAP,
			SendSOAPAction: true,
			Close:          true,
		},
	},
}

var defaultRoute = Route{
	Name:        "default",
	Version:     message.SOAP12,
	ContentType: ContentTypeSOAP12,
	Accept:      AcceptSOAP,
}

// Lookup returns the route for a target URL in the given environment. Paths
// match case-insensitively. It has no side effects.
func Lookup(target string, env Environment) Route {
	target = strings.ToLower(target)
	for _, r := range routes {
		if r.env != EnvironmentUnknown && r.env != env {
			continue
		}
		if strings.Contains(target, r.contains) {
			return r.route
		}
	}
	return defaultRoute
}

// Resolve validates the target URL and returns its route, inferring the
// environment from the host
func Resolve(target string) (Route, error) {
	u, err := parseTarget(target)
	if err != nil {
		return Route{}, err
	}
	return Lookup(target, EnvironmentOf(u.Hostname())), nil
}

func parseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: protocol %q is not allowed", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidTarget, target)
	}
	return u, nil
}
