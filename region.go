package cloudauth

import "strings"

// Region selects which cloud API host a Client talks to.
type Region string

const (
	// RegionEU is an exported constant selecting the European cloud host.
	RegionEU Region = "eu"
	// RegionRU is an exported constant selecting the Russian cloud host.
	RegionRU Region = "ru"
	// RegionCustom selects an operator-supplied API host.
	RegionCustom Region = "custom"
)

var regionHosts = map[Region]string{
	RegionEU: "apiieu.ezvizlife.com",
	RegionRU: "apirus.ezvizru.com",
}

// NormalizeAPIHost strips scheme, surrounding whitespace and trailing
// slashes from a host string. It never validates reachability.
func NormalizeAPIHost(raw string) string {
	v := strings.TrimSpace(raw)
	if strings.HasPrefix(v, "http://") {
		v = v[len("http://"):]
	} else if strings.HasPrefix(v, "https://") {
		v = v[len("https://"):]
	}
	return strings.Trim(strings.TrimSpace(v), "/")
}

// ResolveAPIHost maps a symbolic region (or a normalized custom hostname)
// to the concrete API host used for every subsequent cloud call. The
// result is immutable input to the Client: it is never derived from a
// server response, so a buggy or malicious response cannot redirect
// future calls.
func ResolveAPIHost(region Region, customHost string) (string, error) {
	if region == RegionCustom {
		host := NormalizeAPIHost(customHost)
		if host == "" {
			return "", opError("resolve api host", "", ErrInvalidHost)
		}
		return host, nil
	}
	host, ok := regionHosts[region]
	if !ok {
		return "", opError("resolve api host", "", ErrInvalidHost)
	}
	return host, nil
}
