package shapestore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/beetlebugorg/shapestore/internal/storeerr"
)

// DefaultCRS is used when a store has no projection file and none is
// configured.
const DefaultCRS = "CRS:84"

// Well-known codes.
const (
	CRS84       = "CRS:84"
	EPSG4326    = "EPSG:4326"
	EPSG4258    = "EPSG:4258"
	EPSG3857    = "EPSG:3857"
	EPSG900913  = "EPSG:900913"
	maxMercator = 85.0511287798066
)

// Transformer reprojects envelopes between coordinate reference systems.
// Implementations return errors wrapping ErrUnknownCRS or
// ErrTransformFailure.
type Transformer interface {
	Reproject(env Envelope, target string) (Envelope, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(env Envelope, target string) (Envelope, error)

// Reproject calls f.
func (f TransformerFunc) Reproject(env Envelope, target string) (Envelope, error) {
	return f(env, target)
}

// ProjectionTransformer converts between geographic WGS 84 (CRS:84,
// EPSG:4326, EPSG:4258) and spherical Web Mercator (EPSG:3857,
// EPSG:900913). Envelopes are reprojected through their corners and edge
// midpoints.
type ProjectionTransformer struct{}

type crsFamily int

const (
	familyUnknown crsFamily = iota
	familyGeographic
	familyMercator
)

func familyOf(code string) crsFamily {
	switch NormalizeCRS(code) {
	case CRS84, EPSG4326, EPSG4258:
		return familyGeographic
	case EPSG3857, EPSG900913:
		return familyMercator
	}
	return familyUnknown
}

// Reproject implements Transformer.
func (ProjectionTransformer) Reproject(env Envelope, target string) (Envelope, error) {
	if env.IsEmpty() || SameCRS(env.CRS, target) {
		return env.WithCRS(target), nil
	}

	from, to := familyOf(env.CRS), familyOf(target)
	if from == familyUnknown {
		return Envelope{}, fmt.Errorf("reproject from %q: %w", env.CRS, storeerr.ErrUnknownCRS)
	}
	if to == familyUnknown {
		return Envelope{}, fmt.Errorf("reproject to %q: %w", target, storeerr.ErrUnknownCRS)
	}

	var proj orb.Projection
	switch {
	case from == familyGeographic && to == familyMercator:
		env = clampLatitude(env)
		proj = project.WGS84.ToMercator
	case from == familyMercator && to == familyGeographic:
		proj = project.Mercator.ToWGS84
	}

	out := EmptyEnvelope(target)
	midX, midY := (env.MinX+env.MaxX)/2, (env.MinY+env.MaxY)/2
	for _, p := range []orb.Point{
		{env.MinX, env.MinY}, {env.MaxX, env.MinY}, {env.MinX, env.MaxY}, {env.MaxX, env.MaxY},
		{midX, env.MinY}, {midX, env.MaxY}, {env.MinX, midY}, {env.MaxX, midY},
	} {
		q := proj(p)
		if !finite(q[0]) || !finite(q[1]) {
			return Envelope{}, fmt.Errorf("reproject %s to %s: %w", env, target, storeerr.ErrTransformFailure)
		}
		out = out.Union(Envelope{MinX: q[0], MinY: q[1], MaxX: q[0], MaxY: q[1]})
	}
	return out.WithCRS(target), nil
}

func clampLatitude(env Envelope) Envelope {
	env.MinY = math.Max(env.MinY, -maxMercator)
	env.MaxY = math.Min(env.MaxY, maxMercator)
	return env
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var crsURN = regexp.MustCompile(`(?i)^(?:urn:(?:x-)?ogc:def:crs:|https?://www\.opengis\.net/def/crs/)([a-z]+)(?:[:/][^:/]*)?[:/]+([0-9a-z]+)$`)

// NormalizeCRS returns the AUTHORITY:CODE form of an identifier given as a
// code, an OGC URN or an OGC http URI.
func NormalizeCRS(code string) string {
	s := strings.TrimSpace(code)
	if m := crsURN.FindStringSubmatch(s); m != nil {
		auth, c := strings.ToUpper(m[1]), strings.ToUpper(m[2])
		if auth == "OGC" && c == "CRS84" {
			return CRS84
		}
		return auth + ":" + c
	}
	s = strings.ToUpper(s)
	if s == "CRS84" || s == "OGC:CRS84" {
		return CRS84
	}
	return s
}

// SameCRS reports whether a and b name the same system. An empty code
// matches anything; geographic WGS 84 aliases match each other, as do the
// Web Mercator aliases.
func SameCRS(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	na, nb := NormalizeCRS(a), NormalizeCRS(b)
	if na == nb {
		return true
	}
	fa := familyOf(na)
	return fa != familyUnknown && fa == familyOf(nb)
}

var (
	epsgLine      = regexp.MustCompile(`^(?i:EPSG:)?\s*([0-9]{4,6})$`)
	wktAuthority  = regexp.MustCompile(`AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?([0-9]+)"?\s*\]`)
	mercatorNames = []string{"WEB_MERCATOR", "PSEUDO-MERCATOR", "PSEUDO_MERCATOR", "POPULAR VISUALISATION", "GOOGLE_MAPS_GLOBAL_MERCATOR"}
	wgs84Names    = []string{"WGS_1984", "WGS 84", "WGS84"}
)

// ReadPRJ identifies the coordinate reference system declared by a
// projection file. It returns an error wrapping ErrNotFound when the file
// does not exist and ErrUnknownCRS when its contents are not recognized.
func ReadPRJ(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read projection %s: %w", path, storeerr.ErrNotFound)
		}
		return "", fmt.Errorf("read projection %s: %w", path, err)
	}
	code, err := ParsePRJ(data)
	if err != nil {
		return "", fmt.Errorf("read projection %s: %w", path, err)
	}
	return code, nil
}

// ParsePRJ identifies the system in projection file contents: a first line
// holding an EPSG code, the EPSG authority of the outermost WKT definition,
// or a WGS 84 or Web Mercator definition recognized by name.
func ParsePRJ(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	sc := bufio.NewScanner(bytes.NewReader(data))
	if sc.Scan() {
		if m := epsgLine.FindStringSubmatch(strings.TrimSpace(sc.Text())); m != nil {
			return "EPSG:" + m[1], nil
		}
	}

	wkt := strings.TrimSpace(string(data))
	if wkt == "" {
		return "", fmt.Errorf("empty projection: %w", storeerr.ErrUnknownCRS)
	}

	if code, ok := outermostAuthority(wkt); ok {
		return "EPSG:" + code, nil
	}

	upper := strings.ToUpper(wkt)
	if strings.HasPrefix(upper, "PROJCS") {
		for _, n := range mercatorNames {
			if strings.Contains(upper, n) {
				return EPSG3857, nil
			}
		}
	}
	if strings.HasPrefix(upper, "GEOGCS") {
		for _, n := range wgs84Names {
			if strings.Contains(upper, n) {
				return EPSG4326, nil
			}
		}
	}
	return "", fmt.Errorf("unrecognized projection %.40q: %w", wkt, storeerr.ErrUnknownCRS)
}

// outermostAuthority returns the EPSG code attached directly to the top-level
// WKT node, ignoring authorities of nested datum or unit nodes.
func outermostAuthority(wkt string) (string, bool) {
	best, bestDepth := "", math.MaxInt
	for _, loc := range wktAuthority.FindAllStringSubmatchIndex(wkt, -1) {
		depth := 0
		for _, r := range wkt[:loc[0]] {
			switch r {
			case '[', '(':
				depth++
			case ']', ')':
				depth--
			}
		}
		if depth < bestDepth {
			best, bestDepth = wkt[loc[2]:loc[3]], depth
		}
	}
	if bestDepth != 1 {
		return "", false
	}
	if _, err := strconv.Atoi(best); err != nil {
		return "", false
	}
	return best, true
}
