package payload

import "math"

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64
	Lon float64
}

const earthRadiusMeters = 6371000.0

// HaversineMeters computes great-circle distance between two points,
// ported from pkg/search/filter.go's haversineDistance.
func HaversineMeters(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	lon1 := a.Lon * math.Pi / 180.0
	lon2 := b.Lon * math.Pi / 180.0

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// geoCellSize is the grid cell edge in degrees. 0.1 deg is roughly 11km at
// the equator, a reasonable bucket for radius queries in the few-km to
// few-hundred-km range.
const geoCellSize = 0.1

type geoCell struct {
	latCell, lonCell int
}

func cellFor(p GeoPoint) geoCell {
	return geoCell{
		latCell: int(math.Floor(p.Lat / geoCellSize)),
		lonCell: int(math.Floor(p.Lon / geoCellSize)),
	}
}

// GeoIndex is a uniform grid over (lat, lon) supporting bounding-box and
// radius queries, per spec §4.4. A grid is simpler than an R-tree and
// sufficient at the collection scales this engine targets.
type GeoIndex struct {
	cells    map[geoCell]map[string]struct{}
	points   map[string]GeoPoint
}

func NewGeoIndex() *GeoIndex {
	return &GeoIndex{cells: make(map[geoCell]map[string]struct{}), points: make(map[string]GeoPoint)}
}

func (g *GeoIndex) Add(id string, p GeoPoint) {
	c := cellFor(p)
	set, ok := g.cells[c]
	if !ok {
		set = make(map[string]struct{})
		g.cells[c] = set
	}
	set[id] = struct{}{}
	g.points[id] = p
}

func (g *GeoIndex) Remove(id string) {
	p, ok := g.points[id]
	if !ok {
		return
	}
	c := cellFor(p)
	if set, ok := g.cells[c]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(g.cells, c)
		}
	}
	delete(g.points, id)
}

// InBoundingBox returns ids whose point falls within [sw, ne] inclusive.
func (g *GeoIndex) InBoundingBox(sw, ne GeoPoint) []string {
	var out []string
	for id, p := range g.points {
		if p.Lat >= sw.Lat && p.Lat <= ne.Lat && p.Lon >= sw.Lon && p.Lon <= ne.Lon {
			out = append(out, id)
		}
	}
	return out
}

// WithinRadius returns ids whose point is within meters of center. Uses the
// grid to prune cells, then exact Haversine to confirm each candidate.
func (g *GeoIndex) WithinRadius(center GeoPoint, meters float64) []string {
	// degrees-per-meter is latitude-independent for lat, longitude-dependent
	// for lon; be generous and scan a slightly larger cell box.
	latSpan := meters / 111000.0
	lonSpan := meters / (111000.0 * math.Max(0.1, math.Cos(center.Lat*math.Pi/180.0)))

	minCell := cellFor(GeoPoint{Lat: center.Lat - latSpan, Lon: center.Lon - lonSpan})
	maxCell := cellFor(GeoPoint{Lat: center.Lat + latSpan, Lon: center.Lon + lonSpan})

	var out []string
	for lc := minCell.latCell; lc <= maxCell.latCell; lc++ {
		for oc := minCell.lonCell; oc <= maxCell.lonCell; oc++ {
			set, ok := g.cells[geoCell{latCell: lc, lonCell: oc}]
			if !ok {
				continue
			}
			for id := range set {
				if HaversineMeters(center, g.points[id]) <= meters {
					out = append(out, id)
				}
			}
		}
	}
	return out
}
