package tile

import (
	"fmt"
	"strconv"
	"strings"
)

// Source is where a tile's payloads live, resolved once per key.
type Source struct {
	ServerID  int
	Imagery   string
	Elevation string
}

// Path returns the server-relative payload path for key.
//
// A positive divisor buckets tiles into directories of divisor x divisor DD:
//
//	L<level>/D<div>/x<lon/div>y<lat/div>/<lon>_<lat>.<ext>
//
// A zero divisor shards by hemisphere quadrant and the leading digits of the
// zero-padded absolute coordinates:
//
//	L<level>/<quad>/<lon[:3]>/<lat[:3]>/<lon>_<lat>.<ext>
func Path(key Key, divisor int, ext string) string {
	if divisor > 0 {
		return fmt.Sprintf("L%d/D%d/x%dy%d/%d_%d.%s",
			key.Level, divisor,
			floorDiv(key.Lon, divisor), floorDiv(key.Lat, divisor),
			key.Lon, key.Lat, ext)
	}

	lon := padAbs(key.Lon)
	lat := padAbs(key.Lat)
	return fmt.Sprintf("L%d/%s/%s/%s/%s_%s.%s",
		key.Level, quadrant(key.Lon, key.Lat), lon[:3], lat[:3], lon, lat, ext)
}

// ResolveSource builds the source paths for key.
func ResolveSource(key Key, serverID, divisor int, imageryExt, elevationExt string) Source {
	return Source{
		ServerID:  serverID,
		Imagery:   Path(key, divisor, imageryExt),
		Elevation: Path(key, divisor, elevationExt),
	}
}

func quadrant(lon, lat int) string {
	var b strings.Builder
	if lat >= 0 {
		b.WriteByte('n')
	} else {
		b.WriteByte('s')
	}
	if lon >= 0 {
		b.WriteByte('e')
	} else {
		b.WriteByte('w')
	}
	return b.String()
}

func padAbs(v int) string {
	if v < 0 {
		v = -v
	}
	s := strconv.Itoa(v)
	if len(s) >= 9 {
		return s
	}
	return strings.Repeat("0", 9-len(s)) + s
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
