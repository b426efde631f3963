package intake

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

// maxNesting ограничивает разбор строк, внутри которых снова JSON
const maxNesting = 6

// ParseLocation приводит входной payload к task.Location один раз на границе.
// Payload может быть объектом, строкой с JSON или просто адресом; вложенное поле
// location тоже может оказаться строкой с JSON. Ошибки разбора не фатальны:
// нераспознанная строка считается адресом.
func ParseLocation(payload any) task.Location {
	return parseValue(payload, 0)
}

func parseValue(v any, depth int) task.Location {
	switch val := v.(type) {
	case nil:
		return task.Location{}
	case task.Location:
		return val
	case *task.Location:
		if val == nil {
			return task.Location{}
		}
		return *val
	case string:
		return parseString(val, depth)
	case json.RawMessage:
		return parseString(string(val), depth)
	case []byte:
		return parseString(string(val), depth)
	case map[string]any:
		return parseObject(val, depth)
	case []any:
		return parsePair(val)
	default:
		// произвольную структуру прогоняем через JSON
		raw, err := json.Marshal(val)
		if err != nil {
			return task.Location{}
		}
		return parseString(string(raw), depth)
	}
}

func parseString(s string, depth int) task.Location {
	s = strings.TrimSpace(s)
	if s == "" {
		return task.Location{}
	}
	if depth < maxNesting {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			switch d := decoded.(type) {
			case map[string]any:
				return parseObject(d, depth+1)
			case []any:
				if loc := parsePair(d); loc.HasCoordinates() {
					return loc
				}
			case string:
				return parseString(d, depth+1)
			}
		}
	}
	if lat, lng, ok := parseLatLng(s); ok {
		return task.NewCoordinates(lat, lng)
	}
	return task.Location{Address: s}
}

func parseObject(m map[string]any, depth int) task.Location {
	var loc task.Location

	// вложенный location разбираем независимо от верхнего уровня
	if nested, ok := m["location"]; ok {
		loc = parseValue(nested, depth+1)
	}
	for _, key := range []string{"coords", "coordinates"} {
		if nested, ok := m[key]; ok && !loc.HasCoordinates() {
			c := parseValue(nested, depth+1)
			loc.Lat, loc.Lng = c.Lat, c.Lng
		}
	}

	if lat, ok := firstNumber(m, "lat", "latitude"); ok {
		if lng, ok := firstNumber(m, "lng", "lon", "long", "longitude"); ok && validCoordinates(lat, lng) {
			loc.Lat, loc.Lng = &lat, &lng
		}
	}
	if addr := firstString(m, "address", "addressText", "formattedAddress", "text", "name"); addr != "" {
		loc.Address = addr
	}
	if v := firstString(m, "floor"); v != "" {
		loc.Floor = v
	}
	if v := firstString(m, "sector", "block", "area"); v != "" {
		loc.Sector = v
	}
	if v := firstString(m, "instructions", "landmark", "directions"); v != "" {
		loc.Instructions = v
	}
	return loc
}

// parsePair принимает массив [lat, lng]; всё остальное даёт пустую локацию
func parsePair(values []any) task.Location {
	if len(values) != 2 {
		return task.Location{}
	}
	lat, ok := toNumber(values[0])
	if !ok {
		return task.Location{}
	}
	lng, ok := toNumber(values[1])
	if !ok || !validCoordinates(lat, lng) {
		return task.Location{}
	}
	return task.NewCoordinates(lat, lng)
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toNumber(m[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// parseLatLng распознаёт строку вида "17.4,78.4"
func parseLatLng(s string) (float64, float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if !validCoordinates(lat, lng) {
		return 0, 0, false
	}
	return lat, lng, true
}
