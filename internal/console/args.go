package console

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SplitArgs splits a command line on whitespace. Text between double quotes
// is kept as one argument with its surrounding blanks trimmed. uneven
// reports an odd number of quotes; the trailing unterminated text is then
// treated as quoted.
func SplitArgs(line string) (args []string, uneven bool) {
	uneven = strings.Count(line, `"`)%2 != 0
	for i, segment := range strings.Split(line, `"`) {
		if i%2 == 1 {
			if s := strings.TrimSpace(segment); s != "" {
				args = append(args, s)
			}
			continue
		}
		args = append(args, strings.Fields(segment)...)
	}
	return args, uneven
}

// ConvertStringToType parses val according to a DTDL primitive schema name.
// Unknown schemas yield the string unchanged.
func ConvertStringToType(schema, val string) (any, error) {
	switch strings.ToLower(schema) {
	case "boolean", "bool":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a boolean", val)
		}
		return b, nil
	case "double":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a double", val)
		}
		return f, nil
	case "float":
		f, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a float", val)
		}
		return float32(f), nil
	case "integer", "int", "duration":
		n, err := strconv.ParseInt(val, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not an integer", val)
		}
		return int(n), nil
	case "long":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a long", val)
		}
		return n, nil
	case "datetime":
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not an RFC 3339 datetime", val)
		}
		return t, nil
	default:
		return val, nil
	}
}

// Properties turns name/schema/value triples into a property map.
func Properties(args []string) (map[string]any, error) {
	if len(args)%3 != 0 {
		return nil, fmt.Errorf("properties must be given as triples of name, schema and value")
	}
	props := make(map[string]any, len(args)/3)
	for i := 0; i < len(args); i += 3 {
		v, err := ConvertStringToType(args[i+1], args[i+2])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", args[i], err)
		}
		props[args[i]] = v
	}
	return props, nil
}
