package automation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// placeholderRe matches {{trigger.<path>}} and {{step_<N>.<path>}} tokens.
var placeholderRe = regexp.MustCompile(`\{\{\s*(trigger|step_\d+)\.([^{}]+?)\s*\}\}`)

// PlaceholderProcessor resolves {{...}} references in step configuration
// against the accumulated outputs of a run. outputs[0] is the trigger
// payload; outputs[N] is the Nth executed step's output. The processor is
// stateless and idempotent: resolving already-resolved data changes nothing.
type PlaceholderProcessor struct {
	logger *logrus.Logger
}

func NewPlaceholderProcessor(logger *logrus.Logger) *PlaceholderProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	return &PlaceholderProcessor{logger: logger}
}

// ProcessData walks every string leaf of data (maps and slices, arbitrarily
// nested) and replaces placeholder tokens. Non-string leaves pass through
// unchanged. The input is not mutated.
func (p *PlaceholderProcessor) ProcessData(data map[string]interface{}, outputs []map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = p.processAny(v, outputs)
	}
	return out
}

func (p *PlaceholderProcessor) processAny(v interface{}, outputs []map[string]interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return p.ProcessValue(t, outputs)
	case map[string]interface{}:
		return p.ProcessData(t, outputs)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = p.processAny(item, outputs)
		}
		return out
	default:
		return v
	}
}

// ProcessValue replaces every placeholder token in s. An out-of-range step
// reference logs a warning and resolves to the empty string; so does a path
// whose intermediate value is missing or null.
func (p *PlaceholderProcessor) ProcessValue(s string, outputs []map[string]interface{}) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		m := placeholderRe.FindStringSubmatch(token)
		if m == nil {
			return token
		}
		source, path := m[1], m[2]

		idx := 0
		if source != "trigger" {
			n, err := strconv.Atoi(strings.TrimPrefix(source, "step_"))
			if err != nil {
				return ""
			}
			idx = n
		}
		if idx < 0 || idx >= len(outputs) {
			p.logger.Warnf("placeholder: %s out of range (%d outputs recorded)", source, len(outputs))
			return ""
		}
		return stringify(resolvePath(outputs[idx], path))
	})
}

// resolvePath walks a dotted path with optional [i] array indexing, e.g.
// "card.items[0].name". It short-circuits to nil the moment any
// intermediate value is absent or null.
func resolvePath(root map[string]interface{}, path string) interface{} {
	var current interface{} = root
	for _, part := range strings.Split(path, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil
		}
		key, indexes, ok := splitIndexes(part)
		if !ok {
			return nil
		}
		if key != "" {
			m, isMap := current.(map[string]interface{})
			if !isMap {
				return nil
			}
			current = m[key]
		}
		for _, i := range indexes {
			arr, isArr := current.([]interface{})
			if !isArr || i < 0 || i >= len(arr) {
				return nil
			}
			current = arr[i]
		}
		if current == nil {
			return nil
		}
	}
	return current
}

// splitIndexes parses one path segment like `items[0][1]` into its key and
// bracketed indexes.
func splitIndexes(part string) (key string, indexes []int, ok bool) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, nil, true
	}
	key = part[:open]
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return "", nil, false
		}
		n, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, n)
		rest = rest[close+1:]
	}
	return key, indexes, true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode to float64; render integers without the ".0".
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
