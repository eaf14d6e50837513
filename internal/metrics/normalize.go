package metrics

import (
	"math"
	"regexp"
	"strconv"
)

// Value is the outcome of normalizing a raw usage string: either an integer
// in base units (bytes or seconds) or the raw string passed through.
type Value struct {
	raw     string
	base    int64
	numeric bool
}

// Int64 returns the normalized integer and whether normalization applied.
func (v Value) Int64() (int64, bool) {
	return v.base, v.numeric
}

// IsNumeric reports whether the raw string matched a known unit.
func (v Value) IsNumeric() bool {
	return v.numeric
}

// String returns the exposition form of the value.
func (v Value) String() string {
	if v.numeric {
		return strconv.FormatInt(v.base, 10)
	}
	return v.raw
}

const (
	kibi = 1024
	mebi = 1024 * kibi
	gibi = 1024 * mebi

	secondsPerMinute = 60
)

type unitRule struct {
	pattern *regexp.Regexp
	convert func(groups []string) (int64, bool)
}

// Order matters: minutes with seconds must be tried before bare minutes.
var unitRules = []unitRule{
	{regexp.MustCompile(`(?i)^([0-9]+)Ki$`), scaled(kibi)},
	{regexp.MustCompile(`(?i)^([0-9]+)Mi$`), scaled(mebi)},
	{regexp.MustCompile(`(?i)^([0-9]+)Gi$`), scaled(gibi)},
	{regexp.MustCompile(`(?i)^([0-9]+)m([0-9]+)s$`), minutesAndSeconds},
	{regexp.MustCompile(`(?i)^([0-9]+)m$`), scaled(secondsPerMinute)},
}

// Normalize converts binary byte suffixes (Ki, Mi, Gi) to bytes and minute
// durations ("5m", "5m30s") to seconds. Anything else, including values that
// would overflow an int64, is returned unchanged.
func Normalize(raw string) Value {
	for _, rule := range unitRules {
		groups := rule.pattern.FindStringSubmatch(raw)
		if groups == nil {
			continue
		}
		n, ok := rule.convert(groups[1:])
		if !ok {
			break
		}
		return Value{raw: raw, base: n, numeric: true}
	}
	return Value{raw: raw}
}

func scaled(factor int64) func([]string) (int64, bool) {
	return func(groups []string) (int64, bool) {
		n, err := strconv.ParseInt(groups[0], 10, 64)
		if err != nil || n > math.MaxInt64/factor {
			return 0, false
		}
		return n * factor, true
	}
}

func minutesAndSeconds(groups []string) (int64, bool) {
	seconds, ok := scaled(secondsPerMinute)(groups[:1])
	if !ok {
		return 0, false
	}
	extra, err := strconv.ParseInt(groups[1], 10, 64)
	if err != nil || seconds > math.MaxInt64-extra {
		return 0, false
	}
	return seconds + extra, true
}
