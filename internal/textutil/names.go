package textutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	chapterPattern  = regexp.MustCompile(`^(.*第)(\d+)(节.*)$`)
	parenPattern    = regexp.MustCompile(`^(.*\()(\d+)(\).*)$`)
	separatorSuffix = regexp.MustCompile(`^(.*[_-])(\d+)$`)
	trailingDigits  = regexp.MustCompile(`^(.*?)(\d+)$`)
)

// AutoIncrementName suggests the next name in a numbered series. It recognizes
// "第N节", "(N)", "_N"/"-N" and trailing digits, keeping zero padding. Names
// without a number get a "_2" suffix.
func AutoIncrementName(name string) string {
	name = NormalizeName(name)
	for _, re := range []*regexp.Regexp{chapterPattern, parenPattern, separatorSuffix, trailingDigits} {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		suffix := ""
		if len(m) > 3 {
			suffix = m[3]
		}
		return m[1] + incrementDigits(m[2]) + suffix
	}
	if name == "" {
		return fallbackDirName + "_2"
	}
	return name + "_2"
}

// IncrementNames returns count names starting at base and continuing its
// numbered series.
func IncrementNames(base string, count int) []string {
	if count <= 0 {
		return nil
	}
	names := make([]string, 0, count)
	current := NormalizeName(base)
	names = append(names, current)
	for len(names) < count {
		current = AutoIncrementName(current)
		names = append(names, current)
	}
	return names
}

func incrementDigits(digits string) string {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return digits
	}
	next := strconv.Itoa(n + 1)
	if len(next) < len(digits) {
		next = strings.Repeat("0", len(digits)-len(next)) + next
	}
	return next
}

// Disambiguate returns names in input order where repeated names receive
// _1, _2, ... suffixes. The first occurrence of a duplicated name is renamed
// too, so "A","A" becomes "A_1","A_2". Generated names never collide with
// names already present in the input.
func Disambiguate(names []string) []string {
	counts := make(map[string]int, len(names))
	taken := make(map[string]struct{}, len(names))
	for _, name := range names {
		key := NormalizeName(name)
		counts[key]++
		taken[key] = struct{}{}
	}
	next := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		key := NormalizeName(name)
		if counts[key] < 2 {
			out[i] = key
			continue
		}
		for {
			next[key]++
			candidate := fmt.Sprintf("%s_%d", key, next[key])
			if _, exists := taken[candidate]; exists {
				continue
			}
			taken[candidate] = struct{}{}
			out[i] = candidate
			break
		}
	}
	return out
}

// UniqueDirName returns base, or base_N for the first N that is not in use.
func UniqueDirName(base string, inUse func(string) bool) string {
	if !inUse(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !inUse(candidate) {
			return candidate
		}
	}
}

// NaturalLess orders strings so that embedded numbers compare numerically:
// "lecture2" sorts before "lecture10".
func NaturalLess(a, b string) bool {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ra[i] != rb[j] {
			return ra[i] < rb[j]
		}
		i++
		j++
	}
	return len(ra)-i < len(rb)-j
}
