package dataset

import (
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Matcher decides whether a file name holds a given channel.
type Matcher func(fileName string) bool

// Registry maps channel names to file matchers.
type Registry map[string]Matcher

// PrefixMatcher matches "{name}_*.tif".
func PrefixMatcher(name string) Matcher {
	prefix := name + "_"
	return func(fileName string) bool {
		return strings.HasPrefix(fileName, prefix) && strings.HasSuffix(fileName, ".tif")
	}
}

// DefaultRegistry resolves every channel of order with PrefixMatcher.
func DefaultRegistry(order ChannelOrder) Registry {
	r := make(Registry, order.Len())
	for _, ch := range order.Channels {
		r[ch] = PrefixMatcher(ch)
	}
	return r
}

// Resolve returns the file in dir holding channel, searching dir only. With several
// candidates the lexicographically first wins. ok is false when nothing matches.
func (r Registry) Resolve(dir, channel string) (string, bool, error) {
	match, found := r[channel]
	if !found {
		match = PrefixMatcher(channel)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, err
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !match(e.Name()) {
			continue
		}
		candidates = append(candidates, e.Name())
	}
	if len(candidates) == 0 {
		return "", false, nil
	}

	sort.Strings(candidates)
	if len(candidates) > 1 {
		log.Warn().
			Str("dir", dir).
			Str("channel", channel).
			Strs("candidates", candidates).
			Msg("several files match channel, using the first")
	}
	return candidates[0], true, nil
}
