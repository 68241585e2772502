package api

import "sort"

// RandomSpecKind tags the shape of a randomness request.
type RandomSpecKind uint8

const (
	RandomSpecShuffledList RandomSpecKind = iota
	RandomSpecLottery
)

// WeightedOption is one lottery entry.
type WeightedOption struct {
	Option string `json:"option"`
	Weight uint16 `json:"weight"`
}

// RandomSpec describes the plaintext option list of a randomness instance.
type RandomSpec struct {
	Kind            RandomSpecKind   `json:"kind"`
	Options         []string         `json:"options,omitempty"`
	WeightedOptions []WeightedOption `json:"weightedOptions,omitempty"`
}

// ShuffledList requests a shuffle over the given options.
func ShuffledList(options []string) RandomSpec {
	return RandomSpec{Kind: RandomSpecShuffledList, Options: options}
}

// Lottery requests a weighted draw; every option is repeated weight times.
func Lottery(options []WeightedOption) RandomSpec {
	return RandomSpec{Kind: RandomSpecLottery, WeightedOptions: options}
}

// AsOptions expands the spec into the flat, deterministic option list the
// protocol operates on.  Lottery options are sorted by value first so every
// node derives the same list.
func (s RandomSpec) AsOptions() []string {
	switch s.Kind {
	case RandomSpecLottery:
		sorted := make([]WeightedOption, len(s.WeightedOptions))
		copy(sorted, s.WeightedOptions)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Option < sorted[j].Option })
		var options []string
		for _, wo := range sorted {
			for i := uint16(0); i < wo.Weight; i++ {
				options = append(options, wo.Option)
			}
		}
		return options
	default:
		out := make([]string, len(s.Options))
		copy(out, s.Options)
		return out
	}
}

// Size returns the number of ciphertext slots the spec produces.
func (s RandomSpec) Size() int {
	if s.Kind == RandomSpecLottery {
		n := 0
		for _, wo := range s.WeightedOptions {
			n += int(wo.Weight)
		}
		return n
	}
	return len(s.Options)
}

// DeckOfCards returns the standard 52-card deck.
// Kinds are a, 2-9, t, j, q, k; suits are s(pade), d(iamond), c(lub), h(eart).
func DeckOfCards() RandomSpec {
	suits := []string{"h", "s", "d", "c"}
	kinds := []string{"a", "2", "3", "4", "5", "6", "7", "8", "9", "t", "j", "q", "k"}
	options := make([]string, 0, 52)
	for _, s := range suits {
		for _, k := range kinds {
			options = append(options, s+k)
		}
	}
	return ShuffledList(options)
}
