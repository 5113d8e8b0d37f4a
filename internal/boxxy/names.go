package boxxy

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// adjectives and nouns back the human-readable staging directory suffix
// (e.g. "bold-surf-9356"). No pack library provides friendly-name
// generation for a narrow leaf utility like this, so it's a small literal
// word list rather than a dependency.
var adjectives = []string{
	"bold", "quiet", "brisk", "amber", "lucid", "murky", "spare", "wry",
	"dusty", "feral", "glib", "hazy", "jolly", "keen", "lanky", "moody",
	"nifty", "plucky", "rowdy", "stark", "tidy", "vivid", "wiry", "zesty",
}

var nouns = []string{
	"surf", "ridge", "ember", "thicket", "harbor", "quartz", "meadow",
	"canyon", "falcon", "otter", "birch", "granite", "lagoon", "marsh",
	"plateau", "summit", "thistle", "tundra", "willow", "cinder",
}

// stagingName generates a human-readable, collision-resistant suffix of the
// form "<adjective>-<noun>-<digits>" (§3 invariant 4).
func stagingName() (string, error) {
	adjective, err := pick(adjectives)
	if err != nil {
		return "", err
	}

	noun, err := pick(nouns)
	if err != nil {
		return "", err
	}

	digits, err := randomDigits(4)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s", adjective, noun, digits), nil
}

func pick(words []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", err
	}

	return words[n.Int64()], nil
}

func randomDigits(n int) (string, error) {
	max := big.NewInt(1)
	ten := big.NewInt(10)

	for range n {
		max.Mul(max, ten)
	}

	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}
