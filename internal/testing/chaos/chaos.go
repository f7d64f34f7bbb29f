// Package chaos corrupts well-formed SQL so the scanner, the parsers, and the
// analysis façade can be hammered with malformed statements. Corrupted input
// must produce an error or a result, never a panic.
package chaos

import (
	"math/rand"
	"strings"
)

// Corruptor derives corrupted statements from a valid one. The seed fixes the
// mutation sequence so failures reproduce.
type Corruptor struct {
	rng *rand.Rand
}

// NewCorruptor creates a Corruptor with the given seed.
func NewCorruptor(seed int64) *Corruptor {
	return &Corruptor{rng: rand.New(rand.NewSource(seed))}
}

// sql keywords swapped into statements to produce near-valid garbage, which
// exercises deeper parser states than random bytes alone.
var keywords = []string{
	"SELECT", "FROM", "WHERE", "JOIN", "ON", "AND", "OR", "IN",
	"INSERT", "UPDATE", "DELETE", "SET", "VALUES", "BETWEEN", "NULL",
}

// Corrupt applies one random mutation to the input.
func (c *Corruptor) Corrupt(input string) string {
	if input == "" {
		return c.randomKeyword()
	}
	switch c.rng.Intn(7) {
	case 0:
		return c.deleteByte(input)
	case 1:
		return c.insertByte(input)
	case 2:
		return c.replaceByte(input)
	case 3:
		return c.truncate(input)
	case 4:
		return c.spliceKeyword(input)
	case 5:
		return c.unbalanceQuote(input)
	default:
		return c.dropParen(input)
	}
}

// CorruptN applies n mutations in sequence.
func (c *Corruptor) CorruptN(input string, n int) string {
	out := input
	for i := 0; i < n; i++ {
		out = c.Corrupt(out)
	}
	return out
}

// Corpus derives count corrupted statements of varying intensity.
func (c *Corruptor) Corpus(valid string, count int) []string {
	out := make([]string, count)
	for i := range out {
		out[i] = c.CorruptN(valid, c.rng.Intn(4)+1)
	}
	return out
}

func (c *Corruptor) randomKeyword() string {
	return keywords[c.rng.Intn(len(keywords))]
}

func (c *Corruptor) deleteByte(input string) string {
	if len(input) <= 1 {
		return input
	}
	idx := c.rng.Intn(len(input))
	return input[:idx] + input[idx+1:]
}

func (c *Corruptor) insertByte(input string) string {
	idx := c.rng.Intn(len(input) + 1)
	return input[:idx] + string(rune(c.rng.Intn(256))) + input[idx:]
}

func (c *Corruptor) replaceByte(input string) string {
	idx := c.rng.Intn(len(input))
	return input[:idx] + string(rune(c.rng.Intn(256))) + input[idx+1:]
}

func (c *Corruptor) truncate(input string) string {
	if len(input) <= 1 {
		return input
	}
	return input[:c.rng.Intn(len(input)-1)+1]
}

func (c *Corruptor) spliceKeyword(input string) string {
	idx := c.rng.Intn(len(input) + 1)
	return input[:idx] + " " + c.randomKeyword() + " " + input[idx:]
}

func (c *Corruptor) unbalanceQuote(input string) string {
	quotes := []string{"'", "`", `"`}
	q := quotes[c.rng.Intn(len(quotes))]
	if c.rng.Intn(2) == 0 && strings.Contains(input, q) {
		return strings.Replace(input, q, "", 1)
	}
	idx := c.rng.Intn(len(input) + 1)
	return input[:idx] + q + input[idx:]
}

func (c *Corruptor) dropParen(input string) string {
	for _, p := range []string{"(", ")"} {
		if strings.Contains(input, p) {
			return strings.Replace(input, p, "", 1)
		}
	}
	return c.insertByte(input)
}
