package generator

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/productkey/domain"
)

const (
	alphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffixLength = 6
	// 252 is the largest multiple of 36 below 256.
	maxRandomByte = 252
)

// KeyGenerator builds keys of the form PREFIX-<base36 millis>-<6 chars>.
type KeyGenerator struct {
	prefix string
	clock  clock.Clock
}

func New(cfg config.Config, clk clock.Clock) domain.Generator {
	return NewWithPrefix(cfg.KeyPrefix, clk)
}

func NewWithPrefix(prefix string, clk clock.Clock) *KeyGenerator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "HN"
	}
	return &KeyGenerator{prefix: prefix, clock: clk}
}

func (g *KeyGenerator) Generate() (string, error) {
	suffix, err := randomSuffix(suffixLength)
	if err != nil {
		return "", err
	}
	stamp := strconv.FormatInt(g.clock.Now().UnixMilli(), 36)
	return g.prefix + "-" + stamp + "-" + suffix, nil
}

func randomSuffix(length int) (string, error) {
	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}
	return string(out), nil
}
