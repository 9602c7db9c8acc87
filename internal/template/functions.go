package template

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Rand is the random source used by template functions. *rand.Rand
// satisfies it.
type Rand interface {
	Int63n(n int64) int64
	Intn(n int) int
	Float64() float64
}

// sharedRand uses the package-level math/rand source, which is safe for
// concurrent use.
type sharedRand struct{}

func (sharedRand) Int63n(n int64) int64 { return rand.Int63n(n) }
func (sharedRand) Intn(n int) int       { return rand.Intn(n) }
func (sharedRand) Float64() float64     { return rand.Float64() }

// randReader fills byte slices from a Rand so uuid() follows the
// actor's seed.
type randReader struct{ rng Rand }

func (r randReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Intn(256))
	}
	return len(p), nil
}

var funcRegistry = map[string]func(args string, rng Rand) (string, error){
	"uuid":          fnUUID,
	"timestamp":     fnTimestamp,
	"timestamp_ms":  fnTimestampMs,
	"random":        fnRandom,
	"random_float":  fnRandomFloat,
	"random_string": fnRandomString,
	"choice":        fnChoice,
	"date":          fnDate,
}

// evalFunction evaluates a built-in function call. The bool reports
// whether expr named a known function at all.
func evalFunction(expr string, rng Rand) (string, bool, error) {
	parenIdx := strings.Index(expr, "(")
	if parenIdx == -1 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}

	funcName := expr[:parenIdx]
	args := expr[parenIdx+1 : len(expr)-1]

	fn, ok := funcRegistry[funcName]
	if !ok {
		return "", false, nil
	}

	result, err := fn(args, rng)
	if err != nil {
		return "", true, fmt.Errorf("function %s: %w", funcName, err)
	}
	return result, true, nil
}

func fnUUID(args string, rng Rand) (string, error) {
	if args != "" {
		return "", fmt.Errorf("uuid() takes no arguments")
	}
	if rng == nil {
		rng = sharedRand{}
	}
	id, err := uuid.NewRandomFromReader(randReader{rng})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func fnTimestamp(args string, _ Rand) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp() takes no arguments")
	}
	return strconv.FormatInt(time.Now().Unix(), 10), nil
}

func fnTimestampMs(args string, _ Rand) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp_ms() takes no arguments")
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10), nil
}

// fnRandom returns an integer in [min, max]. Usage: random(min,max)
func fnRandom(args string, rng Rand) (string, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return "", fmt.Errorf("random(min,max) requires exactly 2 arguments")
	}
	min, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	max, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if min > max {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", min, max)
	}
	return strconv.FormatInt(min+rng.Int63n(max-min+1), 10), nil
}

// fnRandomFloat returns a float in [min, max] rounded to 2 decimals.
// Usage: random_float(15,35)
func fnRandomFloat(args string, rng Rand) (string, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return "", fmt.Errorf("random_float(min,max) requires exactly 2 arguments")
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if min > max {
		return "", fmt.Errorf("min (%g) must be <= max (%g)", min, max)
	}
	return strconv.FormatFloat(min+rng.Float64()*(max-min), 'f', 2, 64), nil
}

// fnChoice picks one of the |-separated options. Usage: choice(SENT|FAILED)
func fnChoice(args string, rng Rand) (string, error) {
	if strings.TrimSpace(args) == "" {
		return "", fmt.Errorf("choice() requires at least one option")
	}
	options := strings.Split(args, "|")
	return strings.TrimSpace(options[rng.Intn(len(options))]), nil
}

// fnRandomString returns a random alphanumeric string. Usage: random_string(8)
func fnRandomString(args string, rng Rand) (string, error) {
	length, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	if length > 1000 {
		return "", fmt.Errorf("length must be <= 1000")
	}

	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[rng.Intn(len(charset))]
	}
	return string(result), nil
}

// fnDate formats the current UTC time with a Go layout, RFC3339 by default.
// Usage: date(2006-01-02)
func fnDate(args string, _ Rand) (string, error) {
	format := strings.TrimSpace(args)
	if format == "" {
		format = time.RFC3339
	}
	return time.Now().UTC().Format(format), nil
}
