package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/torosent/courier/internal/body"
	"github.com/torosent/courier/internal/httpclient"
	"github.com/torosent/courier/internal/mock"
	"github.com/torosent/courier/internal/oauth"
	"github.com/torosent/courier/internal/sender"
)

// errorKinds are checked in order against the whole error chain.
var errorKinds = []struct {
	label string
	match func(error) bool
}{
	{"Context deadline exceeded", func(err error) bool { return errors.Is(err, context.DeadlineExceeded) }},
	{"Context canceled", func(err error) bool { return errors.Is(err, context.Canceled) }},
	{"Mock request not found", as[*mock.RequestNotFoundError]},
	{"Fixture missing", func(err error) bool { return errors.Is(err, mock.ErrFixtureMissing) }},
	{"Middleware hook failed", as[*httpclient.PipelineHookError]},
	{"HTTP error response", as[*httpclient.StatusError]},
	{"OAuth config invalid", as[*oauth.ConfigValidationError]},
	{"Invalid request body", as[*body.ValidationError]},
	{"Transport failure", as[*sender.TransportError]},
}

func as[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// ErrorName returns the label err is counted under. Errors of unknown types
// are labelled by their humanized type name, e.g. "Rate Limit Error (api)".
func ErrorName(err error) string {
	if err == nil {
		return "Unknown error"
	}
	for _, kind := range errorKinds {
		if kind.match(err) {
			return kind.label
		}
	}
	return typeLabel(fmt.Sprintf("%T", err))
}

func typeLabel(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	pkg, name, found := strings.Cut(name, ".")
	if !found {
		name, pkg = pkg, ""
	}
	if name == "" {
		return "Unknown error"
	}

	label := strings.Join(splitWords(name), " ")
	if pkg != "" && pkg != "main" {
		return fmt.Sprintf("%s (%s)", label, pkg)
	}
	return label
}

// splitWords breaks a Go identifier at case changes. Acronyms stay whole.
func splitWords(name string) []string {
	runes := []rune(name)
	var words [][]rune
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, r := runes[i-1], runes[i]
		acronymEnd := unicode.IsUpper(prev) && unicode.IsUpper(r) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if (unicode.IsUpper(r) && unicode.IsLower(prev)) || acronymEnd {
			words = append(words, runes[start:i])
			start = i
		}
	}
	words = append(words, runes[start:])

	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, string(unicode.ToUpper(w[0]))+string(w[1:]))
	}
	return out
}
