package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/autoforge/internal/secrets"
	"github.com/rendis/autoforge/pkg/schema"
)

var namespaces = []string{"trigger", "chain", "execution", "secrets"}

// Interpolator resolves ${{...}} references in action configs.
//
// Each string is tokenized once. Non-secret references are resolved first and
// secrets second; resolved values are never scanned for further references.
type Interpolator struct {
	vault secrets.Vault
	jq    *GoJQEngine
}

// NewInterpolator creates an Interpolator. vault may be nil, in which case any
// secrets reference fails.
func NewInterpolator(vault secrets.Vault) *Interpolator {
	return &Interpolator{vault: vault, jq: NewGoJQEngine()}
}

// ResolveConfig returns a copy of config with every reference resolved.
// A string that is exactly one reference keeps the referenced value's type.
func (interp *Interpolator) ResolveConfig(ctx context.Context, config map[string]any, scope *Scope) (map[string]any, error) {
	if config == nil {
		return map[string]any{}, nil
	}
	data := scope.data()
	out, err := interp.resolveValue(ctx, config, data)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func (interp *Interpolator) resolveValue(ctx context.Context, v any, data map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return interp.resolveString(ctx, val, data)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := interp.resolveValue(ctx, item, data)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := interp.resolveValue(ctx, item, data)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

type segment struct {
	literal string
	ref     string
	value   any
}

func (s segment) isRef() bool { return s.ref != "" }

func (s segment) isSecret() bool { return strings.HasPrefix(s.ref, "secrets.") }

func (interp *Interpolator) resolveString(ctx context.Context, s string, data map[string]any) (any, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}
	segs, err := tokenize(s)
	if err != nil {
		return nil, err
	}

	for _, secretPass := range []bool{false, true} {
		for i := range segs {
			if !segs[i].isRef() || segs[i].isSecret() != secretPass {
				continue
			}
			val, err := interp.resolveRef(ctx, segs[i].ref, data)
			if err != nil {
				return nil, err
			}
			segs[i].value = val
		}
	}

	if len(segs) == 1 && segs[0].isRef() {
		return segs[0].value, nil
	}

	var b strings.Builder
	for _, seg := range segs {
		if seg.isRef() {
			b.WriteString(stringify(seg.value))
		} else {
			b.WriteString(seg.literal)
		}
	}
	return b.String(), nil
}

// tokenize splits s into literal and ${{ref}} segments.
func tokenize(s string) ([]segment, error) {
	var segs []segment
	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "${{")
		if idx == -1 {
			segs = append(segs, segment{literal: s[i:]})
			break
		}
		if idx > 0 {
			segs = append(segs, segment{literal: s[i : i+idx]})
		}
		start := i + idx + 3

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			return nil, schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		ref := strings.TrimSpace(s[start:end])
		if strings.Contains(ref, "${{") {
			return nil, schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}
		if ref == "" {
			return nil, schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: ${{  }}")
		}
		segs = append(segs, segment{ref: ref})
		i = end + 2
	}
	return segs, nil
}

func (interp *Interpolator) resolveRef(ctx context.Context, ref string, data map[string]any) (any, error) {
	namespace, rest, _ := strings.Cut(ref, ".")
	namespace = strings.TrimSpace(strings.SplitN(namespace, "[", 2)[0])

	switch namespace {
	case "secrets":
		return interp.resolveSecret(ctx, ref, rest, data)
	case "trigger", "chain", "execution":
		val, err := interp.jq.Lookup(ctx, ref, data)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot resolve ${{%s}}: %s", ref, err.Error()).
				WithDetails(map[string]any{"expression": ref}).WithCause(err)
		}
		if val == nil {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"reference ${{%s}} not found", ref).
				WithDetails(map[string]any{"expression": ref})
		}
		return val, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace %q in ${{%s}}; available: %s", namespace, ref, strings.Join(namespaces, ", ")).
			WithDetails(map[string]any{"expression": ref, "available_namespaces": namespaces})
	}
}

// resolveSecret looks key up among the secrets of the chain's owner.
func (interp *Interpolator) resolveSecret(ctx context.Context, ref, key string, data map[string]any) (any, error) {
	if key == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid secret reference %q: expected secrets.<KEY>", ref).
			WithDetails(map[string]any{"expression": ref})
	}
	if err := secrets.ValidName(key); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid secret reference %q: key may only contain letters, digits, '_' and '-'", ref).
			WithDetails(map[string]any{"expression": ref}).WithCause(err)
	}
	if interp.vault == nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"cannot resolve secret %q: no vault configured", key).
			WithDetails(map[string]any{"expression": ref})
	}
	chain, _ := data["chain"].(map[string]any)
	owner, _ := chain["owner_id"].(string)
	if owner == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"cannot resolve secret %q: chain has no owner", key).
			WithDetails(map[string]any{"expression": ref})
	}
	val, err := interp.vault.Resolve(ctx, secrets.OwnerKey(owner, key))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"failed to resolve secret %q: %s", key, err.Error()).
			WithDetails(map[string]any{"expression": ref}).WithCause(err)
	}
	return string(val), nil
}

// stringify renders a resolved value embedded inside a larger string.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool, int, int64, float64:
		return fmt.Sprint(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// HasInterpolation reports whether any string in config contains a ${{...}} reference.
func HasInterpolation(config map[string]any) bool {
	raw, err := json.Marshal(config)
	if err != nil {
		return false
	}
	return strings.Contains(string(raw), "${{")
}
