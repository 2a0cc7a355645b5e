package expressions

// Scope is the data an action config may reference while a run is in progress.
type Scope struct {
	Trigger   map[string]any
	Chain     map[string]any
	Execution map[string]any
}

// NewScope builds the scope for one execution. The trigger payload is copied
// so actions cannot observe each other's mutations.
func NewScope(chainID, chainName, ownerID, executionID string, trigger map[string]any) *Scope {
	return &Scope{
		Trigger: deepCopyMap(trigger),
		Chain: map[string]any{
			"id":       chainID,
			"name":     chainName,
			"owner_id": ownerID,
		},
		Execution: map[string]any{
			"id": executionID,
		},
	}
}

func (s *Scope) data() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	trigger := s.Trigger
	if trigger == nil {
		trigger = map[string]any{}
	}
	return map[string]any{
		"trigger":   trigger,
		"chain":     s.Chain,
		"execution": s.Execution,
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
