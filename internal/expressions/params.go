package expressions

import (
	"sort"
	"strings"
)

// Namespaces of `${...}` parameter expressions that do not name a task.
var reservedNamespaces = map[string]bool{
	"workflow":      true,
	"CPEWF_TASK_ID": true,
}

// ParamRefs returns the task reference names used by `${ref.output...}`
// style expressions anywhere inside a task's inputParameters, sorted.
func ParamRefs(params map[string]any) []string {
	refs := make(map[string]bool)
	collectParamRefs(params, refs)

	out := make([]string, 0, len(refs))
	for ref := range refs {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func collectParamRefs(v any, refs map[string]bool) {
	switch val := v.(type) {
	case map[string]any:
		for _, item := range val {
			collectParamRefs(item, refs)
		}
	case []any:
		for _, item := range val {
			collectParamRefs(item, refs)
		}
	case string:
		for ref := range extractTaskRefs(val) {
			refs[ref] = true
		}
	}
}

// extractTaskRefs finds the leading path segment of every ${...} token.
func extractTaskRefs(s string) map[string]bool {
	refs := make(map[string]bool)
	for {
		idx := strings.Index(s, "${")
		if idx == -1 {
			break
		}
		rest := s[idx+2:]
		closeIdx := strings.IndexByte(rest, '}')
		if closeIdx == -1 {
			break
		}
		path := strings.TrimSpace(rest[:closeIdx])
		head := path
		if cut := strings.IndexAny(path, ".["); cut != -1 {
			head = path[:cut]
		}
		if head != "" && !reservedNamespaces[head] {
			refs[head] = true
		}
		s = rest[closeIdx+1:]
	}
	return refs
}
