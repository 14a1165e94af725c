package prompt

import (
	"strings"

	"github.com/funcgen/api/internal/models"
)

// ParseParameters turns "x: number, y: string" into an ordered parameter list.
// Entries without a colon are dropped; the first colon separates name from type.
func ParseParameters(spec string) []models.ParsedParameter {
	params := []models.ParsedParameter{}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		name, typ, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		params = append(params, models.ParsedParameter{
			Name: strings.TrimSpace(name),
			Type: strings.TrimSpace(typ),
		})
	}
	return params
}

// Names returns the parameter names in declaration order
func Names(params []models.ParsedParameter) []string {
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}
	return names
}
