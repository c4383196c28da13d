package desvio

import (
	"fmt"
	"sort"
	"strings"
)

const (
	keyPrefix    = "list:"
	keySeparator = "|"
)

// NewKey builds the composite cache key of a dataset and its query
// parameters: "list:<dataset>|k1:v1|k2:v2", with parameters in sorted order
// and empty values skipped.
func NewKey(dataset string, params map[string]string) (string, error) {
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		return "", fmt.Errorf("%w: empty dataset name", ErrMalformedKey)
	}
	if strings.Contains(dataset, keySeparator) {
		return "", fmt.Errorf("%w: dataset %q contains %q", ErrMalformedKey, dataset, keySeparator)
	}

	names := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		if k == "" || strings.Contains(k, keySeparator) || strings.Contains(v, keySeparator) {
			return "", fmt.Errorf("%w: parameter %q=%q", ErrMalformedKey, k, v)
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(DatasetPrefix(dataset))
	for _, k := range names {
		b.WriteString(keySeparator)
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(params[k])
	}
	return b.String(), nil
}

// DatasetPrefix is the prefix shared by every key of a dataset.
func DatasetPrefix(dataset string) string {
	return keyPrefix + strings.TrimSpace(dataset)
}

// DatasetOf extracts the dataset name from a key built by NewKey.
func DatasetOf(key string) string {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, keySeparator)
	return name
}

// BelongsTo reports whether key was built by NewKey for dataset.
func BelongsTo(key, dataset string) bool {
	return DatasetOf(key) == strings.TrimSpace(dataset)
}
