package journal

import "strings"

// SortOrder defines how results should be ordered when listing transfers.
type SortOrder int

const (
	// SortByCreatedDesc orders transfers newest first.
	SortByCreatedDesc SortOrder = iota
	// SortByCreatedAsc orders transfers oldest first.
	SortByCreatedAsc
)

// ListOptions controls how transfers are selected when querying the store.
type ListOptions struct {
	Limit  int
	Offset int
	States []State
	From   string
	Order  SortOrder
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.States != nil {
		opts.States = normalizeStates(opts.States)
	}
	if opts.Order != SortByCreatedAsc {
		opts.Order = SortByCreatedDesc
	}
	opts.From = strings.ToLower(strings.TrimSpace(opts.From))
}

// Normalize returns a sanitized copy of the options.
func (opts ListOptions) Normalize() ListOptions {
	opts.applyDefaults()
	return opts
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of transfers returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching transfers.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithStates filters transfers by state.
func WithStates(states ...State) ListOption {
	return func(opts *ListOptions) {
		opts.States = append(opts.States[:0], states...)
	}
}

// WithSender filters transfers by sender address, case-insensitively.
func WithSender(from string) ListOption {
	return func(opts *ListOptions) {
		opts.From = from
	}
}

// WithSortOrder changes the returned order of transfers.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// NewListOptions applies option functions on top of defaults.
func NewListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStates(input []State) []State {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[State]struct{}, len(input))
	result := make([]State, 0, len(input))
	for _, state := range input {
		if !IsValidState(state) {
			continue
		}
		if _, ok := seen[state]; ok {
			continue
		}
		seen[state] = struct{}{}
		result = append(result, state)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
