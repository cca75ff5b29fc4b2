// Package models defines the database models shared by the repositories.
package models

// DefaultLimit is the default number of rows returned by list queries
const DefaultLimit = 20

// ListOptions provides pagination options for list queries
type ListOptions struct {
	Limit  int
	Offset int
}

// WithDefaults returns the options with the default limit applied
func (o *ListOptions) WithDefaults() *ListOptions {
	if o == nil {
		return &ListOptions{Limit: DefaultLimit}
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	return o
}
