// Package api defines the core data structures and interfaces for homeplotter.
package api

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction holds a single bank transaction.
type Transaction struct {
	Date time.Time `json:"date"`
	// Amount is the scaled amount. Expenses are negative.
	Amount decimal.Decimal `json:"amount"`
	Text   string          `json:"text"`
	// Tags is ordered: each matched tag is followed by its ancestors.
	Tags []string `json:"tags"`
	// AmountUnscaled is the amount as it appeared in the bank export.
	AmountUnscaled decimal.Decimal `json:"amount_unscaled"`
	Account        string          `json:"account"`
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Tags = slices.Clone(t.Tags)
	return &c
}

// HasTag reports whether the transaction carries the given tag.
func (t *Transaction) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// Scales maps an account name to the factor applied to its amounts.
type Scales map[string]decimal.Decimal

// Clone returns a copy of the registry.
func (s Scales) Clone() Scales {
	c := make(Scales, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Reader reads transactions from a source.
type Reader interface {
	Read() ([]*Transaction, error)
}

// Writer writes transactions to a destination.
type Writer interface {
	Write(transactions []*Transaction) error
	Close() error
}

// Table is a rendered report: a header row followed by data rows.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Exporter is a Writer that can also write report tables.
type Exporter interface {
	Writer
	WriteTable(table *Table) error
}

// Classifier resolves a transaction text to a set of tags.
type Classifier interface {
	Match(text string) []string
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
