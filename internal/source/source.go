// Package source fetches station products from an ordered chain of upstream
// sources, falls back to a deterministic synthetic generator, and caches the
// decoded and classified result per station and product.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/wx"
)

// Source is an upstream supplier of raw station products.
type Source interface {
	// Name identifies the source in logs, metrics and provenance.
	Name() string

	// FetchRaw retrieves the latest raw product of kind for station.
	FetchRaw(ctx context.Context, station string, kind wx.ProductKind) (wx.RawReport, error)
}

// Provenance records which tier of the fallback chain produced an entry.
type Provenance string

const (
	ProvenancePrimary   Provenance = "PRIMARY"
	ProvenanceBackup    Provenance = "BACKUP"
	ProvenanceSynthetic Provenance = "SYNTHETIC"

	// ProvenanceSupplied marks a report the caller provided. The aggregator
	// never produces it.
	ProvenanceSupplied Provenance = "SUPPLIED"
)

// Key identifies a cache entry.
type Key struct {
	Station string         `json:"station"`
	Kind    wx.ProductKind `json:"kind"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Station, k.Kind)
}

// Entry is a cached, decoded and classified product. Entries are never
// mutated after they are stored; a refresh stores a new Entry.
type Entry struct {
	Key        Key                 `json:"key"`
	Raw        wx.RawReport        `json:"raw"`
	Record     wx.Record           `json:"record"`
	Assessment classify.Assessment `json:"assessment"`
	FetchedAt  time.Time           `json:"fetchedAt"`
	ExpiresAt  time.Time           `json:"expiresAt"`
	Provenance Provenance          `json:"provenance"`
	Source     string              `json:"source"`

	// Stale is set on entries served past expiry because every source failed.
	Stale bool `json:"stale,omitempty"`

	// Failures lists the sources tried before this entry was produced.
	Failures []string `json:"failures,omitempty"`
}

// FreshAt reports whether the entry is still within its TTL at t.
func (e *Entry) FreshAt(t time.Time) bool {
	return t.Before(e.ExpiresAt)
}

// Stats contains cache statistics.
type Stats struct {
	Entries      int                `json:"entries"`
	FreshEntries int                `json:"freshEntries"`
	InFlight     int                `json:"inFlight"`
	Waiting      int                `json:"waiting"`
	ByProvenance map[Provenance]int `json:"byProvenance"`
	Sources      []string           `json:"sources"`
}

// DefaultTTLs returns the cache lifetime of each product kind.
func DefaultTTLs() map[wx.ProductKind]time.Duration {
	return map[wx.ProductKind]time.Duration{
		wx.KindObservation:    5 * time.Minute,
		wx.KindForecast:       30 * time.Minute,
		wx.KindPilotReport:    10 * time.Minute,
		wx.KindHazardAdvisory: 15 * time.Minute,
		wx.KindNotice:         15 * time.Minute,
	}
}

// Fetchable reports whether products of kind can be fetched by station.
func Fetchable(kind wx.ProductKind) bool {
	return kind == wx.KindObservation || kind == wx.KindForecast
}
