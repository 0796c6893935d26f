package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type POI struct {
	ID          string  `json:"id" bson:"_id"`
	Name        string  `json:"name" bson:"name"`
	Type        string  `json:"type" bson:"type"`
	Description string  `json:"description" bson:"description"`
	X           float64 `json:"x" bson:"x"`
	Y           float64 `json:"y" bson:"y"`
	Visible     bool    `json:"visible" bson:"visible"`
	Approved    bool    `json:"approved" bson:"approved"`
	DateAdded   string  `json:"dateAdded" bson:"dateAdded"`
}

// RawPOI is a POI-like record as served by a remote list. Fields may be
// missing; the approval flag it carries is never trusted.
type RawPOI struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Visible     *bool   `json:"visible,omitempty"`
	Approved    *bool   `json:"approved,omitempty"`
	DateAdded   string  `json:"dateAdded"`
}

// ToPOI converts the record, tagging it with the approval status of the
// list it came from. A record without a visible flag is visible.
func (r RawPOI) ToPOI(approved bool) POI {
	visible := true
	if r.Visible != nil {
		visible = *r.Visible
	}
	return POI{
		ID:          r.ID,
		Name:        r.Name,
		Type:        r.Type,
		Description: r.Description,
		X:           r.X,
		Y:           r.Y,
		Visible:     visible,
		Approved:    approved,
		DateAdded:   r.DateAdded,
	}
}

// POIPatch holds the fields an edit may change.
type POIPatch struct {
	Type        *string `json:"type,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CacheSnapshot is the persisted form of the whole collection.
type CacheSnapshot struct {
	POIs         []POI `json:"pois"`
	LastSyncTime int64 `json:"lastSyncTime"` // unix millis
}

// Marker is what the presentation layer needs to draw a POI.
type Marker struct {
	POI
	Color            string `json:"color"`
	AwaitingApproval bool   `json:"awaitingApproval"`
}

func NewMarker(poi POI) Marker {
	return Marker{
		POI:              poi,
		Color:            POIType(poi.Type).Color(),
		AwaitingApproval: !poi.Approved,
	}
}

func NewPOIID(t time.Time) string {
	return fmt.Sprintf("poi-%d", t.UnixMilli())
}

func NewTempID(t time.Time) string {
	return fmt.Sprintf("temp-%d", t.UnixMilli())
}

// DefaultName builds a label from the last four digits of the timestamp.
func DefaultName(t time.Time) string {
	ms := strconv.FormatInt(t.UnixMilli(), 10)
	if len(ms) > 4 {
		ms = ms[len(ms)-4:]
	}
	return "POI-" + ms
}

// FormatDateAdded renders t as an ISO-8601 UTC timestamp with millisecond precision.
func FormatDateAdded(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// NormalizeType lowercases and trims a user supplied type.
func NormalizeType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
