package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Candidate{},
	&UsageCounter{},
	&ResolutionRecord{},
}

////////////////////////
// CANDIDATES
////////////////////////

// Candidate is a stored geo-referenced object. Latitude and Longitude are
// indexed for the bounding box prefilter; Location holds the same position
// as an EPSG:3857 point with the height as Z.
type Candidate struct {
	gorm.Model
	ExternalID       string         `json:"externalId" gorm:"size:128;uniqueIndex:idx_candidate_external_id"`
	Name             string         `json:"name" gorm:"size:255"`
	Category         string         `json:"category" gorm:"size:16;index:idx_candidate_category"`
	Latitude         float64        `json:"latitude" gorm:"index:idx_candidate_lat"`
	Longitude        float64        `json:"longitude" gorm:"index:idx_candidate_lon"`
	Location         geom.Point     `json:"location"`
	Height           *float64       `json:"height"`
	VisualConfidence *float64       `json:"visualConfidence"`
	Attributes       datatypes.JSON `json:"attributes"`
}

func (*Candidate) TableName() string {
	return "candidates"
}

////////////////////////
// QUOTAS
////////////////////////

// UsageCounter counts source calls per key and UTC day.
type UsageCounter struct {
	ID    uint   `json:"id" gorm:"primarykey;autoIncrement;"`
	Key   string `json:"key" gorm:"column:counter_key;size:64;uniqueIndex:idx_usage_key_day"`
	Day   string `json:"day" gorm:"size:10;uniqueIndex:idx_usage_key_day"` // 2006-01-02
	Count int    `json:"count" gorm:"default:0"`
}

func (*UsageCounter) TableName() string {
	return "usage_counters"
}

////////////////////////
// HISTORY
////////////////////////

// ResolutionRecord is one completed query, kept for review.
type ResolutionRecord struct {
	ID               uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time             time.Time      `json:"time" gorm:"index:idx_resolution_time"`
	QueryID          string         `json:"queryId" gorm:"size:64;uniqueIndex:idx_resolution_query_id"`
	Mode             string         `json:"mode" gorm:"size:16"`
	Category         string         `json:"category" gorm:"size:16"`
	Bearing          float64        `json:"bearing"`
	Method           string         `json:"method" gorm:"size:32"`
	SelectedID       string         `json:"selectedId" gorm:"size:128"`
	Confidence       float64        `json:"confidence"`
	NoConfidentMatch bool           `json:"noConfidentMatch" gorm:"default:false"`
	Degraded         bool           `json:"degraded" gorm:"default:false"`
	Target           geom.Point     `json:"target"`
	Result           datatypes.JSON `json:"result"`
}

func (*ResolutionRecord) TableName() string {
	return "resolution_records"
}
