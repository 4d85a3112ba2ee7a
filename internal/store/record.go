package store

import (
	"context"
	"errors"
	"time"

	"github.com/intellicrop/weedmask-api/output"
)

var ErrNotFound = errors.New("prediction not found")

// Record is the persisted outcome of one prediction run.
type Record struct {
	ID           string            `bson:"_id"          json:"id"`
	Source       string            `bson:"source"       json:"source"`
	OrderVersion string            `bson:"orderVersion" json:"order_version"`
	Mode         string            `bson:"mode"         json:"mode"`
	Width        int               `bson:"width"        json:"width"`
	Height       int               `bson:"height"       json:"height"`
	Samples      int               `bson:"samples"      json:"samples"`
	Rejected     []string          `bson:"rejected,omitempty" json:"rejected,omitempty"`
	ImageInfo    map[string]string `bson:"imageInfo"    json:"image_info"`
	Categories   output.Categories `bson:"categories"   json:"categories"`
	Summary      output.Summary    `bson:"summary"      json:"summary"`
	Files        output.Files      `bson:"files"        json:"files"`
	CreatedAt    time.Time         `bson:"createdAt"    json:"created_at"`
}

type Store interface {
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
}
