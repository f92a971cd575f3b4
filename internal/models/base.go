package models

import (
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// Base carries the primary key shared by every stored entity.
type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

func NewBase() Base {
	return Base{ID: utils.NewSixID()}
}

// GenID assigns a fresh id. db.InsertOne calls it again after an _id collision.
func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}
