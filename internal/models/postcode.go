package models

// Postcode is a row of the pre-populated postcode directory.
type Postcode struct {
	Code  string `bson:"_id" json:"code"`
	Place string `bson:"place" json:"place"`
}

// Label renders "101 Reykjavík".
func (p Postcode) Label() string {
	if p.Place == "" {
		return p.Code
	}
	return p.Code + " " + p.Place
}
