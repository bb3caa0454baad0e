// Package reference holds static radiobiology reference data served
// alongside evaluation results.
package reference

// OrganEffect describes the generalized response of one organ system
// to high acute doses.
type OrganEffect struct {
	Organ  string `json:"organ"`
	Effect string `json:"effect"`
}

// OrganDisplayThresholdMSv is the adjusted dose above which the organ
// susceptibility table becomes relevant for display.
const OrganDisplayThresholdMSv = 1000.0

var organEffects = []OrganEffect{
	{Organ: "Bone Marrow", Effect: "Reduced blood cell count"},
	{Organ: "GI Tract", Effect: "Nausea, diarrhea"},
	{Organ: "Skin", Effect: "Burns, hair loss"},
	{Organ: "Brain", Effect: "Cognitive impairment"},
	{Organ: "Reproductive Organs", Effect: "Sterility"},
}

// OrganEffects returns the organ susceptibility rows in display order.
func OrganEffects() []OrganEffect {
	out := make([]OrganEffect, len(organEffects))
	copy(out, organEffects)
	return out
}
