package models

// POIType is the category of a POI. Values outside the known set are
// accepted and drawn with DefaultColor.
type POIType string

const (
	TypeShelter     POIType = "shelter"
	TypeBunker      POIType = "bunker"
	TypeFragment    POIType = "fragment"
	TypeMachinery   POIType = "machinery"
	TypeElectronics POIType = "electronics"
	TypeNPC         POIType = "npc"
	TypeSecret      POIType = "secret"
	TypeBoss        POIType = "boss"
)

const DefaultColor = "#ffffff"

var typeColors = map[POIType]string{
	TypeShelter:     "#ff5252",
	TypeBunker:      "#ff9800",
	TypeMachinery:   "#2e7d32",
	TypeFragment:    "#4caf50",
	TypeElectronics: "#2196f3",
	TypeNPC:         "#ff9800",
	TypeSecret:      "#607d8b",
	TypeBoss:        "#e91e63",
}

// AllTypes lists the known types in display order.
func AllTypes() []POIType {
	return []POIType{
		TypeShelter, TypeBunker, TypeFragment, TypeMachinery,
		TypeElectronics, TypeNPC, TypeSecret, TypeBoss,
	}
}

func (t POIType) Known() bool {
	_, ok := typeColors[POIType(NormalizeType(string(t)))]
	return ok
}

func (t POIType) Color() string {
	if c, ok := typeColors[POIType(NormalizeType(string(t)))]; ok {
		return c
	}
	return DefaultColor
}
