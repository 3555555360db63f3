package scenario

import (
	"encoding/xml"
	"io"
	"strconv"
)

// Routes is a SUMO routes document.
type Routes struct {
	XMLName xml.Name `xml:"routes"`
	VTypes  []VType  `xml:"vType"`
	Routes  []Route  `xml:"route"`
	Flows   []Flow   `xml:"flow"`
}

// VType is a SUMO vehicle type.
type VType struct {
	ID       string `xml:"id,attr"`
	Accel    string `xml:"accel,attr"`
	Decel    string `xml:"decel,attr"`
	Sigma    string `xml:"sigma,attr"`
	Length   string `xml:"length,attr"`
	MinGap   string `xml:"minGap,attr"`
	MaxSpeed string `xml:"maxSpeed,attr"`
	Color    string `xml:"color,attr"`
}

// Route is a named edge sequence.
type Route struct {
	ID    string `xml:"id,attr"`
	Edges string `xml:"edges,attr"`
}

// Flow releases vehicles of one type on a route.
type Flow struct {
	ID          string `xml:"id,attr"`
	Type        string `xml:"type,attr"`
	Route       string `xml:"route,attr"`
	Begin       string `xml:"begin,attr"`
	End         string `xml:"end,attr,omitempty"`
	Number      int    `xml:"number,attr,omitempty"`
	Period      string `xml:"period,attr"`
	DepartLane  string `xml:"departLane,attr"`
	DepartSpeed string `xml:"departSpeed,attr"`
}

// Value is the attribute-only element used throughout sumocfg files.
type Value struct {
	Value string `xml:"value,attr"`
}

// SumoConfig is a .sumocfg document.
type SumoConfig struct {
	XMLName xml.Name `xml:"configuration"`
	Input   struct {
		NetFile         Value  `xml:"net-file"`
		RouteFiles      Value  `xml:"route-files"`
		AdditionalFiles *Value `xml:"additional-files,omitempty"`
	} `xml:"input"`
	Time struct {
		Begin Value `xml:"begin"`
		End   Value `xml:"end"`
	} `xml:"time"`
	Processing struct {
		LateralResolution Value `xml:"lateral-resolution"`
	} `xml:"processing"`
	Report struct {
		Verbose   Value `xml:"verbose"`
		NoStepLog Value `xml:"no-step-log"`
	} `xml:"report"`
	GUIOnly struct {
		Start Value `xml:"start"`
	} `xml:"gui_only"`
	RandomNumber struct {
		Seed Value `xml:"seed"`
	} `xml:"random_number"`
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func writeXML(w io.Writer, doc any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ReadRoutes decodes a routes document.
func ReadRoutes(r io.Reader) (Routes, error) {
	var doc Routes
	err := xml.NewDecoder(r).Decode(&doc)
	return doc, err
}

// ReadSumoConfig decodes a sumocfg document.
func ReadSumoConfig(r io.Reader) (SumoConfig, error) {
	var doc SumoConfig
	err := xml.NewDecoder(r).Decode(&doc)
	return doc, err
}
