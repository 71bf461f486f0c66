package garment

import "github.com/raine/telegram-garment-bot/internal/llm"

const (
	// NotFound marks a field that could not be extracted.
	NotFound = "Not Found"
	// TextNotFound is returned by the Submitter when the service gave no usable text.
	TextNotFound = "Text not found"
)

// Columns is the fixed header order for display and export.
var Columns = []string{
	"Image",
	"Text",
	"Garment Type",
	"Brand",
	"Size",
	"Color",
	"Fabric",
	"Additional Characteristics",
}

// Tier identifies which extraction strategy produced a set of fields.
type Tier int

const (
	// TierNone means no description was available to extract from.
	TierNone Tier = iota
	TierStructured
	TierHeuristic
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierStructured:
		return "structured"
	case TierHeuristic:
		return "heuristic"
	default:
		return "unknown"
	}
}

// Fields contains the six attributes extracted from a garment description.
// Every field is either a matched value or NotFound.
type Fields struct {
	GarmentType               string
	Brand                     string
	Size                      string
	Color                     string
	Fabric                    string
	AdditionalCharacteristics string
}

// Values returns the fields in column order.
func (f Fields) Values() []string {
	return []string{f.GarmentType, f.Brand, f.Size, f.Color, f.Fabric, f.AdditionalCharacteristics}
}

// Record is one result row for a single uploaded image.
type Record struct {
	Image string
	Text  string
	Fields
	Tier Tier
}

// NotFoundFields returns the column names of fields that resolved to NotFound.
func (f Fields) NotFoundFields() []string {
	var missing []string
	for i, v := range f.Values() {
		if v == NotFound {
			missing = append(missing, Columns[i+2])
		}
	}
	return missing
}

func allNotFound() Fields {
	return Fields{
		GarmentType:               NotFound,
		Brand:                     NotFound,
		Size:                      NotFound,
		Color:                     NotFound,
		Fabric:                    NotFound,
		AdditionalCharacteristics: NotFound,
	}
}

// Row returns the record as strings in Columns order.
func (r Record) Row() []string {
	return append([]string{r.Image, r.Text}, r.Fields.Values()...)
}

// Table is the ordered result of a batch. Records are in upload order.
type Table struct {
	Records []Record
	Usage   llm.Usage
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// Rows returns all records as string rows in Columns order.
func (t *Table) Rows() [][]string {
	rows := make([][]string, 0, len(t.Records))
	for _, r := range t.Records {
		rows = append(rows, r.Row())
	}
	return rows
}
