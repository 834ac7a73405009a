package domain

import (
	"encoding/json"
	"errors"
)

// Messages returned by the brochure populate endpoint.
const (
	BrochureAcceptedMessage  = "Brochure data received successfully. Client can now use this data to populate its state."
	BrochureInvalidJSON      = "Invalid JSON payload."
	BrochureInvalidStructure = "Invalid brochure data format. Ensure all key fields and array structures are present."
)

var (
	// ErrBrochureSyntax signals a body that is not valid JSON.
	ErrBrochureSyntax = errors.New("brochure payload is not valid JSON")
	// ErrBrochureStructure signals valid JSON that does not look like brochure content.
	ErrBrochureStructure = errors.New("brochure payload has an invalid structure")
)

// BrochureItem is an element of one of the brochure lists (amenities, floor plans).
type BrochureItem struct {
	ID *string `json:"id"`
}

// BrochureContent holds the fields of a brochure that are checked on receipt.
// Other fields are accepted and ignored.
type BrochureContent struct {
	Meta *struct {
		BrochureTitle *string `json:"brochureTitle"`
	} `json:"meta"`
	Page1 *struct {
		MainTitle *string `json:"mainTitle"`
	} `json:"page1"`
	Page2 *struct {
		SiteAddressHeading *string `json:"siteAddressHeading"`
	} `json:"page2"`
	Page3 *struct {
		AmenitiesHeading *string         `json:"amenitiesHeading"`
		Amenities        *[]BrochureItem `json:"amenities"`
	} `json:"page3"`
	Page4 *struct {
		FloorPlanHeading *string         `json:"floorPlanHeading"`
		FloorPlans       *[]BrochureItem `json:"floorPlans"`
	} `json:"page4"`
}

// ParseBrochureContent decodes and checks a brochure payload. The error wraps
// ErrBrochureSyntax or ErrBrochureStructure.
func ParseBrochureContent(body []byte) (*BrochureContent, error) {
	if !json.Valid(body) {
		return nil, ErrBrochureSyntax
	}

	var bc BrochureContent
	if err := json.Unmarshal(body, &bc); err != nil {
		// Valid JSON of the wrong shape, e.g. a string where an object belongs.
		return nil, errors.Join(ErrBrochureStructure, err)
	}
	if !bc.valid() {
		return nil, ErrBrochureStructure
	}
	return &bc, nil
}

func (bc *BrochureContent) valid() bool {
	switch {
	case bc.Meta == nil || bc.Meta.BrochureTitle == nil:
		return false
	case bc.Page1 == nil || bc.Page1.MainTitle == nil:
		return false
	case bc.Page2 == nil || bc.Page2.SiteAddressHeading == nil:
		return false
	case bc.Page3 == nil || bc.Page3.AmenitiesHeading == nil || bc.Page3.Amenities == nil:
		return false
	case bc.Page4 == nil || bc.Page4.FloorPlanHeading == nil || bc.Page4.FloorPlans == nil:
		return false
	}
	return firstHasID(*bc.Page3.Amenities) && firstHasID(*bc.Page4.FloorPlans)
}

// Only the first element is checked.
func firstHasID(items []BrochureItem) bool {
	return len(items) == 0 || items[0].ID != nil
}
