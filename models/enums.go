package models

// ListingType is either RENT or SALE. There is no unknown case: the
// normalizer always resolves one, defaulting to SALE.
type ListingType string

const (
	ListingRent ListingType = "RENT"
	ListingSale ListingType = "SALE"
)

// Status of a stored listing
type Status string

const (
	StatusActive Status = "ACTIVE"
)

// PropertyType is a closed set of property kinds. PropertyUnknown means no
// keyword matched and is stored as NULL.
type PropertyType string

const (
	PropertyUnknown    PropertyType = ""
	PropertyApartment  PropertyType = "APARTMENT"
	PropertyStudio     PropertyType = "STUDIO"
	PropertyHouse      PropertyType = "HOUSE"
	PropertyVilla      PropertyType = "VILLA"
	PropertyDuplex     PropertyType = "DUPLEX"
	PropertyPenthouse  PropertyType = "PENTHOUSE"
	PropertyLand       PropertyType = "LAND"
	PropertyOffice     PropertyType = "OFFICE"
	PropertyCommercial PropertyType = "COMMERCIAL"
	PropertyFarm       PropertyType = "FARM"
)

// Known reports whether a keyword matched
func (p PropertyType) Known() bool {
	return p != PropertyUnknown
}

// Feature is an amenity tag derived from the description
type Feature string

const (
	FeatureParking         Feature = "parking"
	FeatureElevator        Feature = "elevator"
	FeatureGarden          Feature = "garden"
	FeaturePool            Feature = "pool"
	FeatureBalcony         Feature = "balcony"
	FeatureFurnished       Feature = "furnished"
	FeatureAirConditioning Feature = "air_conditioning"
	FeatureHeating         Feature = "heating"
	FeatureSecurity        Feature = "security"
	FeatureFiber           Feature = "fiber"
)

// AllFeatures lists every feature tag in canonical order
var AllFeatures = []Feature{
	FeatureParking,
	FeatureElevator,
	FeatureGarden,
	FeaturePool,
	FeatureBalcony,
	FeatureFurnished,
	FeatureAirConditioning,
	FeatureHeating,
	FeatureSecurity,
	FeatureFiber,
}
