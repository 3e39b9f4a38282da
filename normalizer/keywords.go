package normalizer

import "listing-factory/models"

type propertyKeyword struct {
	keyword string
	kind    models.PropertyType
}

// propertyKeywords is scanned in order against the lowercased title; the
// first keyword found decides the type.
var propertyKeywords = []propertyKeyword{
	{"appartement", models.PropertyApartment},
	{"appart", models.PropertyApartment},
	{"studio", models.PropertyStudio},
	{"s1", models.PropertyStudio},
	{"s2", models.PropertyApartment},
	{"s3", models.PropertyApartment},
	{"s4", models.PropertyApartment},
	{"s+", models.PropertyApartment},
	{"maison", models.PropertyHouse},
	{"villa", models.PropertyVilla},
	{"duplex", models.PropertyDuplex},
	{"penthouse", models.PropertyPenthouse},
	{"terrain", models.PropertyLand},
	{"ارض", models.PropertyLand},
	{"أرض", models.PropertyLand},
	{"bureau", models.PropertyOffice},
	{"local commercial", models.PropertyCommercial},
	{"commercial", models.PropertyCommercial},
	{"ferme", models.PropertyFarm},
	{"مزرعة", models.PropertyFarm},
}

var rentKeywords = []string{"louer", "location", "à louer", "a louer", "للكراء", "للإيجار"}

var saleKeywords = []string{"vendre", "vente", "à vendre", "a vendre", "للبيع"}

type featureKeywords struct {
	feature  models.Feature
	keywords []string
}

// featureTable follows models.AllFeatures order
var featureTable = []featureKeywords{
	{models.FeatureParking, []string{"parking", "garage", "stationnement", "place de parking"}},
	{models.FeatureElevator, []string{"ascenseur", "lift"}},
	{models.FeatureGarden, []string{"jardin", "green space", "espace vert"}},
	{models.FeaturePool, []string{"piscine", "pool", "swimming"}},
	{models.FeatureBalcony, []string{"balcon", "terrasse", "balcony"}},
	{models.FeatureFurnished, []string{"meublé", "furnished", "équipé"}},
	{models.FeatureAirConditioning, []string{"climatisé", "climatisation", "clim", "a/c", "climatiseur"}},
	{models.FeatureHeating, []string{"chauffage", "heating", "chauffage central"}},
	{models.FeatureSecurity, []string{"gardé", "sécurisé", "security", "concierge", "gardien", "résidence sécurisée"}},
	{models.FeatureFiber, []string{"fibre", "fiber", "internet", "wifi"}},
}

var negotiableKeywords = []string{"négociable", "negociable", "à négocier", "a negocier", "قابل للتفاوض"}
