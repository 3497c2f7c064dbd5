package core

// normalize.go turns raw export cells into typed fragments. All functions
// here are pure over the row and the injected mapping tables; nothing in
// this file touches the aggregator's state or performs I/O.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Source column names in the CustomerMasterAnalysisReport export.
const (
	colCustomerNumber = "CustomerNum"
	colAccountName    = "dlvr_name"
	colAddress        = "dlvr_addr"
	colCityState      = "dlvr_city"
	colTripDays       = "trip_days"
	colPlantHeader    = "textbox1"
	colStatementFreq  = "stmt_freq"
	colItemNumber     = "item_num"
	colItemDesc       = "item_desc"
	colQuantity       = "reg_invty_qty"
)

// plantTagRegex extracts the numeric tag from a "Plant NNNN" report header.
var plantTagRegex = regexp.MustCompile(`(?i)Plant\s+(\d+)`)

// nonDigitRegex strips everything but digits from a customer number cell.
var nonDigitRegex = regexp.MustCompile(`[^\d]`)

// priceJunkRegex strips currency symbols, thousands separators and
// whitespace from price cells.
var priceJunkRegex = regexp.MustCompile(`[$,\s]`)

// serviceDayAlphabet is the recognized weekday symbols, H meaning Thursday.
const serviceDayAlphabet = "MTWHF"

// Normalizer maps raw rows to typed fragments using injected lookup tables.
// A Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	m   Mappings
	now func() time.Time
}

// NewNormalizer creates a Normalizer over the given mapping tables.
func NewNormalizer(m Mappings) *Normalizer {
	return &Normalizer{m: m, now: time.Now}
}

// CustomerNumber strips every non-digit character and parses the remainder.
// Returns ok=false for cells with no digits; the caller rejects the row.
func (n *Normalizer) CustomerNumber(raw string) (int, bool) {
	digits := nonDigitRegex.ReplaceAllString(raw, "")
	if digits == "" {
		return 0, false
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CityState splits a "City, State" cell on the first comma. A missing state
// segment falls back to the configured region code.
func (n *Normalizer) CityState(raw string) (city, state string) {
	city, state, found := strings.Cut(raw, ",")
	city = strings.TrimSpace(city)
	state = strings.TrimSpace(state)
	if !found || state == "" {
		state = n.m.DefaultState
	}
	return city, state
}

// ServiceDays scans the trip-days cell case-insensitively and keeps only
// recognized weekday symbols, joined by commas. Input order is preserved and
// repeated letters are kept as-is: "MWM" yields "M,W,M". The upstream system
// emits repeats and the rest of the pipeline round-trips them literally.
func (n *Normalizer) ServiceDays(raw string) string {
	var days []string
	for _, c := range strings.ToUpper(raw) {
		if strings.ContainsRune(serviceDayAlphabet, c) {
			days = append(days, string(c))
		}
	}
	return strings.Join(days, ",")
}

// RouteNumber extracts the numeric tag from a "Plant NNNN" header and maps
// it to a route. Unmapped or absent tags fall back to the default route.
func (n *Normalizer) RouteNumber(raw string) int {
	m := plantTagRegex.FindStringSubmatch(raw)
	if m == nil {
		return n.m.DefaultRoute
	}
	plant, err := strconv.Atoi(m[1])
	if err != nil {
		return n.m.DefaultRoute
	}
	if route, ok := n.m.PlantRoutes[plant]; ok {
		return route
	}
	return n.m.DefaultRoute
}

// KnownPlant reports whether the cell carries a plant tag with an explicit
// route mapping, as opposed to falling back to the default route.
func (n *Normalizer) KnownPlant(raw string) bool {
	m := plantTagRegex.FindStringSubmatch(raw)
	if m == nil {
		return false
	}
	plant, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	_, ok := n.m.PlantRoutes[plant]
	return ok
}

// ServiceFrequency maps a statement frequency code to its label.
func (n *Normalizer) ServiceFrequency(raw string) string {
	if label, ok := n.m.Frequencies[strings.TrimSpace(raw)]; ok {
		return label
	}
	return n.m.DefaultFrequency
}

// CategoryID derives a catalog category from the item description by
// keyword match, first matching rule wins.
func (n *Normalizer) CategoryID(description string) int {
	desc := strings.ToLower(description)
	for _, rule := range n.m.Categories {
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				return rule.ID
			}
		}
	}
	return n.m.DefaultCategoryID
}

// Price strips currency symbols, separators and whitespace, then parses a
// float. Invalid input yields 0; a bad price never rejects a row.
func (n *Normalizer) Price(raw string) float64 {
	cleaned := priceJunkRegex.ReplaceAllString(raw, "")
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// Customer builds the customer record for a row. Called only for the first
// occurrence of a customer number within a batch.
func (n *Normalizer) Customer(row RawRow, customerNumber int) Customer {
	city, state := n.CityState(row.Field(colCityState))
	now := n.now().UTC()

	return Customer{
		CustomerNumber:   customerNumber,
		AccountName:      strings.TrimSpace(row.Field(colAccountName)),
		Address:          strings.TrimSpace(row.Field(colAddress)),
		City:             city,
		State:            state,
		RouteNumber:      n.RouteNumber(row.Field(colPlantHeader)),
		ServiceFrequency: n.ServiceFrequency(row.Field(colStatementFreq)),
		ServiceDays:      n.ServiceDays(row.Field(colTripDays)),
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Relationship builds the customer-item relationship for a row. Quantity
// parses leniently: non-numeric cells become 0, which the aggregator's
// quantity gate then drops.
func (n *Normalizer) Relationship(row RawRow, customerNumber int) CustomerItem {
	qty, _ := strconv.Atoi(strings.TrimSpace(row.Field(colQuantity)))

	return CustomerItem{
		CustomerNumber: customerNumber,
		ItemNumber:     strings.TrimSpace(row.Field(colItemNumber)),
		Quantity:       qty,
		ItemType:       "rental",
	}
}

// CatalogItem builds the catalog entry for a row's item.
func (n *Normalizer) CatalogItem(row RawRow) Item {
	desc := strings.TrimSpace(row.Field(colItemDesc))

	return Item{
		ItemNumber:    strings.TrimSpace(row.Field(colItemNumber)),
		Description:   desc,
		ItemType:      "rental",
		CategoryID:    n.CategoryID(desc),
		UnitOfMeasure: "EA",
		CaseQuantity:  1,
		IsActive:      true,
	}
}

// CleanCell removes common export artifacts from a cell value:
// surrounding whitespace, Excel formula prefixes (="value") and
// stray wrapping quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
