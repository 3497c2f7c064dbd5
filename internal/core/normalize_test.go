package core

import (
	"testing"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(DefaultMappings())
}

func TestCustomerNumber(t *testing.T) {
	norm := testNormalizer()

	tests := []struct {
		name   string
		input  string
		want   int
		wantOK bool
	}{
		{"plain number", "170449", 170449, true},
		{"leading zeros kept numeric", "00042", 42, true},
		{"digits wrapped in junk", "CUST-170449", 170449, true},
		{"whitespace around digits", " 123 ", 123, true},
		{"empty", "", 0, false},
		{"no digits at all", "N/A", 0, false},
		{"only punctuation", "---", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := norm.CustomerNumber(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("CustomerNumber(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("CustomerNumber(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestCityState(t *testing.T) {
	norm := testNormalizer()

	tests := []struct {
		name      string
		input     string
		wantCity  string
		wantState string
	}{
		{"city and state", "Fresno, CA", "Fresno", "CA"},
		{"city only defaults state", "Fresno", "Fresno", "CA"},
		{"empty", "", "", "CA"},
		{"trailing comma defaults state", "Fresno,", "Fresno", "CA"},
		{"extra comma stays in state", "Fresno, CA, USA", "Fresno", "CA, USA"},
		{"whitespace trimmed", "  Clovis ,  CA ", "Clovis", "CA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			city, state := norm.CityState(tt.input)
			if city != tt.wantCity || state != tt.wantState {
				t.Errorf("CityState(%q) = (%q, %q), want (%q, %q)",
					tt.input, city, state, tt.wantCity, tt.wantState)
			}
		})
	}
}

func TestServiceDays(t *testing.T) {
	norm := testNormalizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"full week", "MTWHF", "M,T,W,H,F"},
		{"lowercase recognized", "mwf", "M,W,F"},
		{"unrecognized dropped", "M-W/F", "M,W,F"},
		{"empty", "", ""},
		{"all unrecognized", "XYZ", ""},
		// Repeated letters are preserved, not deduplicated; the upstream
		// export emits them and the pipeline round-trips them literally.
		{"duplicates preserved", "MWM", "M,W,M"},
		{"order preserved", "FM", "F,M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := norm.ServiceDays(tt.input); got != tt.want {
				t.Errorf("ServiceDays(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRouteNumber(t *testing.T) {
	norm := testNormalizer()

	tests := []struct {
		name  string
		input string
		want  int
	}{
		// Mapped plant and fallback coincide at 33 in the shipped tables;
		// TestRouteNumber_CustomMappings separates them.
		{"mapped plant", "Plant 2502", 33},
		{"unmapped plant falls back", "Plant 9999", 33},
		{"no plant tag falls back", "Warehouse A", 33},
		{"empty falls back", "", 33},
		{"case-insensitive match", "PLANT 2502", 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := norm.RouteNumber(tt.input); got != tt.want {
				t.Errorf("RouteNumber(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestRouteNumber_CustomMappings(t *testing.T) {
	m := DefaultMappings()
	m.PlantRoutes = map[int]int{2502: 33, 2600: 41}
	m.DefaultRoute = 99
	norm := NewNormalizer(m)

	if got := norm.RouteNumber("Plant 2600"); got != 41 {
		t.Errorf("RouteNumber(mapped) = %d, want 41", got)
	}
	if got := norm.RouteNumber("Plant 1111"); got != 99 {
		t.Errorf("RouteNumber(unmapped) = %d, want default 99", got)
	}
}

func TestKnownPlant(t *testing.T) {
	norm := testNormalizer()

	if !norm.KnownPlant("Plant 2502") {
		t.Error("KnownPlant(mapped plant) = false, want true")
	}
	if norm.KnownPlant("Plant 9999") {
		t.Error("KnownPlant(unmapped plant) = true, want false")
	}
	if norm.KnownPlant("no tag here") {
		t.Error("KnownPlant(no tag) = true, want false")
	}
}

func TestServiceFrequency(t *testing.T) {
	norm := testNormalizer()

	tests := []struct {
		input string
		want  string
	}{
		{"11L", "Weekly"},
		{"12L", "Bi-Weekly"},
		{"13L", "Monthly"},
		{"99X", "Weekly"},
		{"", "Weekly"},
		{" 11L ", "Weekly"},
	}

	for _, tt := range tests {
		if got := norm.ServiceFrequency(tt.input); got != tt.want {
			t.Errorf("ServiceFrequency(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCategoryID(t *testing.T) {
	norm := testNormalizer()

	tests := []struct {
		desc string
		want int
	}{
		{"BATH TOWEL WHITE", 1},
		{"twl hand 16x27", 1},
		{"FLAT SHEET QUEEN", 2},
		{"Patient Gown", 3},
		{"SCRUB TOP MED", 4},
		{"PLW CASE STD", 5},
		{"Thermal Blanket", 6},
		{"Hyperbaric Chamber Liner", 7},
		{"LAUNDRY BG LARGE", 8},
		{"mystery product", 9},
		{"", 9},
		// First matching rule wins, towel ranks above bag.
		{"TOWEL BAG COMBO", 1},
	}

	for _, tt := range tests {
		if got := norm.CategoryID(tt.desc); got != tt.want {
			t.Errorf("CategoryID(%q) = %d, want %d", tt.desc, got, tt.want)
		}
	}
}

func TestPrice(t *testing.T) {
	norm := testNormalizer()

	tests := []struct {
		input string
		want  float64
	}{
		{"$1,234.56", 1234.56},
		{"12.5", 12.5},
		{" $ 7 ", 7},
		{"", 0},
		{"free", 0},
	}

	for _, tt := range tests {
		if got := norm.Price(tt.input); got != tt.want {
			t.Errorf("Price(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"whitespace", "  hello  ", "hello"},
		{"excel formula quote", `="00123"`, "00123"},
		{"bare equals", "=SUM", "SUM"},
		{"wrapping quotes", `"quoted"`, "quoted"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeCustomer(t *testing.T) {
	norm := testNormalizer()

	row := RawRow{
		"dlvr_name": "  F M Valero  ",
		"dlvr_addr": "123 Main St",
		"dlvr_city": "Fresno, CA",
		"trip_days": "MWF",
		"textbox1":  "Plant 2502",
		"stmt_freq": "12L",
	}

	c := norm.Customer(row, 170449)

	if c.CustomerNumber != 170449 {
		t.Errorf("CustomerNumber = %d, want 170449", c.CustomerNumber)
	}
	if c.AccountName != "F M Valero" {
		t.Errorf("AccountName = %q, want %q", c.AccountName, "F M Valero")
	}
	if c.City != "Fresno" || c.State != "CA" {
		t.Errorf("City/State = %q/%q, want Fresno/CA", c.City, c.State)
	}
	if c.RouteNumber != 33 {
		t.Errorf("RouteNumber = %d, want 33", c.RouteNumber)
	}
	if c.ServiceFrequency != "Bi-Weekly" {
		t.Errorf("ServiceFrequency = %q, want Bi-Weekly", c.ServiceFrequency)
	}
	if c.ServiceDays != "M,W,F" {
		t.Errorf("ServiceDays = %q, want M,W,F", c.ServiceDays)
	}
	if !c.IsActive {
		t.Error("IsActive = false, want true")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Error("timestamps not assigned at normalization time")
	}
}

func TestRawRowField(t *testing.T) {
	row := RawRow{"CustomerNum": "1", "item_desc": "towel"}

	if got := row.Field("CustomerNum"); got != "1" {
		t.Errorf("Field exact = %q, want 1", got)
	}
	if got := row.Field("customernum"); got != "1" {
		t.Errorf("Field case-insensitive = %q, want 1", got)
	}
	if got := row.Field("missing"); got != "" {
		t.Errorf("Field absent = %q, want empty", got)
	}
}
