package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleHeader = "CustomerNum,dlvr_name,dlvr_addr,dlvr_city,trip_days,textbox1,stmt_freq,item_num,item_desc,reg_invty_qty\n"

func TestParseCSV(t *testing.T) {
	data := sampleHeader +
		"170449,F M Valero,123 Main St,\"Fresno, CA\",MWF,Plant 2502,11L,T100,BATH TOWEL,5\n" +
		"170449,F M Valero,123 Main St,\"Fresno, CA\",MWF,Plant 2502,11L,S200,FLAT SHEET,3\n" +
		"n/a,Broken Row,,,,,,,\n"

	batch, err := ParseCSV(context.Background(), strings.NewReader(data), testNormalizer())
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}

	if batch.Stats.TotalRows != 3 {
		t.Errorf("total rows = %d, want 3", batch.Stats.TotalRows)
	}
	if len(batch.Customers) != 1 {
		t.Fatalf("customers = %d, want 1", len(batch.Customers))
	}
	c := batch.Customers[0]
	if c.CustomerNumber != 170449 || c.AccountName != "F M Valero" {
		t.Errorf("customer = %+v", c)
	}
	if c.City != "Fresno" || c.State != "CA" {
		t.Errorf("city/state = %q/%q, want Fresno/CA", c.City, c.State)
	}
	if len(batch.CustomerItems) != 2 {
		t.Errorf("customer items = %d, want 2", len(batch.CustomerItems))
	}
	if len(batch.Items) != 2 {
		t.Errorf("items = %d, want 2", len(batch.Items))
	}
	if len(batch.Errors) != 1 {
		t.Errorf("errors = %d, want 1", len(batch.Errors))
	}
}

func TestParseCSVSkipsBOM(t *testing.T) {
	data := "\xEF\xBB\xBF" + sampleHeader +
		"100,Acme,1 First St,Fresno,M,,11L,,,\n"

	batch, err := ParseCSV(context.Background(), strings.NewReader(data), testNormalizer())
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(batch.Customers) != 1 {
		t.Fatalf("customers = %d, want 1 (BOM must not corrupt first header cell)", len(batch.Customers))
	}
	if batch.Customers[0].CustomerNumber != 100 {
		t.Errorf("customer number = %d, want 100", batch.Customers[0].CustomerNumber)
	}
}

func TestParseCSVSanitizesInvalidUTF8(t *testing.T) {
	// 0xFF is not valid UTF-8 anywhere; the reader replaces it.
	data := sampleHeader +
		"100,Caf\xFF Diner,1 First St,Fresno,M,,11L,,,\n"

	batch, err := ParseCSV(context.Background(), strings.NewReader(data), testNormalizer())
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(batch.Customers) != 1 {
		t.Fatalf("customers = %d, want 1", len(batch.Customers))
	}
	if got := batch.Customers[0].AccountName; got != "Caf? Diner" {
		t.Errorf("account name = %q, want invalid byte replaced with ?", got)
	}
}

func TestParseCSVShortAndLongRows(t *testing.T) {
	data := sampleHeader +
		"100,Short Row\n" +
		"200,Long Row,1 First St,Fresno,M,,11L,T100,TOWEL,5,extra,cells\n"

	batch, err := ParseCSV(context.Background(), strings.NewReader(data), testNormalizer())
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(batch.Customers) != 2 {
		t.Fatalf("customers = %d, want 2", len(batch.Customers))
	}
	if got := batch.Customers[0].City; got != "" {
		t.Errorf("short row city = %q, want empty", got)
	}
	if len(batch.CustomerItems) != 1 {
		t.Errorf("customer items = %d, want 1", len(batch.CustomerItems))
	}
}

func TestParseCSVEmptySource(t *testing.T) {
	batch, err := ParseCSV(context.Background(), strings.NewReader(""), testNormalizer())
	if !errors.Is(err, ErrEmptySource) {
		t.Fatalf("err = %v, want ErrEmptySource", err)
	}
	if batch == nil || batch.Stats.TotalRows != 0 {
		t.Error("empty source should still return an empty batch")
	}
}

func TestParseCSVCancelledContext(t *testing.T) {
	old := contextCheckInterval
	contextCheckInterval = 1
	defer func() { contextCheckInterval = old }()

	var sb strings.Builder
	sb.WriteString(sampleHeader)
	for i := 0; i < 50; i++ {
		sb.WriteString("100,Acme,1 First St,Fresno,M,,11L,,,\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := ParseCSV(ctx, strings.NewReader(sb.String()), testNormalizer())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if batch == nil {
		t.Fatal("cancelled parse must still return the partial batch")
	}
	if batch.Stats.TotalRows >= 50 {
		t.Errorf("total rows = %d, want fewer than the full source", batch.Stats.TotalRows)
	}
}

func TestParseDispatch(t *testing.T) {
	norm := testNormalizer()
	ctx := context.Background()

	t.Run("csv extension", func(t *testing.T) {
		batch, err := Parse(ctx, strings.NewReader(sampleHeader), "Report.CSV", norm)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if batch.Stats.TotalRows != 0 {
			t.Errorf("total rows = %d, want 0", batch.Stats.TotalRows)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Parse(ctx, strings.NewReader("x"), "report.pdf", norm)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("no extension", func(t *testing.T) {
		_, err := Parse(ctx, strings.NewReader("x"), "report", norm)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
		}
	})
}

func TestMakeRow(t *testing.T) {
	columns := []string{"a", "b", "", "d"}

	row := makeRow(columns, []string{" 1 ", `="2"`, "skipped", "4", "extra"})

	if got := row["a"]; got != "1" {
		t.Errorf("a = %q, want cells cleaned", got)
	}
	if got := row["b"]; got != "2" {
		t.Errorf("b = %q, want formula prefix stripped", got)
	}
	if _, ok := row[""]; ok {
		t.Error("blank header cells must not produce keys")
	}
	if got := row["d"]; got != "4" {
		t.Errorf("d = %q", got)
	}
	if len(row) != 3 {
		t.Errorf("row has %d keys, want 3", len(row))
	}
}
